package xmlrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xmlrpcclient "github.com/kolo/xmlrpc"

	"github.com/peteches/houston/internal/catalog"
)

const (
	httpsSchemePrefixConstant            = "https://"
	httpSchemePrefixConstant             = "http://"
	rpcEndpointSuffixConstant            = "/rpc/api"
	serverURLRequiredMessageConstant     = "catalog server URL must be provided"
	sessionNotEstablishedMessageConstant = "catalog session not established"
	clientCreationErrorTemplateConstant  = "unable to create XML-RPC client: %w"
	loginFailureTemplateConstant         = "catalog login failed: %w"
	packageLookupFailureTemplateConstant = "package %s not present on catalog server"

	authLoginMethodConstant  = "auth.login"
	authLogoutMethodConstant = "auth.logout"

	channelGetDetailsMethodConstant    = "channel.software.getDetails"
	channelListChildrenMethodConstant  = "channel.software.listChildren"
	channelCreateMethodConstant        = "channel.software.create"
	channelCloneMethodConstant         = "channel.software.clone"
	channelDeleteMethodConstant        = "channel.software.delete"
	channelListPackagesMethodConstant  = "channel.software.listAllPackages"
	channelAddPackagesMethodConstant   = "channel.software.addPackages"
	channelRemovePackagesMethod        = "channel.software.removePackages"
	channelListSystemsMethodConstant   = "channel.software.listSubscribedSystems"
	systemListPackagesMethodConstant   = "system.listPackages"
	systemScheduleInstallMethod        = "system.schedulePackageInstall"
	systemSetBaseChannelMethodConstant = "system.setBaseChannel"
	systemSetChildChannelsMethod       = "system.setChildChannels"
	systemDeleteSystemsMethodConstant  = "system.deleteSystems"
	packagesFindByNvreaMethodConstant  = "packages.findByNvrea"

	defaultChannelArchitectureConstant = "channel-x86_64"
)

var notFoundFaultMarkers = []string{
	"no_such_channel",
	"NoSuchChannelException",
	"NoSuchSystemException",
	"could not find channel",
}

// ErrServerURLRequired indicates the client configuration omitted the server URL.
var ErrServerURLRequired = errors.New(serverURLRequiredMessageConstant)

// ErrSessionNotEstablished indicates a call was attempted before Login succeeded.
var ErrSessionNotEstablished = errors.New(sessionNotEstablishedMessageConstant)

// Configuration carries the connection settings for the XML-RPC catalog client.
type Configuration struct {
	ServerURL           string
	Username            string
	Password            string
	ChannelArchitecture string
}

// Client speaks the Spacewalk XML-RPC protocol and implements catalog.Client.
type Client struct {
	transport           caller
	sessionKey          string
	channelArchitecture string
}

// caller abstracts the underlying XML-RPC transport for testing.
type caller interface {
	Call(serviceMethod string, arguments any, reply any) error
}

type channelDetailsPayload struct {
	ID          int64  `xmlrpc:"id"`
	Label       string `xmlrpc:"label"`
	Name        string `xmlrpc:"name"`
	Summary     string `xmlrpc:"summary"`
	ParentLabel string `xmlrpc:"parent_channel_label"`
}

type packagePayload struct {
	ID      int64  `xmlrpc:"id"`
	Name    string `xmlrpc:"name"`
	Version string `xmlrpc:"version"`
	Release string `xmlrpc:"release"`
	Epoch   string `xmlrpc:"epoch"`
	Arch    string `xmlrpc:"arch_label"`
}

type systemPayload struct {
	ID int64 `xmlrpc:"id"`
}

// NormalizeServerURL coerces operator-supplied server addresses into the
// https RPC endpoint form the catalog server expects.
func NormalizeServerURL(serverURL string) (string, error) {
	trimmedURL := strings.TrimSpace(serverURL)
	if len(trimmedURL) == 0 {
		return "", ErrServerURLRequired
	}
	if strings.HasPrefix(trimmedURL, httpSchemePrefixConstant) {
		trimmedURL = httpsSchemePrefixConstant + strings.TrimPrefix(trimmedURL, httpSchemePrefixConstant)
	}
	if !strings.HasPrefix(trimmedURL, httpsSchemePrefixConstant) {
		trimmedURL = httpsSchemePrefixConstant + trimmedURL
	}
	trimmedURL = strings.TrimRight(trimmedURL, "/")
	if !strings.HasSuffix(trimmedURL, rpcEndpointSuffixConstant) {
		trimmedURL += rpcEndpointSuffixConstant
	}
	return trimmedURL, nil
}

// NewClient constructs a catalog client for the configured server. Login
// must be called before any catalog operation.
func NewClient(configuration Configuration) (*Client, error) {
	normalizedURL, normalizationError := NormalizeServerURL(configuration.ServerURL)
	if normalizationError != nil {
		return nil, normalizationError
	}

	transport, creationError := xmlrpcclient.NewClient(normalizedURL, nil)
	if creationError != nil {
		return nil, fmt.Errorf(clientCreationErrorTemplateConstant, creationError)
	}

	channelArchitecture := strings.TrimSpace(configuration.ChannelArchitecture)
	if len(channelArchitecture) == 0 {
		channelArchitecture = defaultChannelArchitectureConstant
	}

	return &Client{transport: transport, channelArchitecture: channelArchitecture}, nil
}

// Login establishes an authenticated session on the catalog server.
func (client *Client) Login(executionContext context.Context, username string, password string) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	var sessionKey string
	loginError := client.transport.Call(authLoginMethodConstant, []any{username, password}, &sessionKey)
	if loginError != nil {
		return fmt.Errorf(loginFailureTemplateConstant, loginError)
	}

	client.sessionKey = sessionKey
	return nil
}

// Logout terminates the authenticated session.
func (client *Client) Logout(executionContext context.Context) error {
	if len(client.sessionKey) == 0 {
		return nil
	}
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	logoutError := client.transport.Call(authLogoutMethodConstant, []any{client.sessionKey}, nil)
	client.sessionKey = ""
	return logoutError
}

func (client *Client) call(executionContext context.Context, methodName string, arguments []any, reply any) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	if len(client.sessionKey) == 0 {
		return ErrSessionNotEstablished
	}

	sessionArguments := append([]any{client.sessionKey}, arguments...)
	callError := client.transport.Call(methodName, sessionArguments, reply)
	if callError == nil {
		return nil
	}
	return catalog.CallError{CallName: methodName, Cause: callError}
}

func isNotFoundFault(callError error) bool {
	if callError == nil {
		return false
	}
	message := callError.Error()
	for _, marker := range notFoundFaultMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// GetChannel fetches a channel's identity details.
func (client *Client) GetChannel(executionContext context.Context, channelLabel string) (catalog.Channel, error) {
	var payload channelDetailsPayload
	callError := client.call(executionContext, channelGetDetailsMethodConstant, []any{channelLabel}, &payload)
	if callError != nil {
		if isNotFoundFault(callError) {
			return catalog.Channel{}, catalog.NotFoundError{ChannelLabel: channelLabel}
		}
		return catalog.Channel{}, callError
	}
	return channelFromPayload(payload), nil
}

// ListChildren lists the channels parented under the provided channel.
func (client *Client) ListChildren(executionContext context.Context, channelLabel string) ([]catalog.Channel, error) {
	var payloads []channelDetailsPayload
	callError := client.call(executionContext, channelListChildrenMethodConstant, []any{channelLabel}, &payloads)
	if callError != nil {
		if isNotFoundFault(callError) {
			return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
		}
		return nil, callError
	}

	children := make([]catalog.Channel, 0, len(payloads))
	for _, payload := range payloads {
		children = append(children, channelFromPayload(payload))
	}
	return children, nil
}

// CreateChannel creates a channel, cloning the source channel's package set
// when CopyPackagesFrom is provided.
func (client *Client) CreateChannel(executionContext context.Context, request catalog.CreateChannelRequest) (catalog.Channel, error) {
	if len(request.CopyPackagesFrom) > 0 {
		cloneDescriptor := map[string]any{
			"label":   request.Label,
			"name":    request.Name,
			"summary": request.Summary,
		}
		if len(request.ParentLabel) > 0 {
			cloneDescriptor["parent_label"] = request.ParentLabel
		}

		var createdID int64
		callError := client.call(executionContext, channelCloneMethodConstant, []any{request.CopyPackagesFrom, cloneDescriptor, false}, &createdID)
		if callError != nil {
			return catalog.Channel{}, callError
		}
		return catalog.Channel{ID: catalog.ChannelID(createdID), Label: request.Label, Name: request.Name, Summary: request.Summary, ParentLabel: request.ParentLabel}, nil
	}

	var creationResult int64
	callError := client.call(executionContext, channelCreateMethodConstant, []any{request.Label, request.Name, request.Summary, client.channelArchitecture, request.ParentLabel}, &creationResult)
	if callError != nil {
		return catalog.Channel{}, callError
	}
	return catalog.Channel{Label: request.Label, Name: request.Name, Summary: request.Summary, ParentLabel: request.ParentLabel}, nil
}

// DeleteChannel removes a channel from the catalog server.
func (client *Client) DeleteChannel(executionContext context.Context, channelLabel string) error {
	callError := client.call(executionContext, channelDeleteMethodConstant, []any{channelLabel}, nil)
	if callError != nil && isNotFoundFault(callError) {
		return catalog.NotFoundError{ChannelLabel: channelLabel}
	}
	return callError
}

// ListPackages lists every package reference held by a channel.
func (client *Client) ListPackages(executionContext context.Context, channelLabel string) ([]catalog.PackageReference, error) {
	var payloads []packagePayload
	callError := client.call(executionContext, channelListPackagesMethodConstant, []any{channelLabel}, &payloads)
	if callError != nil {
		if isNotFoundFault(callError) {
			return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
		}
		return nil, callError
	}

	references := make([]catalog.PackageReference, 0, len(payloads))
	for _, payload := range payloads {
		references = append(references, referenceFromPayload(payload))
	}
	return references, nil
}

func (client *Client) findPackageIdentifier(executionContext context.Context, reference catalog.PackageReference) (int64, error) {
	epochValue := ""
	if reference.Epoch != nil {
		epochValue = *reference.Epoch
	}

	var payloads []packagePayload
	callError := client.call(executionContext, packagesFindByNvreaMethodConstant, []any{reference.Name, reference.Version, reference.Release, epochValue, reference.Architecture}, &payloads)
	if callError != nil {
		return 0, callError
	}
	if len(payloads) == 0 {
		return 0, fmt.Errorf(packageLookupFailureTemplateConstant, reference)
	}
	return payloads[0].ID, nil
}

// AddPackage adds a package build to a channel.
func (client *Client) AddPackage(executionContext context.Context, channelLabel string, reference catalog.PackageReference) error {
	packageIdentifier, lookupError := client.findPackageIdentifier(executionContext, reference)
	if lookupError != nil {
		return lookupError
	}
	return client.call(executionContext, channelAddPackagesMethodConstant, []any{channelLabel, []int64{packageIdentifier}}, nil)
}

// RemovePackage removes a package build from a channel.
func (client *Client) RemovePackage(executionContext context.Context, channelLabel string, reference catalog.PackageReference) error {
	packageIdentifier, lookupError := client.findPackageIdentifier(executionContext, reference)
	if lookupError != nil {
		return lookupError
	}
	return client.call(executionContext, channelRemovePackagesMethod, []any{channelLabel, []int64{packageIdentifier}}, nil)
}

// ListSystems lists the systems subscribed to a channel.
func (client *Client) ListSystems(executionContext context.Context, channelLabel string) ([]catalog.SystemID, error) {
	var payloads []systemPayload
	callError := client.call(executionContext, channelListSystemsMethodConstant, []any{channelLabel}, &payloads)
	if callError != nil {
		if isNotFoundFault(callError) {
			return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
		}
		return nil, callError
	}

	systemIdentifiers := make([]catalog.SystemID, 0, len(payloads))
	for _, payload := range payloads {
		systemIdentifiers = append(systemIdentifiers, catalog.SystemID(payload.ID))
	}
	return systemIdentifiers, nil
}

// GetInstalledPackages lists the packages installed on a system.
func (client *Client) GetInstalledPackages(executionContext context.Context, systemID catalog.SystemID) ([]catalog.PackageReference, error) {
	var payloads []packagePayload
	callError := client.call(executionContext, systemListPackagesMethodConstant, []any{int64(systemID)}, &payloads)
	if callError != nil {
		if isNotFoundFault(callError) {
			return nil, catalog.NotFoundError{SystemID: systemID}
		}
		return nil, callError
	}

	references := make([]catalog.PackageReference, 0, len(payloads))
	for _, payload := range payloads {
		references = append(references, referenceFromPayload(payload))
	}
	return references, nil
}

// SetInstalledPackage schedules the referenced build for installation on a
// system, replacing the currently installed build of the same package.
func (client *Client) SetInstalledPackage(executionContext context.Context, systemID catalog.SystemID, reference catalog.PackageReference) error {
	packageIdentifier, lookupError := client.findPackageIdentifier(executionContext, reference)
	if lookupError != nil {
		return lookupError
	}
	return client.call(executionContext, systemScheduleInstallMethod, []any{int64(systemID), []int64{packageIdentifier}, time.Now()}, nil)
}

// SubscribeSystem points a system's base channel subscription at the
// provided channel. Child channels go through SubscribeChildChannels; the
// server rejects setBaseChannel for parented channels.
func (client *Client) SubscribeSystem(executionContext context.Context, systemID catalog.SystemID, channelLabel string) error {
	return client.call(executionContext, systemSetBaseChannelMethodConstant, []any{int64(systemID), channelLabel}, nil)
}

// SubscribeChildChannels subscribes a system to child channels of its
// current base channel.
func (client *Client) SubscribeChildChannels(executionContext context.Context, systemID catalog.SystemID, channelLabels []string) error {
	return client.call(executionContext, systemSetChildChannelsMethod, []any{int64(systemID), channelLabels}, nil)
}

// UnsubscribeSystem clears a system's channel subscriptions.
func (client *Client) UnsubscribeSystem(executionContext context.Context, systemID catalog.SystemID) error {
	if childError := client.call(executionContext, systemSetChildChannelsMethod, []any{int64(systemID), []string{}}, nil); childError != nil {
		return childError
	}
	return client.call(executionContext, systemSetBaseChannelMethodConstant, []any{int64(systemID), ""}, nil)
}

// DeleteSystem removes a system's registration from the catalog server.
func (client *Client) DeleteSystem(executionContext context.Context, systemID catalog.SystemID) error {
	return client.call(executionContext, systemDeleteSystemsMethodConstant, []any{[]int64{int64(systemID)}}, nil)
}

func channelFromPayload(payload channelDetailsPayload) catalog.Channel {
	return catalog.Channel{
		ID:          catalog.ChannelID(payload.ID),
		Label:       payload.Label,
		Name:        payload.Name,
		Summary:     payload.Summary,
		ParentLabel: payload.ParentLabel,
	}
}

func referenceFromPayload(payload packagePayload) catalog.PackageReference {
	reference := catalog.PackageReference{
		Name:         payload.Name,
		Version:      payload.Version,
		Release:      payload.Release,
		Architecture: payload.Arch,
	}
	if trimmedEpoch := strings.TrimSpace(payload.Epoch); len(trimmedEpoch) > 0 {
		epochValue := trimmedEpoch
		reference.Epoch = &epochValue
	}
	return reference
}
