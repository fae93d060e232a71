// Package testsupport provides an in-memory catalog server used by the
// engine test suites, with scriptable per-call failures.
package testsupport

import (
	"context"
	"fmt"
	"sync"

	"github.com/peteches/houston/internal/catalog"
)

const failureKeyTemplateConstant = "%s/%s"

// MemoryCatalog is an in-memory catalog.Client implementation.
type MemoryCatalog struct {
	mutex    sync.Mutex
	channels map[string]*memoryChannel
	systems  map[catalog.SystemID]*memorySystem
	failures map[string]error
	calls    []string
}

type memoryChannel struct {
	channel  catalog.Channel
	packages []catalog.PackageReference
}

type memorySystem struct {
	subscribedChannels []string
	installed          map[string]catalog.PackageReference
}

// NewMemoryCatalog constructs an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		channels: map[string]*memoryChannel{},
		systems:  map[catalog.SystemID]*memorySystem{},
		failures: map[string]error{},
	}
}

// SeedChannel registers a channel with the provided package set, wiring the
// parent's child list when a parent label is present.
func (memory *MemoryCatalog) SeedChannel(channel catalog.Channel, packages ...catalog.PackageReference) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()

	memory.channels[channel.Label] = &memoryChannel{channel: channel, packages: append([]catalog.PackageReference{}, packages...)}
	if len(channel.ParentLabel) > 0 {
		if parent, parentExists := memory.channels[channel.ParentLabel]; parentExists {
			parent.channel.ChildLabels = append(parent.channel.ChildLabels, channel.Label)
		}
	}
}

// SeedSystem registers a system subscribed to a channel with the provided
// installed package set.
func (memory *MemoryCatalog) SeedSystem(systemID catalog.SystemID, channelLabel string, installed ...catalog.PackageReference) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()

	installedByKey := map[string]catalog.PackageReference{}
	for _, reference := range installed {
		installedByKey[reference.Key()] = reference
	}
	memory.systems[systemID] = &memorySystem{subscribedChannels: []string{channelLabel}, installed: installedByKey}
}

// FailCall scripts an error for every invocation of callName targeting the
// provided entity. An empty target fails every invocation of the call.
func (memory *MemoryCatalog) FailCall(callName string, target string, failure error) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	memory.failures[fmt.Sprintf(failureKeyTemplateConstant, callName, target)] = failure
}

// CallCount returns the number of remote calls issued so far.
func (memory *MemoryCatalog) CallCount() int {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	return len(memory.calls)
}

// Calls returns the ordered call log.
func (memory *MemoryCatalog) Calls() []string {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	return append([]string{}, memory.calls...)
}

// ChannelExists reports whether a channel label is registered.
func (memory *MemoryCatalog) ChannelExists(channelLabel string) bool {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	_, exists := memory.channels[channelLabel]
	return exists
}

// ChannelPackages returns a copy of a channel's package set.
func (memory *MemoryCatalog) ChannelPackages(channelLabel string) []catalog.PackageReference {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if state, exists := memory.channels[channelLabel]; exists {
		return append([]catalog.PackageReference{}, state.packages...)
	}
	return nil
}

// SystemSubscriptions returns the channels a system is subscribed to.
func (memory *MemoryCatalog) SystemSubscriptions(systemID catalog.SystemID) []string {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if state, exists := memory.systems[systemID]; exists {
		return append([]string{}, state.subscribedChannels...)
	}
	return nil
}

// InstalledPackage returns the installed build of the referenced package on
// a system.
func (memory *MemoryCatalog) InstalledPackage(systemID catalog.SystemID, packageKey string) (catalog.PackageReference, bool) {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if state, exists := memory.systems[systemID]; exists {
		reference, found := state.installed[packageKey]
		return reference, found
	}
	return catalog.PackageReference{}, false
}

// SystemExists reports whether a system is registered.
func (memory *MemoryCatalog) SystemExists(systemID catalog.SystemID) bool {
	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	_, exists := memory.systems[systemID]
	return exists
}

func (memory *MemoryCatalog) beginCall(executionContext context.Context, callName string, target string) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	memory.calls = append(memory.calls, fmt.Sprintf(failureKeyTemplateConstant, callName, target))

	if failure, scripted := memory.failures[fmt.Sprintf(failureKeyTemplateConstant, callName, target)]; scripted {
		return failure
	}
	if failure, scripted := memory.failures[fmt.Sprintf(failureKeyTemplateConstant, callName, "")]; scripted {
		return failure
	}
	return nil
}

// GetChannel implements catalog.Client.
func (memory *MemoryCatalog) GetChannel(executionContext context.Context, channelLabel string) (catalog.Channel, error) {
	if callError := memory.beginCall(executionContext, "get_channel", channelLabel); callError != nil {
		return catalog.Channel{}, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return catalog.Channel{}, catalog.NotFoundError{ChannelLabel: channelLabel}
	}

	channel := state.channel
	channel.ChildLabels = append([]string{}, state.channel.ChildLabels...)
	channel.Packages = append([]catalog.PackageReference{}, state.packages...)
	channel.SystemIDs = memory.subscribedSystemsLocked(channelLabel)
	return channel, nil
}

func (memory *MemoryCatalog) subscribedSystemsLocked(channelLabel string) []catalog.SystemID {
	systemIdentifiers := []catalog.SystemID{}
	for systemID, state := range memory.systems {
		for _, subscription := range state.subscribedChannels {
			if subscription == channelLabel {
				systemIdentifiers = append(systemIdentifiers, systemID)
				break
			}
		}
	}
	return systemIdentifiers
}

// ListChildren implements catalog.Client.
func (memory *MemoryCatalog) ListChildren(executionContext context.Context, channelLabel string) ([]catalog.Channel, error) {
	if callError := memory.beginCall(executionContext, "list_children", channelLabel); callError != nil {
		return nil, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
	}

	children := []catalog.Channel{}
	for _, childLabel := range state.channel.ChildLabels {
		if childState, childExists := memory.channels[childLabel]; childExists {
			children = append(children, childState.channel)
		}
	}
	return children, nil
}

// CreateChannel implements catalog.Client.
func (memory *MemoryCatalog) CreateChannel(executionContext context.Context, request catalog.CreateChannelRequest) (catalog.Channel, error) {
	if callError := memory.beginCall(executionContext, "create_channel", request.Label); callError != nil {
		return catalog.Channel{}, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()

	created := catalog.Channel{
		ID:          catalog.ChannelID(len(memory.channels) + 1),
		Label:       request.Label,
		Name:        request.Name,
		Summary:     request.Summary,
		ParentLabel: request.ParentLabel,
	}

	var seededPackages []catalog.PackageReference
	if len(request.CopyPackagesFrom) > 0 {
		source, sourceExists := memory.channels[request.CopyPackagesFrom]
		if !sourceExists {
			return catalog.Channel{}, catalog.NotFoundError{ChannelLabel: request.CopyPackagesFrom}
		}
		seededPackages = append([]catalog.PackageReference{}, source.packages...)
	}

	memory.channels[created.Label] = &memoryChannel{channel: created, packages: seededPackages}
	if len(request.ParentLabel) > 0 {
		if parent, parentExists := memory.channels[request.ParentLabel]; parentExists {
			parent.channel.ChildLabels = append(parent.channel.ChildLabels, created.Label)
		}
	}
	return created, nil
}

// DeleteChannel implements catalog.Client.
func (memory *MemoryCatalog) DeleteChannel(executionContext context.Context, channelLabel string) error {
	if callError := memory.beginCall(executionContext, "delete_channel", channelLabel); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return catalog.NotFoundError{ChannelLabel: channelLabel}
	}

	if len(state.channel.ParentLabel) > 0 {
		if parent, parentExists := memory.channels[state.channel.ParentLabel]; parentExists {
			remainingChildren := []string{}
			for _, childLabel := range parent.channel.ChildLabels {
				if childLabel != channelLabel {
					remainingChildren = append(remainingChildren, childLabel)
				}
			}
			parent.channel.ChildLabels = remainingChildren
		}
	}
	delete(memory.channels, channelLabel)
	return nil
}

// ListPackages implements catalog.Client.
func (memory *MemoryCatalog) ListPackages(executionContext context.Context, channelLabel string) ([]catalog.PackageReference, error) {
	if callError := memory.beginCall(executionContext, "list_packages", channelLabel); callError != nil {
		return nil, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
	}
	return append([]catalog.PackageReference{}, state.packages...), nil
}

// AddPackage implements catalog.Client.
func (memory *MemoryCatalog) AddPackage(executionContext context.Context, channelLabel string, reference catalog.PackageReference) error {
	if callError := memory.beginCall(executionContext, "add_package", channelLabel); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return catalog.NotFoundError{ChannelLabel: channelLabel}
	}

	for _, existing := range state.packages {
		if existing.SameBuild(reference) {
			return nil
		}
	}
	state.packages = append(state.packages, reference)
	return nil
}

// RemovePackage implements catalog.Client.
func (memory *MemoryCatalog) RemovePackage(executionContext context.Context, channelLabel string, reference catalog.PackageReference) error {
	if callError := memory.beginCall(executionContext, "remove_package", channelLabel); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.channels[channelLabel]
	if !exists {
		return catalog.NotFoundError{ChannelLabel: channelLabel}
	}

	remaining := []catalog.PackageReference{}
	for _, existing := range state.packages {
		if !existing.SameBuild(reference) {
			remaining = append(remaining, existing)
		}
	}
	state.packages = remaining
	return nil
}

// ListSystems implements catalog.Client.
func (memory *MemoryCatalog) ListSystems(executionContext context.Context, channelLabel string) ([]catalog.SystemID, error) {
	if callError := memory.beginCall(executionContext, "list_systems", channelLabel); callError != nil {
		return nil, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if _, exists := memory.channels[channelLabel]; !exists {
		return nil, catalog.NotFoundError{ChannelLabel: channelLabel}
	}
	return memory.subscribedSystemsLocked(channelLabel), nil
}

// GetInstalledPackages implements catalog.Client.
func (memory *MemoryCatalog) GetInstalledPackages(executionContext context.Context, systemID catalog.SystemID) ([]catalog.PackageReference, error) {
	if callError := memory.beginCall(executionContext, "get_installed_packages", fmt.Sprint(systemID)); callError != nil {
		return nil, callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.systems[systemID]
	if !exists {
		return nil, catalog.NotFoundError{SystemID: systemID}
	}

	references := []catalog.PackageReference{}
	for _, reference := range state.installed {
		references = append(references, reference)
	}
	return references, nil
}

// SetInstalledPackage implements catalog.Client.
func (memory *MemoryCatalog) SetInstalledPackage(executionContext context.Context, systemID catalog.SystemID, reference catalog.PackageReference) error {
	if callError := memory.beginCall(executionContext, "set_installed_package", fmt.Sprint(systemID)); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.systems[systemID]
	if !exists {
		return catalog.NotFoundError{SystemID: systemID}
	}
	state.installed[reference.Key()] = reference
	return nil
}

// SubscribeSystem implements catalog.Client.
func (memory *MemoryCatalog) SubscribeSystem(executionContext context.Context, systemID catalog.SystemID, channelLabel string) error {
	if callError := memory.beginCall(executionContext, "subscribe_system", channelLabel); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.systems[systemID]
	if !exists {
		return catalog.NotFoundError{SystemID: systemID}
	}

	channelState, channelExists := memory.channels[channelLabel]
	if !channelExists {
		return catalog.NotFoundError{ChannelLabel: channelLabel}
	}
	if !channelState.channel.IsBase() {
		return catalog.CallError{CallName: "system.setBaseChannel", Cause: fmt.Errorf("channel %s is not a base channel", channelLabel)}
	}

	state.subscribedChannels = []string{channelLabel}
	return nil
}

// SubscribeChildChannels implements catalog.Client.
func (memory *MemoryCatalog) SubscribeChildChannels(executionContext context.Context, systemID catalog.SystemID, channelLabels []string) error {
	if callError := memory.beginCall(executionContext, "subscribe_child_channels", fmt.Sprint(systemID)); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.systems[systemID]
	if !exists {
		return catalog.NotFoundError{SystemID: systemID}
	}

	for _, channelLabel := range channelLabels {
		channelState, channelExists := memory.channels[channelLabel]
		if !channelExists {
			return catalog.NotFoundError{ChannelLabel: channelLabel}
		}
		if channelState.channel.IsBase() {
			return catalog.CallError{CallName: "system.setChildChannels", Cause: fmt.Errorf("channel %s is not a child channel", channelLabel)}
		}
	}

	for _, channelLabel := range channelLabels {
		alreadySubscribed := false
		for _, subscription := range state.subscribedChannels {
			if subscription == channelLabel {
				alreadySubscribed = true
				break
			}
		}
		if !alreadySubscribed {
			state.subscribedChannels = append(state.subscribedChannels, channelLabel)
		}
	}
	return nil
}

// UnsubscribeSystem implements catalog.Client.
func (memory *MemoryCatalog) UnsubscribeSystem(executionContext context.Context, systemID catalog.SystemID) error {
	if callError := memory.beginCall(executionContext, "unsubscribe_system", fmt.Sprint(systemID)); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	state, exists := memory.systems[systemID]
	if !exists {
		return catalog.NotFoundError{SystemID: systemID}
	}
	state.subscribedChannels = nil
	return nil
}

// DeleteSystem implements catalog.Client.
func (memory *MemoryCatalog) DeleteSystem(executionContext context.Context, systemID catalog.SystemID) error {
	if callError := memory.beginCall(executionContext, "delete_system", fmt.Sprint(systemID)); callError != nil {
		return callError
	}

	memory.mutex.Lock()
	defer memory.mutex.Unlock()
	if _, exists := memory.systems[systemID]; !exists {
		return catalog.NotFoundError{SystemID: systemID}
	}
	delete(memory.systems, systemID)
	return nil
}
