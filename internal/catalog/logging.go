package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	callCompletedMessageConstant  = "catalog call completed"
	callFailedMessageConstant     = "catalog call failed"
	logFieldCallNameConstant      = "call_name"
	logFieldChannelLabelConstant  = "channel_label"
	logFieldChannelLabelsConstant = "channel_labels"
	logFieldSystemIDConstant      = "system_id"
	logFieldDurationConstant      = "duration"

	callNameGetChannelConstant             = "get_channel"
	callNameListChildrenConstant           = "list_children"
	callNameCreateChannelConstant          = "create_channel"
	callNameDeleteChannelConstant          = "delete_channel"
	callNameListPackagesConstant           = "list_packages"
	callNameAddPackageConstant             = "add_package"
	callNameRemovePackageConstant          = "remove_package"
	callNameListSystemsConstant            = "list_systems"
	callNameGetInstalledPackagesConstant   = "get_installed_packages"
	callNameSetInstalledPackageConstant    = "set_installed_package"
	callNameSubscribeSystemConstant        = "subscribe_system"
	callNameSubscribeChildChannelsConstant = "subscribe_child_channels"
	callNameUnsubscribeSystemConstant      = "unsubscribe_system"
	callNameDeleteSystemConstant           = "delete_system"
)

// LoggingClient decorates a Client so every remote call emits one structured
// log event with its name, target, duration, and outcome.
type LoggingClient struct {
	delegate Client
	logger   *zap.Logger
}

// NewLoggingClient wraps the provided client with call logging.
func NewLoggingClient(delegate Client, logger *zap.Logger) *LoggingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingClient{delegate: delegate, logger: logger}
}

func (client *LoggingClient) logCall(callName string, startedAt time.Time, callError error, fields ...zap.Field) {
	fields = append(fields,
		zap.String(logFieldCallNameConstant, callName),
		zap.Duration(logFieldDurationConstant, time.Since(startedAt)),
	)
	if callError != nil {
		client.logger.Warn(callFailedMessageConstant, append(fields, zap.Error(callError))...)
		return
	}
	client.logger.Debug(callCompletedMessageConstant, fields...)
}

// GetChannel delegates and logs the call.
func (client *LoggingClient) GetChannel(executionContext context.Context, channelLabel string) (Channel, error) {
	startedAt := time.Now()
	channel, callError := client.delegate.GetChannel(executionContext, channelLabel)
	client.logCall(callNameGetChannelConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return channel, callError
}

// ListChildren delegates and logs the call.
func (client *LoggingClient) ListChildren(executionContext context.Context, channelLabel string) ([]Channel, error) {
	startedAt := time.Now()
	children, callError := client.delegate.ListChildren(executionContext, channelLabel)
	client.logCall(callNameListChildrenConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return children, callError
}

// CreateChannel delegates and logs the call.
func (client *LoggingClient) CreateChannel(executionContext context.Context, request CreateChannelRequest) (Channel, error) {
	startedAt := time.Now()
	channel, callError := client.delegate.CreateChannel(executionContext, request)
	client.logCall(callNameCreateChannelConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, request.Label))
	return channel, callError
}

// DeleteChannel delegates and logs the call.
func (client *LoggingClient) DeleteChannel(executionContext context.Context, channelLabel string) error {
	startedAt := time.Now()
	callError := client.delegate.DeleteChannel(executionContext, channelLabel)
	client.logCall(callNameDeleteChannelConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return callError
}

// ListPackages delegates and logs the call.
func (client *LoggingClient) ListPackages(executionContext context.Context, channelLabel string) ([]PackageReference, error) {
	startedAt := time.Now()
	references, callError := client.delegate.ListPackages(executionContext, channelLabel)
	client.logCall(callNameListPackagesConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return references, callError
}

// AddPackage delegates and logs the call.
func (client *LoggingClient) AddPackage(executionContext context.Context, channelLabel string, reference PackageReference) error {
	startedAt := time.Now()
	callError := client.delegate.AddPackage(executionContext, channelLabel, reference)
	client.logCall(callNameAddPackageConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return callError
}

// RemovePackage delegates and logs the call.
func (client *LoggingClient) RemovePackage(executionContext context.Context, channelLabel string, reference PackageReference) error {
	startedAt := time.Now()
	callError := client.delegate.RemovePackage(executionContext, channelLabel, reference)
	client.logCall(callNameRemovePackageConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return callError
}

// ListSystems delegates and logs the call.
func (client *LoggingClient) ListSystems(executionContext context.Context, channelLabel string) ([]SystemID, error) {
	startedAt := time.Now()
	systemIdentifiers, callError := client.delegate.ListSystems(executionContext, channelLabel)
	client.logCall(callNameListSystemsConstant, startedAt, callError, zap.String(logFieldChannelLabelConstant, channelLabel))
	return systemIdentifiers, callError
}

// GetInstalledPackages delegates and logs the call.
func (client *LoggingClient) GetInstalledPackages(executionContext context.Context, systemID SystemID) ([]PackageReference, error) {
	startedAt := time.Now()
	references, callError := client.delegate.GetInstalledPackages(executionContext, systemID)
	client.logCall(callNameGetInstalledPackagesConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)))
	return references, callError
}

// SetInstalledPackage delegates and logs the call.
func (client *LoggingClient) SetInstalledPackage(executionContext context.Context, systemID SystemID, reference PackageReference) error {
	startedAt := time.Now()
	callError := client.delegate.SetInstalledPackage(executionContext, systemID, reference)
	client.logCall(callNameSetInstalledPackageConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)))
	return callError
}

// SubscribeSystem delegates and logs the call.
func (client *LoggingClient) SubscribeSystem(executionContext context.Context, systemID SystemID, channelLabel string) error {
	startedAt := time.Now()
	callError := client.delegate.SubscribeSystem(executionContext, systemID, channelLabel)
	client.logCall(callNameSubscribeSystemConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)), zap.String(logFieldChannelLabelConstant, channelLabel))
	return callError
}

// SubscribeChildChannels delegates and logs the call.
func (client *LoggingClient) SubscribeChildChannels(executionContext context.Context, systemID SystemID, channelLabels []string) error {
	startedAt := time.Now()
	callError := client.delegate.SubscribeChildChannels(executionContext, systemID, channelLabels)
	client.logCall(callNameSubscribeChildChannelsConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)), zap.Strings(logFieldChannelLabelsConstant, channelLabels))
	return callError
}

// UnsubscribeSystem delegates and logs the call.
func (client *LoggingClient) UnsubscribeSystem(executionContext context.Context, systemID SystemID) error {
	startedAt := time.Now()
	callError := client.delegate.UnsubscribeSystem(executionContext, systemID)
	client.logCall(callNameUnsubscribeSystemConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)))
	return callError
}

// DeleteSystem delegates and logs the call.
func (client *LoggingClient) DeleteSystem(executionContext context.Context, systemID SystemID) error {
	startedAt := time.Now()
	callError := client.delegate.DeleteSystem(executionContext, systemID)
	client.logCall(callNameDeleteSystemConstant, startedAt, callError, zap.Int64(logFieldSystemIDConstant, int64(systemID)))
	return callError
}
