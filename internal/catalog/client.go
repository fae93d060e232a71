package catalog

import "context"

// CreateChannelRequest describes a channel creation, optionally seeding the
// new channel with the full package set of an existing channel.
type CreateChannelRequest struct {
	Label            string
	Name             string
	Summary          string
	ParentLabel      string
	CopyPackagesFrom string
}

// Client is the remote catalog capability surface consumed by the channel
// lifecycle engines. Implementations are responsible for transport-level
// timeouts; engines treat any returned error as a per-item failure.
type Client interface {
	GetChannel(executionContext context.Context, channelLabel string) (Channel, error)
	ListChildren(executionContext context.Context, channelLabel string) ([]Channel, error)
	CreateChannel(executionContext context.Context, request CreateChannelRequest) (Channel, error)
	DeleteChannel(executionContext context.Context, channelLabel string) error
	ListPackages(executionContext context.Context, channelLabel string) ([]PackageReference, error)
	AddPackage(executionContext context.Context, channelLabel string, reference PackageReference) error
	RemovePackage(executionContext context.Context, channelLabel string, reference PackageReference) error
	ListSystems(executionContext context.Context, channelLabel string) ([]SystemID, error)
	GetInstalledPackages(executionContext context.Context, systemID SystemID) ([]PackageReference, error)
	SetInstalledPackage(executionContext context.Context, systemID SystemID, reference PackageReference) error
	SubscribeSystem(executionContext context.Context, systemID SystemID, channelLabel string) error
	SubscribeChildChannels(executionContext context.Context, systemID SystemID, channelLabels []string) error
	UnsubscribeSystem(executionContext context.Context, systemID SystemID) error
	DeleteSystem(executionContext context.Context, systemID SystemID) error
}
