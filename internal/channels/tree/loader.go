// Package tree loads immutable per-operation snapshots of a channel and its
// direct children from the catalog server.
package tree

import (
	"context"
	"errors"

	"github.com/peteches/houston/internal/catalog"
)

const catalogClientMissingMessageConstant = "catalog client not configured"

// ErrCatalogClientNotConfigured indicates the loader was built without a client.
var ErrCatalogClientNotConfigured = errors.New(catalogClientMissingMessageConstant)

// Tree is a point-in-time snapshot of a base channel and its direct
// children. The hierarchy is single-level: children never have children.
// Mutating engine operations do not update an already-loaded tree; callers
// reload to observe fresh server state.
type Tree struct {
	Base     catalog.Channel
	Children []catalog.Channel
}

// PackageIndex maps a channel's package set by name+architecture, keeping
// only the highest build per package.
func PackageIndex(channel catalog.Channel) map[string]catalog.PackageReference {
	index := map[string]catalog.PackageReference{}
	for _, reference := range channel.Packages {
		if current, present := index[reference.Key()]; !present || reference.Newer(current) {
			index[reference.Key()] = reference
		}
	}
	return index
}

// Loader fetches channel tree snapshots.
type Loader struct {
	catalogClient catalog.Client
}

// NewLoader constructs a Loader backed by the provided catalog client.
func NewLoader(catalogClient catalog.Client) (*Loader, error) {
	if catalogClient == nil {
		return nil, ErrCatalogClientNotConfigured
	}
	return &Loader{catalogClient: catalogClient}, nil
}

// Load fetches the channel, its package set and subscribers, and one fetch
// per declared child. A missing channel yields catalog.NotFoundError.
func (loader *Loader) Load(executionContext context.Context, channelLabel string) (Tree, error) {
	baseChannel, baseError := loader.loadChannel(executionContext, channelLabel)
	if baseError != nil {
		return Tree{}, baseError
	}

	childChannels, childrenError := loader.catalogClient.ListChildren(executionContext, channelLabel)
	if childrenError != nil {
		return Tree{}, childrenError
	}

	loadedChildren := make([]catalog.Channel, 0, len(childChannels))
	for _, childChannel := range childChannels {
		loadedChild, childError := loader.loadChannel(executionContext, childChannel.Label)
		if childError != nil {
			return Tree{}, childError
		}
		loadedChildren = append(loadedChildren, loadedChild)
	}

	return Tree{Base: baseChannel, Children: loadedChildren}, nil
}

func (loader *Loader) loadChannel(executionContext context.Context, channelLabel string) (catalog.Channel, error) {
	channel, channelError := loader.catalogClient.GetChannel(executionContext, channelLabel)
	if channelError != nil {
		return catalog.Channel{}, channelError
	}

	if channel.Packages == nil {
		packages, packagesError := loader.catalogClient.ListPackages(executionContext, channelLabel)
		if packagesError != nil {
			return catalog.Channel{}, packagesError
		}
		channel.Packages = packages
	}

	if channel.SystemIDs == nil {
		systemIdentifiers, systemsError := loader.catalogClient.ListSystems(executionContext, channelLabel)
		if systemsError != nil {
			return catalog.Channel{}, systemsError
		}
		channel.SystemIDs = systemIdentifiers
	}

	return channel, nil
}
