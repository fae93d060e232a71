// Package deletion removes channels, handling subscribed systems first and
// cascading to children when asked to.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/migrate"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/tree"
)

const (
	catalogClientMissingMessageConstant = "catalog client not configured"
	channelRequiredMessageConstant      = "channel label must be provided"
	conflictingOptionsMessageConstant   = "migrate-to and delete-systems are mutually exclusive"
	channelHasChildrenMessageConstant   = "channel has child channels; pass recursive to delete them"

	systemItemNameTemplateConstant   = "system-%d"
	systemMigrationFailureTemplate   = "migrating systems off %s: %s"
	systemsUnresolvedMessageConstant = "systems could not be cleared first"
	deletionCompletedMessageConstant = "channel deletion completed"
	logFieldChannelConstant          = "channel"
	logFieldChannelsDeletedConstant  = "channels_deleted"
	logFieldChannelsFailedConstant   = "channels_failed"
	logFieldSystemsProcessedConstant = "systems_processed"
)

// ErrCatalogClientNotConfigured indicates the service was built without a client.
var ErrCatalogClientNotConfigured = errors.New(catalogClientMissingMessageConstant)

// ErrChannelRequired indicates the channel option was empty.
var ErrChannelRequired = errors.New(channelRequiredMessageConstant)

// ErrConflictingOptions indicates both system policies were requested at once.
var ErrConflictingOptions = errors.New(conflictingOptionsMessageConstant)

// ErrChannelHasChildren indicates a non-recursive delete of a base channel
// that still has children.
var ErrChannelHasChildren = errors.New(channelHasChildrenMessageConstant)

// Dependencies enumerates collaborators required by the deletion service.
type Dependencies struct {
	Logger        *zap.Logger
	CatalogClient catalog.Client
}

// Options configures a deletion. MigrateTo moves subscribed systems to the
// named channel first; DeleteSystems removes them from the server instead.
// With neither set, subscribed systems are left orphaned on purpose.
type Options struct {
	Channel          string
	Recursive        bool
	MigrateTo        string
	DeleteSystems    bool
	ConcurrencyLimit int
}

// Result captures the outcome of a deletion. Channels holds one item per
// deleted channel; Systems holds one item per system handled first.
type Result struct {
	Channels *shared.BatchReport
	Systems  *shared.BatchReport
}

// Service deletes channels through the catalog client.
type Service struct {
	logger           *zap.Logger
	catalogClient    catalog.Client
	treeLoader       *tree.Loader
	migrationService *migrate.Service
}

// NewService constructs a deletion Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.CatalogClient == nil {
		return nil, ErrCatalogClientNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	treeLoader, loaderError := tree.NewLoader(dependencies.CatalogClient)
	if loaderError != nil {
		return nil, loaderError
	}

	migrationService, migrationError := migrate.NewService(migrate.Dependencies{Logger: logger, CatalogClient: dependencies.CatalogClient})
	if migrationError != nil {
		return nil, migrationError
	}

	return &Service{
		logger:           logger,
		catalogClient:    dependencies.CatalogClient,
		treeLoader:       treeLoader,
		migrationService: migrationService,
	}, nil
}

// Delete removes the channel, children before the parent when Recursive is
// set. Each channel has its subscribed systems handled before the channel
// itself goes away. Precondition violations fail before any remote call.
func (service *Service) Delete(executionContext context.Context, options Options) (Result, error) {
	trimmedChannel := strings.TrimSpace(options.Channel)
	if len(trimmedChannel) == 0 {
		return Result{}, ErrChannelRequired
	}
	if len(strings.TrimSpace(options.MigrateTo)) > 0 && options.DeleteSystems {
		return Result{}, ErrConflictingOptions
	}

	channelTree, loadError := service.treeLoader.Load(executionContext, trimmedChannel)
	if loadError != nil {
		return Result{}, loadError
	}
	if len(channelTree.Children) > 0 && !options.Recursive {
		return Result{}, ErrChannelHasChildren
	}

	concurrencyLimit := options.ConcurrencyLimit
	if concurrencyLimit <= 0 {
		concurrencyLimit = shared.DefaultConcurrencyLimit
	}

	result := Result{Channels: &shared.BatchReport{}, Systems: &shared.BatchReport{}}

	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(concurrencyLimit)
	for _, childChannel := range channelTree.Children {
		workerGroup.Go(func() error {
			if contextError := executionContext.Err(); contextError != nil {
				result.Channels.Record(shared.ItemOutcome{Name: childChannel.Label, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}
			service.deleteChannel(executionContext, childChannel, options, result)
			return nil
		})
	}
	_ = workerGroup.Wait()

	// The parent goes last so a child failure never leaves an unreachable
	// orphaned subtree on the server.
	if contextError := executionContext.Err(); contextError != nil {
		result.Channels.Record(shared.ItemOutcome{Name: channelTree.Base.Label, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
	} else {
		service.deleteChannel(executionContext, channelTree.Base, options, result)
	}

	service.logger.Info(
		deletionCompletedMessageConstant,
		zap.String(logFieldChannelConstant, trimmedChannel),
		zap.Int(logFieldChannelsDeletedConstant, result.Channels.Succeeded()),
		zap.Int(logFieldChannelsFailedConstant, result.Channels.Failed()),
		zap.Int(logFieldSystemsProcessedConstant, len(result.Systems.Items)),
	)

	return result, nil
}

// deleteChannel clears the channel's systems per the configured policy and
// then deletes the channel. A failed system leaves the channel in place.
func (service *Service) deleteChannel(executionContext context.Context, channel catalog.Channel, options Options, result Result) {
	systemsCleared := service.clearSystems(executionContext, channel, options, result.Systems)
	if !systemsCleared {
		result.Channels.Record(shared.ItemOutcome{
			Name:   channel.Label,
			Status: shared.OutcomeFailed,
			Error:  systemsUnresolvedMessageConstant,
		})
		return
	}

	if deletionError := service.catalogClient.DeleteChannel(executionContext, channel.Label); deletionError != nil {
		result.Channels.Record(shared.ItemOutcome{Name: channel.Label, Status: shared.OutcomeFailed, Error: deletionError.Error()})
		return
	}
	result.Channels.Record(shared.ItemOutcome{Name: channel.Label, Status: shared.OutcomeSucceeded})
}

func (service *Service) clearSystems(executionContext context.Context, channel catalog.Channel, options Options, systemsReport *shared.BatchReport) bool {
	if len(channel.SystemIDs) == 0 {
		return true
	}

	migrateTo := strings.TrimSpace(options.MigrateTo)
	if len(migrateTo) > 0 {
		migrationReport, migrationError := service.migrationService.Migrate(executionContext, migrate.Options{
			FromChannel:      channel.Label,
			ToChannel:        migrateTo,
			SystemIDs:        channel.SystemIDs,
			ConcurrencyLimit: options.ConcurrencyLimit,
		})
		if migrationError != nil {
			for _, systemID := range channel.SystemIDs {
				systemsReport.Record(shared.ItemOutcome{
					Name:   fmt.Sprintf(systemItemNameTemplateConstant, systemID),
					Status: shared.OutcomeFailed,
					Error:  fmt.Sprintf(systemMigrationFailureTemplate, channel.Label, migrationError.Error()),
				})
			}
			return false
		}
		cleared := true
		for _, outcome := range migrationReport.Items {
			systemsReport.Record(outcome)
			if outcome.Status == shared.OutcomeFailed || outcome.Status == shared.OutcomeNotAttempted {
				cleared = false
			}
		}
		return cleared
	}

	if options.DeleteSystems {
		cleared := true
		for _, systemID := range channel.SystemIDs {
			itemName := fmt.Sprintf(systemItemNameTemplateConstant, systemID)
			if deletionError := service.catalogClient.DeleteSystem(executionContext, systemID); deletionError != nil {
				systemsReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Error: deletionError.Error()})
				cleared = false
				continue
			}
			systemsReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeSucceeded})
		}
		return cleared
	}

	// Orphaning is explicit operator intent; the subscription just becomes
	// invalid when the channel goes away.
	return true
}
