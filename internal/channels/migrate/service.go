// Package migrate moves systems between channels, reconciling installed
// package versions against the destination's offered versions.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/tree"
)

const (
	catalogClientMissingMessageConstant = "catalog client not configured"
	fromChannelRequiredMessageConstant  = "source channel label must be provided"
	toChannelRequiredMessageConstant    = "destination channel label must be provided"

	versionConflictDetailTemplateConstant = "installed %s is newer than offered %s; pass downgrade to replace it"
	unavailableDetailTemplateConstant     = "package %s not offered by %s"

	systemItemNameTemplateConstant = "system-%d"

	migrationCompletedMessageConstant = "system migration completed"
	logFieldFromChannelConstant       = "from_channel"
	logFieldToChannelConstant         = "to_channel"
	logFieldSystemsSucceeded          = "systems_succeeded"
	logFieldSystemsFailedConstant     = "systems_failed"
	logFieldSystemsWarnedConstant     = "systems_warned"
)

// ErrCatalogClientNotConfigured indicates the service was built without a client.
var ErrCatalogClientNotConfigured = errors.New(catalogClientMissingMessageConstant)

// ErrFromChannelRequired indicates the source channel option was empty.
var ErrFromChannelRequired = errors.New(fromChannelRequiredMessageConstant)

// ErrToChannelRequired indicates the destination channel option was empty.
var ErrToChannelRequired = errors.New(toChannelRequiredMessageConstant)

// Dependencies enumerates collaborators required by the migration service.
type Dependencies struct {
	Logger        *zap.Logger
	CatalogClient catalog.Client
}

// Options configures a migration batch. An empty SystemIDs migrates every
// system subscribed to the source channel.
type Options struct {
	FromChannel      string
	ToChannel        string
	SystemIDs        []catalog.SystemID
	Recursive        bool
	Downgrade        bool
	NoUpgrade        bool
	ConcurrencyLimit int
}

// Service migrates systems between channels through the catalog client.
type Service struct {
	logger        *zap.Logger
	catalogClient catalog.Client
	treeLoader    *tree.Loader
}

// NewService constructs a migration Service from the provided dependencies.
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

	return &Service{logger: logger, catalogClient: dependencies.CatalogClient, treeLoader: treeLoader}, nil
}

// Migrate re-subscribes each selected system to the destination channel,
// reconciling installed package versions against the destination's offered
// set first. The batch is best-effort: a failing system is recorded and the
// batch continues; cancellation stops dispatch and marks the remainder
// not attempted.
func (service *Service) Migrate(executionContext context.Context, options Options) (*shared.BatchReport, error) {
	trimmedFrom := strings.TrimSpace(options.FromChannel)
	if len(trimmedFrom) == 0 {
		return nil, ErrFromChannelRequired
	}
	trimmedTo := strings.TrimSpace(options.ToChannel)
	if len(trimmedTo) == 0 {
		return nil, ErrToChannelRequired
	}

	destinationTree, destinationError := service.treeLoader.Load(executionContext, trimmedTo)
	if destinationError != nil {
		return nil, destinationError
	}
	// Reconciliation always runs against the base destination's offered set,
	// even when recursive subscription includes children.
	offeredPackages := tree.PackageIndex(destinationTree.Base)

	selectedSystems := options.SystemIDs
	if len(selectedSystems) == 0 {
		sourceSystems, sourceError := service.catalogClient.ListSystems(executionContext, trimmedFrom)
		if sourceError != nil {
			return nil, sourceError
		}
		selectedSystems = sourceSystems
	}

	report := &shared.BatchReport{}
	concurrencyLimit := options.ConcurrencyLimit
	if concurrencyLimit <= 0 {
		concurrencyLimit = shared.DefaultConcurrencyLimit
	}

	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(concurrencyLimit)
	for _, systemID := range selectedSystems {
		workerGroup.Go(func() error {
			itemName := fmt.Sprintf(systemItemNameTemplateConstant, systemID)
			if contextError := executionContext.Err(); contextError != nil {
				report.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}
			report.Record(service.migrateSystem(executionContext, systemID, itemName, destinationTree, offeredPackages, options))
			return nil
		})
	}
	_ = workerGroup.Wait()

	service.logger.Info(
		migrationCompletedMessageConstant,
		zap.String(logFieldFromChannelConstant, trimmedFrom),
		zap.String(logFieldToChannelConstant, trimmedTo),
		zap.Int(logFieldSystemsSucceeded, report.Succeeded()),
		zap.Int(logFieldSystemsWarnedConstant, report.Warned()),
		zap.Int(logFieldSystemsFailedConstant, report.Failed()),
	)

	return report, nil
}

func (service *Service) migrateSystem(executionContext context.Context, systemID catalog.SystemID, itemName string, destinationTree tree.Tree, offeredPackages map[string]catalog.PackageReference, options Options) shared.ItemOutcome {
	installedPackages, installedError := service.catalogClient.GetInstalledPackages(executionContext, systemID)
	if installedError != nil {
		return shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Error: installedError.Error()}
	}

	warnings := []shared.Warning{}
	for _, installedReference := range installedPackages {
		offeredReference, offered := offeredPackages[installedReference.Key()]
		if !offered {
			warnings = append(warnings, shared.Warning{
				Type:    shared.WarningUnavailable,
				Package: installedReference.Key(),
				Detail:  fmt.Sprintf(unavailableDetailTemplateConstant, installedReference.String(), destinationTree.Base.Label),
			})
			continue
		}

		switch {
		case offeredReference.Newer(installedReference):
			if options.NoUpgrade {
				continue
			}
			if installError := service.catalogClient.SetInstalledPackage(executionContext, systemID, offeredReference); installError != nil {
				return shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Warnings: warnings, Error: installError.Error()}
			}
		case offeredReference.Older(installedReference):
			if !options.Downgrade {
				warnings = append(warnings, shared.Warning{
					Type:    shared.WarningVersionConflict,
					Package: installedReference.Key(),
					Detail:  fmt.Sprintf(versionConflictDetailTemplateConstant, installedReference.String(), offeredReference.String()),
				})
				continue
			}
			if installError := service.catalogClient.SetInstalledPackage(executionContext, systemID, offeredReference); installError != nil {
				return shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Warnings: warnings, Error: installError.Error()}
			}
		}
	}

	if subscribeError := service.catalogClient.SubscribeSystem(executionContext, systemID, destinationTree.Base.Label); subscribeError != nil {
		return shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Warnings: warnings, Error: subscribeError.Error()}
	}

	if options.Recursive && len(destinationTree.Children) > 0 {
		childLabels := make([]string, 0, len(destinationTree.Children))
		for _, childChannel := range destinationTree.Children {
			childLabels = append(childLabels, childChannel.Label)
		}
		if subscribeError := service.catalogClient.SubscribeChildChannels(executionContext, systemID, childLabels); subscribeError != nil {
			return shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Warnings: warnings, Error: subscribeError.Error()}
		}
	}

	status := shared.OutcomeSucceeded
	if len(warnings) > 0 {
		status = shared.OutcomeWarned
	}
	return shared.ItemOutcome{Name: itemName, Status: status, Warnings: warnings}
}
