// Package clone creates point-in-time copies of channel trees under
// deterministically derived names.
package clone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/naming"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/tree"
)

const (
	catalogClientMissingMessageConstant  = "catalog client not configured"
	sourceChannelRequiredMessageConstant = "source channel label must be provided"
	sourceNotBaseChannelMessageConstant  = "source channel is not a base channel"
	baseCreationFailureTemplateConstant  = "unable to create base channel clone %s: %w"
	cloneSummaryTemplateConstant         = "%s clone of %s for project %s tag %s"

	cloneCompletedMessageConstant  = "channel clone completed"
	logFieldSourceChannelConstant  = "source_channel"
	logFieldBaseLabelConstant      = "base_label"
	logFieldChildrenCloned         = "children_succeeded"
	logFieldChildrenFailedConstant = "children_failed"
)

// ErrCatalogClientNotConfigured indicates the service was built without a client.
var ErrCatalogClientNotConfigured = errors.New(catalogClientMissingMessageConstant)

// ErrSourceChannelRequired indicates the source channel option was empty.
var ErrSourceChannelRequired = errors.New(sourceChannelRequiredMessageConstant)

// ErrSourceNotBaseChannel indicates the clone source has a parent channel.
var ErrSourceNotBaseChannel = errors.New(sourceNotBaseChannelMessageConstant)

// Dependencies enumerates collaborators required by the clone service.
type Dependencies struct {
	Logger        *zap.Logger
	CatalogClient catalog.Client
	Clock         shared.Clock
}

// Options configures a clone operation.
type Options struct {
	SourceChannel    string
	Project          string
	Tag              string
	Stage            string
	Rollback         bool
	ConcurrencyLimit int
}

// Result captures the outcome of a clone operation. Report holds one item
// per cloned channel; Rollback is populated only when rollback ran.
type Result struct {
	BaseLabel string
	Report    *shared.BatchReport
	Rollback  *shared.BatchReport
}

// Service clones channel trees through the catalog client.
type Service struct {
	logger        *zap.Logger
	catalogClient catalog.Client
	treeLoader    *tree.Loader
	clock         shared.Clock
}

// NewService constructs a clone Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.CatalogClient == nil {
		return nil, ErrCatalogClientNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}

	treeLoader, loaderError := tree.NewLoader(dependencies.CatalogClient)
	if loaderError != nil {
		return nil, loaderError
	}

	return &Service{logger: logger, catalogClient: dependencies.CatalogClient, treeLoader: treeLoader, clock: clock}, nil
}

// Clone copies the source channel tree under derived names: the base channel
// first, then every child concurrently. Base-channel failure aborts before
// any child is attempted; child failures are recorded per item without
// aborting the batch.
func (service *Service) Clone(executionContext context.Context, options Options) (Result, error) {
	trimmedSource := strings.TrimSpace(options.SourceChannel)
	if len(trimmedSource) == 0 {
		return Result{}, ErrSourceChannelRequired
	}

	sourceTree, loadError := service.treeLoader.Load(executionContext, trimmedSource)
	if loadError != nil {
		return Result{}, loadError
	}
	if !sourceTree.Base.IsBase() {
		return Result{}, ErrSourceNotBaseChannel
	}

	// All names are derived up front so naming violations surface before
	// anything is created on the server.
	baseLabel, baseNameError := naming.DeriveCloneName(options.Project, options.Tag, sourceTree.Base.Label, options.Stage, service.clock)
	if baseNameError != nil {
		return Result{}, baseNameError
	}

	childLabels := make(map[string]string, len(sourceTree.Children))
	for _, childChannel := range sourceTree.Children {
		derivedLabel, childNameError := naming.DeriveCloneName(options.Project, options.Tag, childChannel.Label, options.Stage, service.clock)
		if childNameError != nil {
			return Result{}, childNameError
		}
		childLabels[childChannel.Label] = derivedLabel
	}

	report := &shared.BatchReport{}

	_, baseCreationError := service.catalogClient.CreateChannel(executionContext, catalog.CreateChannelRequest{
		Label:            baseLabel,
		Name:             baseLabel,
		Summary:          fmt.Sprintf(cloneSummaryTemplateConstant, options.Stage, sourceTree.Base.Label, options.Project, options.Tag),
		CopyPackagesFrom: sourceTree.Base.Label,
	})
	if baseCreationError != nil {
		return Result{}, fmt.Errorf(baseCreationFailureTemplateConstant, baseLabel, baseCreationError)
	}
	report.Record(shared.ItemOutcome{Name: baseLabel, Status: shared.OutcomeSucceeded})

	concurrencyLimit := options.ConcurrencyLimit
	if concurrencyLimit <= 0 {
		concurrencyLimit = shared.DefaultConcurrencyLimit
	}

	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(concurrencyLimit)
	for _, childChannel := range sourceTree.Children {
		workerGroup.Go(func() error {
			derivedLabel := childLabels[childChannel.Label]
			if contextError := executionContext.Err(); contextError != nil {
				report.Record(shared.ItemOutcome{Name: derivedLabel, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}

			_, childCreationError := service.catalogClient.CreateChannel(executionContext, catalog.CreateChannelRequest{
				Label:            derivedLabel,
				Name:             derivedLabel,
				Summary:          fmt.Sprintf(cloneSummaryTemplateConstant, options.Stage, childChannel.Label, options.Project, options.Tag),
				ParentLabel:      baseLabel,
				CopyPackagesFrom: childChannel.Label,
			})
			if childCreationError != nil {
				report.Record(shared.ItemOutcome{Name: derivedLabel, Status: shared.OutcomeFailed, Error: childCreationError.Error()})
				return nil
			}
			report.Record(shared.ItemOutcome{Name: derivedLabel, Status: shared.OutcomeSucceeded})
			return nil
		})
	}
	_ = workerGroup.Wait()

	result := Result{BaseLabel: baseLabel, Report: report}
	if options.Rollback && report.Failed() > 0 {
		result.Rollback = service.rollbackCreatedChannels(executionContext, report)
	}

	service.logger.Info(
		cloneCompletedMessageConstant,
		zap.String(logFieldSourceChannelConstant, sourceTree.Base.Label),
		zap.String(logFieldBaseLabelConstant, baseLabel),
		zap.Int(logFieldChildrenCloned, report.Succeeded()-1),
		zap.Int(logFieldChildrenFailedConstant, report.Failed()),
	)

	return result, nil
}

// rollbackCreatedChannels deletes every channel the failed run managed to
// create, children before the base. One attempt per channel; residual
// failures are surfaced, never retried.
func (service *Service) rollbackCreatedChannels(executionContext context.Context, report *shared.BatchReport) *shared.BatchReport {
	rollbackReport := &shared.BatchReport{}

	createdLabels := []string{}
	for _, outcome := range report.Items {
		if outcome.Status == shared.OutcomeSucceeded {
			createdLabels = append(createdLabels, outcome.Name)
		}
	}

	for labelIndex := len(createdLabels) - 1; labelIndex >= 0; labelIndex-- {
		channelLabel := createdLabels[labelIndex]
		if deletionError := service.catalogClient.DeleteChannel(executionContext, channelLabel); deletionError != nil {
			rollbackReport.Record(shared.ItemOutcome{Name: channelLabel, Status: shared.OutcomeFailed, Error: deletionError.Error()})
			continue
		}
		rollbackReport.Record(shared.ItemOutcome{Name: channelLabel, Status: shared.OutcomeSucceeded})
	}

	return rollbackReport
}
