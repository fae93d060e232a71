// Package rollout propagates a channel's package-set delta forward one
// stage at a time, keeping the downstream twin synchronized without
// clobbering its own additions.
package rollout

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
	stateStoreMissingMessageConstant    = "rollout state store not configured"
	channelRequiredMessageConstant      = "channel label must be provided"

	missingStagePrefixTemplateConstant = "channel %s has no recognizable stage prefix"
	terminalStageTemplateConstant      = "channel %s is already at the final stage %s"
	twinCreationFailureTemplate        = "unable to create downstream channel %s: %w"
	twinSummaryTemplateConstant        = "%s rollout target of %s"

	addItemNameTemplateConstant    = "%s add %s"
	removeItemNameTemplateConstant = "%s remove %s"

	rolloutCompletedMessageConstant = "channel rollout completed"
	logFieldSourceChannelConstant   = "source_channel"
	logFieldTargetChannelConstant   = "target_channel"
	logFieldTargetCreatedConstant   = "target_created"
	logFieldItemsSucceededConstant  = "items_succeeded"
	logFieldItemsFailedConstant     = "items_failed"
)

// ErrCatalogClientNotConfigured indicates the service was built without a client.
var ErrCatalogClientNotConfigured = errors.New(catalogClientMissingMessageConstant)

// ErrStateStoreNotConfigured indicates the service was built without a state store.
var ErrStateStoreNotConfigured = errors.New(stateStoreMissingMessageConstant)

// ErrChannelRequired indicates the channel option was empty.
var ErrChannelRequired = errors.New(channelRequiredMessageConstant)

// UnknownStageError indicates a channel whose label carries no configured
// stage prefix, or one already at the final stage.
type UnknownStageError struct {
	ChannelLabel string
	Stage        string
}

// Error describes the unrecognized or terminal stage.
func (stageError UnknownStageError) Error() string {
	if len(stageError.Stage) == 0 {
		return fmt.Sprintf(missingStagePrefixTemplateConstant, stageError.ChannelLabel)
	}
	return fmt.Sprintf(terminalStageTemplateConstant, stageError.ChannelLabel, stageError.Stage)
}

// Dependencies enumerates collaborators required by the rollout service.
type Dependencies struct {
	Logger        *zap.Logger
	CatalogClient catalog.Client
	StateStore    StateStore
	Stages        shared.StageSequence
}

// Options configures a rollout operation.
type Options struct {
	Channel          string
	ConcurrencyLimit int
}

// Result captures the outcome of a rollout. CreatedTarget reports whether
// the downstream twin had to be created; Report holds one item per created
// channel or per package change.
type Result struct {
	TargetLabel   string
	CreatedTarget bool
	Report        *shared.BatchReport
}

// Service advances channel package sets through the stage sequence.
type Service struct {
	logger        *zap.Logger
	catalogClient catalog.Client
	treeLoader    *tree.Loader
	stateStore    StateStore
	stages        shared.StageSequence
}

// NewService constructs a rollout Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.CatalogClient == nil {
		return nil, ErrCatalogClientNotConfigured
	}
	if dependencies.StateStore == nil {
		return nil, ErrStateStoreNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stages := dependencies.Stages
	if len(stages) == 0 {
		stages = shared.DefaultStageSequence
	}

	treeLoader, loaderError := tree.NewLoader(dependencies.CatalogClient)
	if loaderError != nil {
		return nil, loaderError
	}

	return &Service{
		logger:        logger,
		catalogClient: dependencies.CatalogClient,
		treeLoader:    treeLoader,
		stateStore:    dependencies.StateStore,
		stages:        stages,
	}, nil
}

// Rollout advances the channel's package delta to the next stage. A missing
// downstream twin is created with a full package copy, children included.
// An existing twin receives exactly the delta since the last recorded
// synchronization; packages the twin acquired on its own are never touched.
func (service *Service) Rollout(executionContext context.Context, options Options) (Result, error) {
	trimmedChannel := strings.TrimSpace(options.Channel)
	if len(trimmedChannel) == 0 {
		return Result{}, ErrChannelRequired
	}

	currentStage, stageRecognized := service.stages.StageOfLabel(trimmedChannel)
	if !stageRecognized {
		return Result{}, UnknownStageError{ChannelLabel: trimmedChannel}
	}
	nextStage, hasNextStage := service.stages.Next(currentStage)
	if !hasNextStage {
		return Result{}, UnknownStageError{ChannelLabel: trimmedChannel, Stage: currentStage}
	}

	sourceTree, loadError := service.treeLoader.Load(executionContext, trimmedChannel)
	if loadError != nil {
		return Result{}, loadError
	}

	targetLabel := shared.SwapStagePrefix(trimmedChannel, currentStage, nextStage)
	concurrencyLimit := options.ConcurrencyLimit
	if concurrencyLimit <= 0 {
		concurrencyLimit = shared.DefaultConcurrencyLimit
	}

	report := &shared.BatchReport{}
	result := Result{TargetLabel: targetLabel, Report: report}

	_, targetError := service.catalogClient.GetChannel(executionContext, targetLabel)
	switch {
	case catalog.IsNotFound(targetError):
		result.CreatedTarget = true
		if creationError := service.createTargetTree(executionContext, sourceTree, targetLabel, currentStage, nextStage, concurrencyLimit, report); creationError != nil {
			return Result{}, creationError
		}
	case targetError != nil:
		return Result{}, targetError
	default:
		targetTree, targetLoadError := service.treeLoader.Load(executionContext, targetLabel)
		if targetLoadError != nil {
			return Result{}, targetLoadError
		}
		if syncError := service.synchronizeTrees(executionContext, sourceTree, targetTree, currentStage, nextStage, concurrencyLimit, report); syncError != nil {
			return Result{}, syncError
		}
	}

	service.logger.Info(
		rolloutCompletedMessageConstant,
		zap.String(logFieldSourceChannelConstant, trimmedChannel),
		zap.String(logFieldTargetChannelConstant, targetLabel),
		zap.Bool(logFieldTargetCreatedConstant, result.CreatedTarget),
		zap.Int(logFieldItemsSucceededConstant, report.Succeeded()),
		zap.Int(logFieldItemsFailedConstant, report.Failed()),
	)

	return result, nil
}

// createTargetTree materializes the downstream twin as a full copy, base
// first and children concurrently, and records each copy as a complete
// synchronization.
func (service *Service) createTargetTree(executionContext context.Context, sourceTree tree.Tree, targetLabel string, currentStage string, nextStage string, concurrencyLimit int, report *shared.BatchReport) error {
	_, baseCreationError := service.catalogClient.CreateChannel(executionContext, catalog.CreateChannelRequest{
		Label:            targetLabel,
		Name:             targetLabel,
		Summary:          fmt.Sprintf(twinSummaryTemplateConstant, nextStage, sourceTree.Base.Label),
		CopyPackagesFrom: sourceTree.Base.Label,
	})
	if baseCreationError != nil {
		return fmt.Errorf(twinCreationFailureTemplate, targetLabel, baseCreationError)
	}
	report.Record(shared.ItemOutcome{Name: targetLabel, Status: shared.OutcomeSucceeded})
	if recordError := service.stateStore.RecordSynchronized(sourceTree.Base.Label, nextStage, sourceTree.Base.Packages); recordError != nil {
		return recordError
	}

	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(concurrencyLimit)
	for _, childChannel := range sourceTree.Children {
		workerGroup.Go(func() error {
			childTargetLabel := shared.SwapStagePrefix(childChannel.Label, currentStage, nextStage)
			if contextError := executionContext.Err(); contextError != nil {
				report.Record(shared.ItemOutcome{Name: childTargetLabel, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}

			_, childCreationError := service.catalogClient.CreateChannel(executionContext, catalog.CreateChannelRequest{
				Label:            childTargetLabel,
				Name:             childTargetLabel,
				Summary:          fmt.Sprintf(twinSummaryTemplateConstant, nextStage, childChannel.Label),
				ParentLabel:      targetLabel,
				CopyPackagesFrom: childChannel.Label,
			})
			if childCreationError != nil {
				report.Record(shared.ItemOutcome{Name: childTargetLabel, Status: shared.OutcomeFailed, Error: childCreationError.Error()})
				return nil
			}
			report.Record(shared.ItemOutcome{Name: childTargetLabel, Status: shared.OutcomeSucceeded})
			return service.stateStore.RecordSynchronized(childChannel.Label, nextStage, childChannel.Packages)
		})
	}
	return workerGroup.Wait()
}

// synchronizeTrees applies the per-channel delta for the base pair and every
// source child, creating child twins that do not exist yet. Children present
// only on the target side are left alone.
func (service *Service) synchronizeTrees(executionContext context.Context, sourceTree tree.Tree, targetTree tree.Tree, currentStage string, nextStage string, concurrencyLimit int, report *shared.BatchReport) error {
	if syncError := service.synchronizeChannelPair(executionContext, sourceTree.Base, targetTree.Base, nextStage, concurrencyLimit, report); syncError != nil {
		return syncError
	}

	targetChildrenByLabel := make(map[string]catalog.Channel, len(targetTree.Children))
	for _, targetChild := range targetTree.Children {
		targetChildrenByLabel[targetChild.Label] = targetChild
	}

	for _, childChannel := range sourceTree.Children {
		childTargetLabel := shared.SwapStagePrefix(childChannel.Label, currentStage, nextStage)
		targetChild, targetChildExists := targetChildrenByLabel[childTargetLabel]
		if !targetChildExists {
			_, childCreationError := service.catalogClient.CreateChannel(executionContext, catalog.CreateChannelRequest{
				Label:            childTargetLabel,
				Name:             childTargetLabel,
				Summary:          fmt.Sprintf(twinSummaryTemplateConstant, nextStage, childChannel.Label),
				ParentLabel:      targetTree.Base.Label,
				CopyPackagesFrom: childChannel.Label,
			})
			if childCreationError != nil {
				report.Record(shared.ItemOutcome{Name: childTargetLabel, Status: shared.OutcomeFailed, Error: childCreationError.Error()})
				continue
			}
			report.Record(shared.ItemOutcome{Name: childTargetLabel, Status: shared.OutcomeSucceeded})
			if recordError := service.stateStore.RecordSynchronized(childChannel.Label, nextStage, childChannel.Packages); recordError != nil {
				return recordError
			}
			continue
		}
		if syncError := service.synchronizeChannelPair(executionContext, childChannel, targetChild, nextStage, concurrencyLimit, report); syncError != nil {
			return syncError
		}
	}
	return nil
}

// synchronizeChannelPair applies the delta between the source's current set
// and the last-synchronized set. Without a prior record only additions are
// applied, so a twin with its own extra packages is never stripped.
func (service *Service) synchronizeChannelPair(executionContext context.Context, sourceChannel catalog.Channel, targetChannel catalog.Channel, nextStage string, concurrencyLimit int, report *shared.BatchReport) error {
	lastSynchronized, recordExists, stateError := service.stateStore.LastSynchronized(sourceChannel.Label, nextStage)
	if stateError != nil {
		return stateError
	}

	sourceBuilds := indexBuilds(sourceChannel.Packages)
	targetBuilds := indexBuilds(targetChannel.Packages)
	synchronizedBuilds := indexBuilds(lastSynchronized)

	additions := []catalog.PackageReference{}
	removals := []catalog.PackageReference{}
	for buildKey, reference := range sourceBuilds {
		if _, alreadyPresent := targetBuilds[buildKey]; alreadyPresent {
			continue
		}
		if recordExists {
			if _, previouslySynchronized := synchronizedBuilds[buildKey]; previouslySynchronized {
				continue
			}
		}
		additions = append(additions, reference)
	}
	if recordExists {
		for buildKey, reference := range synchronizedBuilds {
			if _, stillOffered := sourceBuilds[buildKey]; stillOffered {
				continue
			}
			if _, presentOnTarget := targetBuilds[buildKey]; !presentOnTarget {
				continue
			}
			removals = append(removals, reference)
		}
	}

	pairReport := &shared.BatchReport{}
	workerGroup := errgroup.Group{}
	workerGroup.SetLimit(concurrencyLimit)
	for _, reference := range additions {
		workerGroup.Go(func() error {
			itemName := fmt.Sprintf(addItemNameTemplateConstant, targetChannel.Label, reference.String())
			if contextError := executionContext.Err(); contextError != nil {
				pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}
			if addError := service.catalogClient.AddPackage(executionContext, targetChannel.Label, reference); addError != nil {
				pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Error: addError.Error()})
				return nil
			}
			pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeSucceeded})
			return nil
		})
	}
	for _, reference := range removals {
		workerGroup.Go(func() error {
			itemName := fmt.Sprintf(removeItemNameTemplateConstant, targetChannel.Label, reference.String())
			if contextError := executionContext.Err(); contextError != nil {
				pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeNotAttempted, Error: contextError.Error()})
				return nil
			}
			if removeError := service.catalogClient.RemovePackage(executionContext, targetChannel.Label, reference); removeError != nil {
				pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeFailed, Error: removeError.Error()})
				return nil
			}
			pairReport.Record(shared.ItemOutcome{Name: itemName, Status: shared.OutcomeSucceeded})
			return nil
		})
	}
	_ = workerGroup.Wait()

	for _, outcome := range pairReport.Items {
		report.Record(outcome)
	}

	// The record advances only after a fully clean pair sync, so a failed
	// or cancelled item is retried by the next invocation.
	if pairReport.Failed() == 0 && pairReport.CountByStatus(shared.OutcomeNotAttempted) == 0 {
		return service.stateStore.RecordSynchronized(sourceChannel.Label, nextStage, sourceChannel.Packages)
	}
	return nil
}

func indexBuilds(references []catalog.PackageReference) map[string]catalog.PackageReference {
	index := make(map[string]catalog.PackageReference, len(references))
	for _, reference := range references {
		index[reference.String()] = reference
	}
	return index
}
