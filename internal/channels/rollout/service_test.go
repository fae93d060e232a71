package rollout_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/rollout"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/testsupport"
)

func buildReference(name string, version string, release string) catalog.PackageReference {
	return catalog.PackageReference{Name: name, Version: version, Release: release, Architecture: "x86_64"}
}

func newStateStore(t *testing.T) *rollout.FileStateStore {
	t.Helper()
	store, creationError := rollout.NewFileStateStore(filepath.Join(t.TempDir(), "rollout-state.yaml"))
	require.NoError(t, creationError)
	return store
}

func newService(t *testing.T, memory *testsupport.MemoryCatalog, store rollout.StateStore) *rollout.Service {
	t.Helper()
	service, creationError := rollout.NewService(rollout.Dependencies{CatalogClient: memory, StateStore: store})
	require.NoError(t, creationError)
	return service
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, missingClientError := rollout.NewService(rollout.Dependencies{StateStore: newStateStore(t)})
	require.ErrorIs(t, missingClientError, rollout.ErrCatalogClientNotConfigured)

	_, missingStoreError := rollout.NewService(rollout.Dependencies{CatalogClient: testsupport.NewMemoryCatalog()})
	require.ErrorIs(t, missingStoreError, rollout.ErrStateStoreNotConfigured)
}

func TestRolloutRejectsUnstagedAndTerminalChannels(t *testing.T) {
	testCases := []struct {
		name          string
		channelLabel  string
		expectedStage string
	}{
		{name: "no stage prefix", channelLabel: "plain-web"},
		{name: "no separator", channelLabel: "devweb"},
		{name: "final stage", channelLabel: "prod-web", expectedStage: "prod"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			memory := testsupport.NewMemoryCatalog()
			memory.SeedChannel(catalog.Channel{Label: testCase.channelLabel, Name: testCase.channelLabel})
			service := newService(t, memory, newStateStore(t))

			_, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: testCase.channelLabel})

			stageError := rollout.UnknownStageError{}
			require.ErrorAs(t, rolloutError, &stageError)
			require.Equal(t, testCase.channelLabel, stageError.ChannelLabel)
			require.Equal(t, testCase.expectedStage, stageError.Stage)
		})
	}
}

func TestRolloutRequiresChannel(t *testing.T) {
	service := newService(t, testsupport.NewMemoryCatalog(), newStateStore(t))
	_, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "   "})
	require.ErrorIs(t, rolloutError, rollout.ErrChannelRequired)
}

func TestRolloutCreatesMissingTwinWithChildren(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web-extras", Name: "Web Dev Extras", ParentLabel: "dev-web"},
		buildReference("foo-extras", "1.0", "1"),
	)
	store := newStateStore(t)
	service := newService(t, memory, store)

	result, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, rolloutError)
	require.True(t, result.CreatedTarget)
	require.Equal(t, "qa-web", result.TargetLabel)
	require.Equal(t, 2, result.Report.Succeeded())

	require.ElementsMatch(t, memory.ChannelPackages("dev-web"), memory.ChannelPackages("qa-web"))
	require.ElementsMatch(t, memory.ChannelPackages("dev-web-extras"), memory.ChannelPackages("qa-web-extras"))

	baseRecord, baseRecorded, baseError := store.LastSynchronized("dev-web", "qa")
	require.NoError(t, baseError)
	require.True(t, baseRecorded)
	require.ElementsMatch(t, memory.ChannelPackages("dev-web"), baseRecord)

	childRecord, childRecorded, childError := store.LastSynchronized("dev-web-extras", "qa")
	require.NoError(t, childError)
	require.True(t, childRecorded)
	require.ElementsMatch(t, memory.ChannelPackages("dev-web-extras"), childRecord)
}

func TestRolloutCreatedTwinRecordsEveryChild(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-base", Name: "Base Dev"},
		buildReference("base", "1.0", "1"),
	)
	childLabels := []string{}
	for childIndex := 0; childIndex < 8; childIndex++ {
		childLabel := fmt.Sprintf("dev-child-%d", childIndex)
		childLabels = append(childLabels, childLabel)
		memory.SeedChannel(
			catalog.Channel{Label: childLabel, Name: childLabel, ParentLabel: "dev-base"},
			buildReference(childLabel, "1.0", "1"),
		)
	}
	store := newStateStore(t)
	service := newService(t, memory, store)

	result, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-base"})
	require.NoError(t, rolloutError)
	require.Zero(t, result.Report.Failed())

	for _, childLabel := range childLabels {
		record, recorded, recordError := store.LastSynchronized(childLabel, "qa")
		require.NoError(t, recordError)
		require.True(t, recorded, childLabel)
		require.ElementsMatch(t, memory.ChannelPackages(childLabel), record)
	}
}

func TestRolloutAddsDeltaWithoutTouchingTwinExtras(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
		buildReference("qa-hotfix", "0.9", "2"),
	)
	store := newStateStore(t)
	service := newService(t, memory, store)

	// First pass records the synchronized set without changing anything.
	firstResult, firstError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, firstError)
	require.False(t, firstResult.CreatedTarget)
	require.Empty(t, firstResult.Report.Items)

	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
		buildReference("bar", "2.0", "1"),
	)

	secondResult, secondError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, secondError)
	require.Equal(t, 1, secondResult.Report.Succeeded())

	require.ElementsMatch(t, []catalog.PackageReference{
		buildReference("foo", "1.0", "1"),
		buildReference("bar", "2.0", "1"),
		buildReference("qa-hotfix", "0.9", "2"),
	}, memory.ChannelPackages("qa-web"))
}

func TestRolloutRemovesPackagesDroppedSinceLastSync(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
		buildReference("bar", "2.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
		buildReference("bar", "2.0", "1"),
		buildReference("qa-hotfix", "0.9", "2"),
	)
	store := newStateStore(t)
	service := newService(t, memory, store)

	_, firstError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, firstError)

	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)

	_, secondError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, secondError)

	require.ElementsMatch(t, []catalog.PackageReference{
		buildReference("foo", "1.0", "1"),
		buildReference("qa-hotfix", "0.9", "2"),
	}, memory.ChannelPackages("qa-web"))
}

func TestRolloutPropagatesVersionChangeAsReplaceDelta(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
	)
	store := newStateStore(t)
	service := newService(t, memory, store)

	_, firstError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, firstError)

	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.1", "1"),
	)

	_, secondError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, secondError)

	require.ElementsMatch(t, []catalog.PackageReference{
		buildReference("foo", "1.1", "1"),
	}, memory.ChannelPackages("qa-web"))
}

func TestRolloutWithoutRecordNeverRemovesFromTwin(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
		buildReference("qa-only", "3.0", "1"),
	)
	service := newService(t, memory, newStateStore(t))

	result, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, rolloutError)
	require.Empty(t, result.Report.Items)

	require.ElementsMatch(t, []catalog.PackageReference{
		buildReference("foo", "1.0", "1"),
		buildReference("qa-only", "3.0", "1"),
	}, memory.ChannelPackages("qa-web"))
}

func TestRolloutCreatesMissingChildTwinDuringSync(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web-extras", Name: "Web Dev Extras", ParentLabel: "dev-web"},
		buildReference("foo-extras", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
	)
	service := newService(t, memory, newStateStore(t))

	result, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, rolloutError)
	require.False(t, result.CreatedTarget)

	outcome, outcomeRecorded := result.Report.Outcome("qa-web-extras")
	require.True(t, outcomeRecorded)
	require.Equal(t, shared.OutcomeSucceeded, outcome.Status)
	require.ElementsMatch(t, memory.ChannelPackages("dev-web-extras"), memory.ChannelPackages("qa-web-extras"))
}

func TestRolloutFailedAdditionKeepsRecordForRetry(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
	)
	memory.SeedChannel(
		catalog.Channel{Label: "qa-web", Name: "Web QA"},
		buildReference("foo", "1.0", "1"),
	)
	store := newStateStore(t)
	service := newService(t, memory, store)

	_, firstError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, firstError)

	memory.SeedChannel(
		catalog.Channel{Label: "dev-web", Name: "Web Dev"},
		buildReference("foo", "1.0", "1"),
		buildReference("bar", "2.0", "1"),
	)
	memory.FailCall("add_package", "qa-web", errors.New("repository busy"))

	result, secondError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-web"})
	require.NoError(t, secondError)
	require.Equal(t, 1, result.Report.Failed())

	record, recordExists, recordError := store.LastSynchronized("dev-web", "qa")
	require.NoError(t, recordError)
	require.True(t, recordExists)
	require.ElementsMatch(t, []catalog.PackageReference{buildReference("foo", "1.0", "1")}, record)
}

func TestRolloutMissingSourceChannel(t *testing.T) {
	service := newService(t, testsupport.NewMemoryCatalog(), newStateStore(t))
	_, rolloutError := service.Rollout(context.Background(), rollout.Options{Channel: "dev-missing"})
	require.True(t, catalog.IsNotFound(rolloutError))
}
