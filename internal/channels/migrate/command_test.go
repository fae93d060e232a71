package migrate_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/migrate"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/testsupport"
)

func memoryCatalogProvider(memory *testsupport.MemoryCatalog) shared.CatalogClientProvider {
	return func(context.Context) (catalog.Client, shared.CatalogCloser, error) {
		return memory, func() {}, nil
	}
}

func newMigrateCommand(t *testing.T, memory *testsupport.MemoryCatalog) *cobra.Command {
	t.Helper()
	builder := migrate.CommandBuilder{CatalogClientProvider: memoryCatalogProvider(memory)}
	command, buildError := builder.Build()
	require.NoError(t, buildError)
	command.SetContext(context.Background())
	return command
}

func TestBuildRequiresCatalogProvider(t *testing.T) {
	builder := migrate.CommandBuilder{}
	command, buildError := builder.Build()
	require.ErrorIs(t, buildError, migrate.ErrCatalogProviderNotConfigured)
	require.Nil(t, command)
}

func TestCommandRejectsPositionalArguments(t *testing.T) {
	command := newMigrateCommand(t, testsupport.NewMemoryCatalog())
	require.Error(t, command.RunE(command, []string{"unexpected"}))
}

func TestCommandRejectsMalformedSystemIdentifier(t *testing.T) {
	command := newMigrateCommand(t, testsupport.NewMemoryCatalog())
	require.NoError(t, command.Flags().Set("from", "dev-web"))
	require.NoError(t, command.Flags().Set("to", "qa-web"))
	require.NoError(t, command.Flags().Set("system", "not-a-number"))

	runError := command.RunE(command, []string{})
	require.ErrorContains(t, runError, "invalid system identifier")
}

func TestCommandMigratesSystemsAndRendersReport(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedMigrationChannels(memory)
	memory.SeedSystem(101, "dev-web", buildReference("foo", "1.0", "1"))
	command := newMigrateCommand(t, memory)

	require.NoError(t, command.Flags().Set("from", "dev-web"))
	require.NoError(t, command.Flags().Set("to", "qa-web"))

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)

	require.NoError(t, command.RunE(command, []string{}))
	require.Contains(t, outputBuffer.String(), "system-101: succeeded")
	require.Equal(t, []string{"qa-web"}, memory.SystemSubscriptions(101))
}

func TestCommandRendersWarnings(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedMigrationChannels(memory)
	memory.SeedSystem(101, "dev-web", buildReference("orphaned", "2.0", "1"))
	command := newMigrateCommand(t, memory)

	require.NoError(t, command.Flags().Set("from", "dev-web"))
	require.NoError(t, command.Flags().Set("to", "qa-web"))

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)

	require.NoError(t, command.RunE(command, []string{}))
	require.Contains(t, outputBuffer.String(), "system-101: warned")
	require.Contains(t, outputBuffer.String(), "unavailable")
	require.Contains(t, outputBuffer.String(), "orphaned")
}

func TestCommandFailsWhenEverySystemFails(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedMigrationChannels(memory)
	memory.SeedSystem(101, "dev-web", buildReference("foo", "1.0", "1"))
	memory.FailCall("get_installed_packages", "", catalog.CallError{CallName: "system.listPackages"})
	command := newMigrateCommand(t, memory)

	require.NoError(t, command.Flags().Set("from", "dev-web"))
	require.NoError(t, command.Flags().Set("to", "qa-web"))

	command.SetOut(&bytes.Buffer{})

	runError := command.RunE(command, []string{})
	require.ErrorContains(t, runError, "every system migration failed")
}
