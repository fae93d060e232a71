package clone_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/clone"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/testsupport"
)

func memoryCatalogProvider(memory *testsupport.MemoryCatalog) shared.CatalogClientProvider {
	return func(context.Context) (catalog.Client, shared.CatalogCloser, error) {
		return memory, func() {}, nil
	}
}

func newCloneCommand(t *testing.T, memory *testsupport.MemoryCatalog) *cobra.Command {
	t.Helper()
	builder := clone.CommandBuilder{
		CatalogClientProvider: memoryCatalogProvider(memory),
		Clock:                 januaryClock{},
	}
	command, buildError := builder.Build()
	require.NoError(t, buildError)
	command.SetContext(context.Background())
	return command
}

func TestBuildRequiresCatalogProvider(t *testing.T) {
	builder := clone.CommandBuilder{}
	command, buildError := builder.Build()
	require.ErrorIs(t, buildError, clone.ErrCatalogProviderNotConfigured)
	require.Nil(t, command)
}

func TestCommandRejectsPositionalArguments(t *testing.T) {
	command := newCloneCommand(t, testsupport.NewMemoryCatalog())
	require.Error(t, command.RunE(command, []string{"unexpected"}))
}

func TestCommandClonesTreeAndRendersReport(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedSourceTree(memory)
	command := newCloneCommand(t, memory)

	require.NoError(t, command.Flags().Set("channel", "php-base"))
	require.NoError(t, command.Flags().Set("project", "GOON"))
	require.NoError(t, command.Flags().Set("tag", "minion"))

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)

	require.NoError(t, command.RunE(command, []string{}))
	require.Contains(t, outputBuffer.String(), "dev-GOON-jan-minion-php-base: succeeded")
	require.Contains(t, outputBuffer.String(), "dev-GOON-jan-minion-php-extras: succeeded")
	require.True(t, memory.ChannelExists("dev-GOON-jan-minion-php-devel"))
}

func TestCommandStageFlagOverridesConfiguredStage(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedSourceTree(memory)
	command := newCloneCommand(t, memory)

	require.NoError(t, command.Flags().Set("channel", "php-base"))
	require.NoError(t, command.Flags().Set("project", "GOON"))
	require.NoError(t, command.Flags().Set("tag", "minion"))
	require.NoError(t, command.Flags().Set("stage", "qa"))

	command.SetOut(&bytes.Buffer{})

	require.NoError(t, command.RunE(command, []string{}))
	require.True(t, memory.ChannelExists("qa-GOON-jan-minion-php-base"))
}

func TestCommandSurfacesBaseCreationFailure(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	seedSourceTree(memory)
	memory.FailCall("create_channel", "dev-GOON-jan-minion-php-base", errors.New("label already in use"))
	command := newCloneCommand(t, memory)

	require.NoError(t, command.Flags().Set("channel", "php-base"))
	require.NoError(t, command.Flags().Set("project", "GOON"))
	require.NoError(t, command.Flags().Set("tag", "minion"))

	command.SetOut(&bytes.Buffer{})

	runError := command.RunE(command, []string{})
	require.ErrorContains(t, runError, "channel clone failed")
	require.ErrorContains(t, runError, "label already in use")
}
