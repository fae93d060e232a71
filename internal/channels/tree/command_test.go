package tree_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/testsupport"
	"github.com/peteches/houston/internal/channels/tree"
)

func memoryCatalogProvider(memory *testsupport.MemoryCatalog) shared.CatalogClientProvider {
	return func(context.Context) (catalog.Client, shared.CatalogCloser, error) {
		return memory, func() {}, nil
	}
}

func newTreeCommand(t *testing.T, memory *testsupport.MemoryCatalog) *cobra.Command {
	t.Helper()
	builder := tree.CommandBuilder{CatalogClientProvider: memoryCatalogProvider(memory)}
	command, buildError := builder.Build()
	require.NoError(t, buildError)
	command.SetContext(context.Background())
	return command
}

func TestBuildRequiresCatalogProvider(t *testing.T) {
	builder := tree.CommandBuilder{}
	command, buildError := builder.Build()
	require.ErrorIs(t, buildError, tree.ErrCatalogProviderNotConfigured)
	require.Nil(t, command)
}

func TestCommandRejectsPositionalArguments(t *testing.T) {
	command := newTreeCommand(t, testsupport.NewMemoryCatalog())
	require.Error(t, command.RunE(command, []string{"unexpected"}))
}

func TestCommandPrintsChannelSnapshot(t *testing.T) {
	memory := testsupport.NewMemoryCatalog()
	memory.SeedChannel(
		catalog.Channel{Label: "php-base", Name: "PHP Base"},
		catalog.PackageReference{Name: "php", Version: "7.4", Release: "1", Architecture: "x86_64"},
		catalog.PackageReference{Name: "php-cli", Version: "7.4", Release: "1", Architecture: "x86_64"},
	)
	memory.SeedChannel(
		catalog.Channel{Label: "php-extras", Name: "PHP Extras", ParentLabel: "php-base"},
		catalog.PackageReference{Name: "php-gd", Version: "7.4", Release: "1", Architecture: "x86_64"},
	)
	memory.SeedSystem(101, "php-base")
	command := newTreeCommand(t, memory)

	require.NoError(t, command.Flags().Set("channel", "php-base"))

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)

	require.NoError(t, command.RunE(command, []string{}))
	require.Contains(t, outputBuffer.String(), "php-base (2 packages, 1 systems)")
	require.Contains(t, outputBuffer.String(), "  php-extras (1 packages, 0 systems)")
}

func TestCommandSurfacesMissingChannel(t *testing.T) {
	command := newTreeCommand(t, testsupport.NewMemoryCatalog())
	require.NoError(t, command.Flags().Set("channel", "absent"))

	runError := command.RunE(command, []string{})
	require.ErrorContains(t, runError, "channel tree lookup failed")
	require.True(t, catalog.IsNotFound(runError))
}
