package tree

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peteches/houston/internal/channels/shared"
)

const (
	commandUseConstant                    = "tree"
	commandShortDescriptionConstant       = "Show a channel with its children, packages, and systems"
	commandLongDescriptionConstant        = "tree fetches a fresh snapshot of the channel and prints its children with package and subscriber counts."
	commandExecutionErrorTemplateConstant = "channel tree lookup failed: %w"
	unexpectedArgumentsMessageConstant    = "tree does not accept positional arguments"
	catalogProviderMissingMessageConstant = "catalog client provider not configured"

	flagChannelNameConstant        = "channel"
	flagChannelDescriptionConstant = "Channel to inspect"

	baseLineTemplateConstant  = "%s (%d packages, %d systems)\n"
	childLineTemplateConstant = "  %s (%d packages, %d systems)\n"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// ErrCatalogProviderNotConfigured indicates the builder was missing its provider.
var ErrCatalogProviderNotConfigured = errors.New(catalogProviderMissingMessageConstant)

// CommandBuilder assembles the tree Cobra command.
type CommandBuilder struct {
	CatalogClientProvider shared.CatalogClientProvider
}

// Build constructs the tree command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	if builder.CatalogClientProvider == nil {
		return nil, ErrCatalogProviderNotConfigured
	}

	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().StringP(flagChannelNameConstant, "c", "", flagChannelDescriptionConstant)
	_ = command.MarkFlagRequired(flagChannelNameConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	channelLabel, _ := command.Flags().GetString(flagChannelNameConstant)

	catalogClient, closeCatalog, providerError := builder.CatalogClientProvider(command.Context())
	if providerError != nil {
		return providerError
	}
	defer closeCatalog()

	loader, loaderError := NewLoader(catalogClient)
	if loaderError != nil {
		return loaderError
	}

	channelTree, loadError := loader.Load(command.Context(), channelLabel)
	if loadError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, loadError)
	}

	fmt.Fprintf(command.OutOrStdout(), baseLineTemplateConstant, channelTree.Base.Label, len(channelTree.Base.Packages), len(channelTree.Base.SystemIDs))
	for _, childChannel := range channelTree.Children {
		fmt.Fprintf(command.OutOrStdout(), childLineTemplateConstant, childChannel.Label, len(childChannel.Packages), len(childChannel.SystemIDs))
	}
	return nil
}
