package deletion

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteches/houston/internal/channels/shared"
)

const (
	commandUseConstant                    = "delete"
	commandShortDescriptionConstant       = "Delete a channel, optionally cascading to its children"
	commandLongDescriptionConstant        = "delete removes a channel after handling its subscribed systems: migrated to another channel, removed from the server, or left orphaned."
	commandExecutionErrorTemplateConstant = "channel deletion failed: %w"
	unexpectedArgumentsMessageConstant    = "delete does not accept positional arguments"
	catalogProviderMissingMessageConstant = "catalog client provider not configured"
	everyDeletionFailedMessageConstant    = "every channel deletion failed"

	flagChannelNameConstant              = "channel"
	flagChannelDescriptionConstant       = "Channel to delete"
	flagRecursiveNameConstant            = "recursive"
	flagRecursiveDescriptionConstant     = "Delete child channels before the channel itself"
	flagMigrateToNameConstant            = "migrate-to"
	flagMigrateToDescriptionConstant     = "Migrate subscribed systems to this channel before deletion"
	flagDeleteSystemsNameConstant        = "delete-systems"
	flagDeleteSystemsDescriptionConstant = "Delete subscribed systems from the server before deletion"

	reportLineTemplateConstant        = "%s: %s\n"
	systemsReportHeaderConstant       = "systems:\n"
	configurationConcurrencyKey       = "concurrency"
	configurationKeySeparatorConstant = "."
)

var (
	errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)
	errEveryDeletionFailed = errors.New(everyDeletionFailedMessageConstant)
)

// ErrCatalogProviderNotConfigured indicates the builder was missing its provider.
var ErrCatalogProviderNotConfigured = errors.New(catalogProviderMissingMessageConstant)

// Configuration stores delete command defaults.
type Configuration struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DefaultConfigurationValues exposes delete defaults for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationConcurrencyKey: shared.DefaultConcurrencyLimit,
	}
}

// CommandBuilder assembles the delete Cobra command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	CatalogClientProvider shared.CatalogClientProvider
	ConfigurationProvider func() Configuration
}

// Build constructs the delete command.
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
	command.Flags().BoolP(flagRecursiveNameConstant, "r", false, flagRecursiveDescriptionConstant)
	command.Flags().String(flagMigrateToNameConstant, "", flagMigrateToDescriptionConstant)
	command.Flags().Bool(flagDeleteSystemsNameConstant, false, flagDeleteSystemsDescriptionConstant)
	_ = command.MarkFlagRequired(flagChannelNameConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration()
	options := Options{ConcurrencyLimit: configuration.Concurrency}
	options.Channel, _ = command.Flags().GetString(flagChannelNameConstant)
	options.Recursive, _ = command.Flags().GetBool(flagRecursiveNameConstant)
	options.MigrateTo, _ = command.Flags().GetString(flagMigrateToNameConstant)
	options.DeleteSystems, _ = command.Flags().GetBool(flagDeleteSystemsNameConstant)

	catalogClient, closeCatalog, providerError := builder.CatalogClientProvider(command.Context())
	if providerError != nil {
		return providerError
	}
	defer closeCatalog()

	service, serviceError := NewService(Dependencies{
		Logger:        builder.resolveLogger(),
		CatalogClient: catalogClient,
	})
	if serviceError != nil {
		return serviceError
	}

	result, deletionError := service.Delete(command.Context(), options)
	if deletionError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, deletionError)
	}

	renderResult(command, result)
	if result.Channels.TotalFailure() {
		return errEveryDeletionFailed
	}
	return nil
}

func renderResult(command *cobra.Command, result Result) {
	if len(result.Systems.Items) > 0 {
		fmt.Fprint(command.OutOrStdout(), systemsReportHeaderConstant)
		for _, outcome := range result.Systems.Items {
			fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, string(outcome.Status))
		}
	}
	for _, outcome := range result.Channels.Items {
		line := string(outcome.Status)
		if len(outcome.Error) > 0 {
			line += " (" + outcome.Error + ")"
		}
		fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, line)
	}
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return Configuration{Concurrency: shared.DefaultConcurrencyLimit}
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	if logger := builder.LoggerProvider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}
