package migrate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteches/houston/internal/catalog"
	"github.com/peteches/houston/internal/channels/shared"
)

const (
	commandUseConstant                    = "migrate"
	commandShortDescriptionConstant       = "Migrate systems from one channel to another"
	commandLongDescriptionConstant        = "migrate re-subscribes systems to the destination channel, upgrading installed packages to the destination's offered versions first."
	commandExecutionErrorTemplateConstant = "system migration failed: %w"
	unexpectedArgumentsMessageConstant    = "migrate does not accept positional arguments"
	catalogProviderMissingMessageConstant = "catalog client provider not configured"
	everyMigrationFailedMessageConstant   = "every system migration failed"
	invalidSystemIDTemplateConstant       = "invalid system identifier %q: %w"

	flagFromNameConstant             = "from"
	flagFromDescriptionConstant      = "Channel the systems currently subscribe to"
	flagToNameConstant               = "to"
	flagToDescriptionConstant        = "Channel the systems will be subscribed to"
	flagSystemNameConstant           = "system"
	flagSystemDescriptionConstant    = "System identifier to migrate; repeatable, defaults to every system on the source channel"
	flagRecursiveNameConstant        = "recursive"
	flagRecursiveDescriptionConstant = "Also subscribe systems to the destination's child channels"
	flagDowngradeNameConstant        = "downgrade"
	flagDowngradeDescriptionConstant = "Replace installed packages that are newer than the destination's offered versions"
	flagNoUpgradeNameConstant        = "no-upgrade"
	flagNoUpgradeDescriptionConstant = "Keep installed package versions even when the destination offers newer builds"

	reportLineTemplateConstant        = "%s: %s\n"
	warningLineTemplateConstant       = "  %s %s: %s\n"
	configurationConcurrencyKey       = "concurrency"
	configurationKeySeparatorConstant = "."
)

var (
	errUnexpectedArguments  = errors.New(unexpectedArgumentsMessageConstant)
	errEveryMigrationFailed = errors.New(everyMigrationFailedMessageConstant)
)

// ErrCatalogProviderNotConfigured indicates the builder was missing its provider.
var ErrCatalogProviderNotConfigured = errors.New(catalogProviderMissingMessageConstant)

// Configuration stores migrate command defaults.
type Configuration struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DefaultConfigurationValues exposes migrate defaults for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationConcurrencyKey: shared.DefaultConcurrencyLimit,
	}
}

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	CatalogClientProvider shared.CatalogClientProvider
	ConfigurationProvider func() Configuration
}

// Build constructs the migrate command.
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

	command.Flags().StringP(flagFromNameConstant, "f", "", flagFromDescriptionConstant)
	command.Flags().StringP(flagToNameConstant, "t", "", flagToDescriptionConstant)
	command.Flags().StringSliceP(flagSystemNameConstant, "s", nil, flagSystemDescriptionConstant)
	command.Flags().BoolP(flagRecursiveNameConstant, "r", false, flagRecursiveDescriptionConstant)
	command.Flags().Bool(flagDowngradeNameConstant, false, flagDowngradeDescriptionConstant)
	command.Flags().Bool(flagNoUpgradeNameConstant, false, flagNoUpgradeDescriptionConstant)
	_ = command.MarkFlagRequired(flagFromNameConstant)
	_ = command.MarkFlagRequired(flagToNameConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration()
	options := Options{ConcurrencyLimit: configuration.Concurrency}
	options.FromChannel, _ = command.Flags().GetString(flagFromNameConstant)
	options.ToChannel, _ = command.Flags().GetString(flagToNameConstant)
	options.Recursive, _ = command.Flags().GetBool(flagRecursiveNameConstant)
	options.Downgrade, _ = command.Flags().GetBool(flagDowngradeNameConstant)
	options.NoUpgrade, _ = command.Flags().GetBool(flagNoUpgradeNameConstant)

	systemValues, _ := command.Flags().GetStringSlice(flagSystemNameConstant)
	for _, systemValue := range systemValues {
		parsedIdentifier, parseError := strconv.ParseInt(systemValue, 10, 64)
		if parseError != nil {
			return fmt.Errorf(invalidSystemIDTemplateConstant, systemValue, parseError)
		}
		options.SystemIDs = append(options.SystemIDs, catalog.SystemID(parsedIdentifier))
	}

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

	report, migrateError := service.Migrate(command.Context(), options)
	if migrateError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, migrateError)
	}

	renderReport(command, report)
	if report.TotalFailure() {
		return errEveryMigrationFailed
	}
	return nil
}

func renderReport(command *cobra.Command, report *shared.BatchReport) {
	for _, outcome := range report.Items {
		line := string(outcome.Status)
		if len(outcome.Error) > 0 {
			line += " (" + outcome.Error + ")"
		}
		fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, line)
		for _, warning := range outcome.Warnings {
			fmt.Fprintf(command.OutOrStdout(), warningLineTemplateConstant, string(warning.Type), warning.Package, warning.Detail)
		}
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
