package clone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteches/houston/internal/channels/shared"
)

const (
	commandUseConstant                    = "clone"
	commandShortDescriptionConstant       = "Clone a base channel and its children under a derived name"
	commandLongDescriptionConstant        = "clone copies a base channel tree into <stage>-<project>-<month>-<tag>-<source> labelled channels, children included."
	commandExecutionErrorTemplateConstant = "channel clone failed: %w"
	unexpectedArgumentsMessageConstant    = "clone does not accept positional arguments"
	catalogProviderMissingMessageConstant = "catalog client provider not configured"
	everyCloneFailedMessageConstant       = "every channel clone failed"

	flagChannelNameConstant        = "channel"
	flagChannelDescriptionConstant = "Base channel to clone"
	flagProjectNameConstant        = "project"
	flagProjectDescriptionConstant = "Project the clone will be used for"
	flagTagNameConstant            = "tag"
	flagTagDescriptionConstant     = "Project tag the clone will be used for"
	flagStageNameConstant          = "stage"
	flagStageDescriptionConstant   = "Stage label for the derived channel names"
	flagRollbackNameConstant       = "rollback"
	flagRollbackDescription        = "Delete created channels when any child clone fails"

	reportLineTemplateConstant        = "%s: %s\n"
	rollbackReportHeaderConstant      = "rollback:\n"
	configurationStageKeyConstant     = "stage"
	configurationConcurrencyKey       = "concurrency"
	configurationKeySeparatorConstant = "."
)

var (
	errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)
	errEveryCloneFailed    = errors.New(everyCloneFailedMessageConstant)
)

// ErrCatalogProviderNotConfigured indicates the builder was missing its provider.
var ErrCatalogProviderNotConfigured = errors.New(catalogProviderMissingMessageConstant)

// Configuration stores clone command defaults.
type Configuration struct {
	Stage       string `mapstructure:"stage"`
	Concurrency int    `mapstructure:"concurrency"`
}

// DefaultConfigurationValues exposes clone defaults for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationStageKeyConstant: shared.DefaultStageSequence.First(),
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationConcurrencyKey:   shared.DefaultConcurrencyLimit,
	}
}

// CommandBuilder assembles the clone Cobra command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	CatalogClientProvider shared.CatalogClientProvider
	ConfigurationProvider func() Configuration
	Clock                 shared.Clock
}

// Build constructs the clone command.
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
	command.Flags().StringP(flagProjectNameConstant, "p", "", flagProjectDescriptionConstant)
	command.Flags().StringP(flagTagNameConstant, "t", "", flagTagDescriptionConstant)
	command.Flags().String(flagStageNameConstant, "", flagStageDescriptionConstant)
	command.Flags().Bool(flagRollbackNameConstant, false, flagRollbackDescription)
	_ = command.MarkFlagRequired(flagChannelNameConstant)
	_ = command.MarkFlagRequired(flagProjectNameConstant)
	_ = command.MarkFlagRequired(flagTagNameConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.resolveConfiguration()
	options := Options{ConcurrencyLimit: configuration.Concurrency, Stage: configuration.Stage}
	options.SourceChannel, _ = command.Flags().GetString(flagChannelNameConstant)
	options.Project, _ = command.Flags().GetString(flagProjectNameConstant)
	options.Tag, _ = command.Flags().GetString(flagTagNameConstant)
	options.Rollback, _ = command.Flags().GetBool(flagRollbackNameConstant)
	if stageValue, _ := command.Flags().GetString(flagStageNameConstant); len(strings.TrimSpace(stageValue)) > 0 {
		options.Stage = strings.TrimSpace(stageValue)
	}

	catalogClient, closeCatalog, providerError := builder.CatalogClientProvider(command.Context())
	if providerError != nil {
		return providerError
	}
	defer closeCatalog()

	service, serviceError := NewService(Dependencies{
		Logger:        builder.resolveLogger(),
		CatalogClient: catalogClient,
		Clock:         builder.Clock,
	})
	if serviceError != nil {
		return serviceError
	}

	result, cloneError := service.Clone(command.Context(), options)
	if cloneError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, cloneError)
	}

	renderReport(command, result)
	if result.Report.TotalFailure() {
		return errEveryCloneFailed
	}
	return nil
}

func renderReport(command *cobra.Command, result Result) {
	for _, outcome := range result.Report.Items {
		line := string(outcome.Status)
		if len(outcome.Error) > 0 {
			line += " (" + outcome.Error + ")"
		}
		fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, line)
	}
	if result.Rollback != nil {
		fmt.Fprint(command.OutOrStdout(), rollbackReportHeaderConstant)
		for _, outcome := range result.Rollback.Items {
			fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, string(outcome.Status))
		}
	}
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return Configuration{Stage: shared.DefaultStageSequence.First(), Concurrency: shared.DefaultConcurrencyLimit}
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
