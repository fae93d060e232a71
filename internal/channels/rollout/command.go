package rollout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteches/houston/internal/channels/shared"
	pathutils "github.com/peteches/houston/internal/utils/path"
)

const (
	commandUseConstant                        = "rollout"
	commandShortDescriptionConstant           = "Advance a channel's package delta to the next stage"
	commandLongDescriptionConstant            = "rollout synchronizes the channel at the next stage with this channel's package set, creating it as a full copy when it does not exist yet."
	commandExecutionErrorTemplateConstant     = "channel rollout failed: %w"
	unexpectedArgumentsMessageConstant        = "rollout does not accept positional arguments"
	catalogProviderMissingMessageConstant     = "catalog client provider not configured"
	everySynchronizationFailedMessageConstant = "every package synchronization failed"

	flagChannelNameConstant          = "channel"
	flagChannelDescriptionConstant   = "Channel whose package set is propagated forward"
	flagStatePathNameConstant        = "state-path"
	flagStatePathDescriptionConstant = "Path of the rollout synchronization state file"

	reportLineTemplateConstant         = "%s: %s\n"
	createdTargetTemplateConstant      = "created %s\n"
	synchronizedTargetTemplateConstant = "synchronized %s\n"
	configurationStatePathKey          = "state_path"
	configurationConcurrencyKey        = "concurrency"
	configurationKeySeparatorConstant  = "."
)

var (
	errUnexpectedArguments        = errors.New(unexpectedArgumentsMessageConstant)
	errEverySynchronizationFailed = errors.New(everySynchronizationFailedMessageConstant)
)

// ErrCatalogProviderNotConfigured indicates the builder was missing its provider.
var ErrCatalogProviderNotConfigured = errors.New(catalogProviderMissingMessageConstant)

// Configuration stores rollout command defaults.
type Configuration struct {
	StatePath   string `mapstructure:"state_path"`
	Concurrency int    `mapstructure:"concurrency"`
}

// DefaultConfigurationValues exposes rollout defaults for the configuration loader.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	return map[string]any{
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationStatePathKey:   "",
		configurationKeyPrefix + configurationKeySeparatorConstant + configurationConcurrencyKey: shared.DefaultConcurrencyLimit,
	}
}

// CommandBuilder assembles the rollout Cobra command.
type CommandBuilder struct {
	LoggerProvider        func() *zap.Logger
	CatalogClientProvider shared.CatalogClientProvider
	ConfigurationProvider func() Configuration
	StagesProvider        func() shared.StageSequence
}

// Build constructs the rollout command.
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
	command.Flags().String(flagStatePathNameConstant, "", flagStatePathDescriptionConstant)
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

	statePath := configuration.StatePath
	if flagValue, _ := command.Flags().GetString(flagStatePathNameConstant); len(strings.TrimSpace(flagValue)) > 0 {
		statePath = strings.TrimSpace(flagValue)
	}
	if len(statePath) == 0 {
		defaultPath, pathError := DefaultStatePath()
		if pathError != nil {
			return pathError
		}
		statePath = defaultPath
	}
	statePath = pathutils.NewHomeExpander().Expand(statePath)
	stateStore, storeError := NewFileStateStore(statePath)
	if storeError != nil {
		return storeError
	}

	catalogClient, closeCatalog, providerError := builder.CatalogClientProvider(command.Context())
	if providerError != nil {
		return providerError
	}
	defer closeCatalog()

	service, serviceError := NewService(Dependencies{
		Logger:        builder.resolveLogger(),
		CatalogClient: catalogClient,
		StateStore:    stateStore,
		Stages:        builder.resolveStages(),
	})
	if serviceError != nil {
		return serviceError
	}

	result, rolloutError := service.Rollout(command.Context(), options)
	if rolloutError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, rolloutError)
	}

	renderResult(command, result)
	if result.Report.TotalFailure() {
		return errEverySynchronizationFailed
	}
	return nil
}

func renderResult(command *cobra.Command, result Result) {
	if result.CreatedTarget {
		fmt.Fprintf(command.OutOrStdout(), createdTargetTemplateConstant, result.TargetLabel)
	} else {
		fmt.Fprintf(command.OutOrStdout(), synchronizedTargetTemplateConstant, result.TargetLabel)
	}
	for _, outcome := range result.Report.Items {
		line := string(outcome.Status)
		if len(outcome.Error) > 0 {
			line += " (" + outcome.Error + ")"
		}
		fmt.Fprintf(command.OutOrStdout(), reportLineTemplateConstant, outcome.Name, line)
	}
}

func (builder *CommandBuilder) resolveStages() shared.StageSequence {
	if builder.StagesProvider == nil {
		return shared.DefaultStageSequence
	}
	return builder.StagesProvider()
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
