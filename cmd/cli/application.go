package cli

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/peteches/houston/internal/catalog"
	catalogxmlrpc "github.com/peteches/houston/internal/catalog/xmlrpc"
	"github.com/peteches/houston/internal/channels/clone"
	"github.com/peteches/houston/internal/channels/deletion"
	"github.com/peteches/houston/internal/channels/migrate"
	"github.com/peteches/houston/internal/channels/rollout"
	"github.com/peteches/houston/internal/channels/shared"
	"github.com/peteches/houston/internal/channels/tree"
	"github.com/peteches/houston/internal/utils"
)

const (
	applicationNameConstant                 = "houston"
	applicationShortDescriptionConstant     = "Command-line interface for package-server channel lifecycle management"
	applicationLongDescriptionConstant      = "houston clones, migrates, rolls out, and deletes software channels on a Spacewalk-compatible package server."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant               = "HOUSTON"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	rootCommandInfoMessageConstant          = "houston CLI executed"
	rootCommandDebugMessageConstant         = "houston CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	channelsConfigurationKeyConstant        = "channels"
	cloneConfigurationKeyConstant           = channelsConfigurationKeyConstant + ".clone"
	migrateConfigurationKeyConstant         = channelsConfigurationKeyConstant + ".migrate"
	rolloutConfigurationKeyConstant         = channelsConfigurationKeyConstant + ".rollout"
	deleteConfigurationKeyConstant          = channelsConfigurationKeyConstant + ".delete"
	sessionLogoutFailedMessageConstant      = "catalog session logout failed"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration  `mapstructure:"common"`
	Catalog  ApplicationCatalogConfiguration `mapstructure:"catalog"`
	Channels ApplicationChannelConfiguration `mapstructure:"channels"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationCatalogConfiguration stores catalog server connection settings.
// Fields left empty are resolved from the environment or prompted for.
type ApplicationCatalogConfiguration struct {
	ServerURL string `mapstructure:"server_url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// ApplicationChannelConfiguration groups per-command channel engine settings.
type ApplicationChannelConfiguration struct {
	Stages  []string               `mapstructure:"stages"`
	Clone   clone.Configuration    `mapstructure:"clone"`
	Migrate migrate.Configuration  `mapstructure:"migrate"`
	Rollout rollout.Configuration  `mapstructure:"rollout"`
	Delete  deletion.Configuration `mapstructure:"delete"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	cloneBuilder := clone.CommandBuilder{
		LoggerProvider:        loggerProvider,
		CatalogClientProvider: application.catalogClientProvider,
		ConfigurationProvider: func() clone.Configuration {
			return application.configuration.Channels.Clone
		},
	}
	cloneCommand, cloneBuildError := cloneBuilder.Build()
	if cloneBuildError == nil {
		cobraCommand.AddCommand(cloneCommand)
	}

	migrateBuilder := migrate.CommandBuilder{
		LoggerProvider:        loggerProvider,
		CatalogClientProvider: application.catalogClientProvider,
		ConfigurationProvider: func() migrate.Configuration {
			return application.configuration.Channels.Migrate
		},
	}
	migrateCommand, migrateBuildError := migrateBuilder.Build()
	if migrateBuildError == nil {
		cobraCommand.AddCommand(migrateCommand)
	}

	rolloutBuilder := rollout.CommandBuilder{
		LoggerProvider:        loggerProvider,
		CatalogClientProvider: application.catalogClientProvider,
		ConfigurationProvider: func() rollout.Configuration {
			return application.configuration.Channels.Rollout
		},
		StagesProvider: application.stageSequence,
	}
	rolloutCommand, rolloutBuildError := rolloutBuilder.Build()
	if rolloutBuildError == nil {
		cobraCommand.AddCommand(rolloutCommand)
	}

	deleteBuilder := deletion.CommandBuilder{
		LoggerProvider:        loggerProvider,
		CatalogClientProvider: application.catalogClientProvider,
		ConfigurationProvider: func() deletion.Configuration {
			return application.configuration.Channels.Delete
		},
	}
	deleteCommand, deleteBuildError := deleteBuilder.Build()
	if deleteBuildError == nil {
		cobraCommand.AddCommand(deleteCommand)
	}

	treeBuilder := tree.CommandBuilder{
		CatalogClientProvider: application.catalogClientProvider,
	}
	treeCommand, treeBuildError := treeBuilder.Build()
	if treeBuildError == nil {
		cobraCommand.AddCommand(treeCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

// catalogClientProvider logs into the configured catalog server and returns
// a logging-wrapped client plus a closer that ends the session.
func (application *Application) catalogClientProvider(executionContext context.Context) (catalog.Client, shared.CatalogCloser, error) {
	credentials, credentialsError := catalog.ResolveCredentials(
		catalog.Credentials{
			ServerURL: application.configuration.Catalog.ServerURL,
			Username:  application.configuration.Catalog.Username,
			Password:  application.configuration.Catalog.Password,
		},
		catalog.NewTerminalPrompter(),
	)
	if credentialsError != nil {
		return nil, nil, credentialsError
	}

	rpcClient, clientError := catalogxmlrpc.NewClient(catalogxmlrpc.Configuration{
		ServerURL: credentials.ServerURL,
		Username:  credentials.Username,
		Password:  credentials.Password,
	})
	if clientError != nil {
		return nil, nil, clientError
	}

	if loginError := rpcClient.Login(executionContext, credentials.Username, credentials.Password); loginError != nil {
		return nil, nil, loginError
	}

	closeSession := func() {
		if logoutError := rpcClient.Logout(context.Background()); logoutError != nil {
			application.logger.Warn(sessionLogoutFailedMessageConstant, zap.Error(logoutError))
		}
	}

	return catalog.NewLoggingClient(rpcClient, application.logger), closeSession, nil
}

func (application *Application) stageSequence() shared.StageSequence {
	if len(application.configuration.Channels.Stages) == 0 {
		return shared.DefaultStageSequence
	}
	return shared.StageSequence(application.configuration.Channels.Stages)
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for configurationKey, configurationValue := range clone.DefaultConfigurationValues(cloneConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}
	for configurationKey, configurationValue := range migrate.DefaultConfigurationValues(migrateConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}
	for configurationKey, configurationValue := range rollout.DefaultConfigurationValues(rolloutConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}
	for configurationKey, configurationValue := range deletion.DefaultConfigurationValues(deleteConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
