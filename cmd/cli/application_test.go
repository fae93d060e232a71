package cli_test

import (
	"testing"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/cmd/cli"
	"github.com/peteches/houston/internal/channels/clone"
	"github.com/peteches/houston/internal/channels/deletion"
	"github.com/peteches/houston/internal/channels/migrate"
	"github.com/peteches/houston/internal/channels/rollout"
	"github.com/peteches/houston/internal/channels/shared"
)

const (
	cloneDefaultsKeyConstant   = "channels.clone"
	migrateDefaultsKeyConstant = "channels.migrate"
	rolloutDefaultsKeyConstant = "channels.rollout"
	deleteDefaultsKeyConstant  = "channels.delete"
)

func TestSubcommandDefaultsUnmarshalIntoApplicationConfiguration(t *testing.T) {
	viperInstance := viper.New()
	for defaultsKey, defaultsValue := range clone.DefaultConfigurationValues(cloneDefaultsKeyConstant) {
		viperInstance.SetDefault(defaultsKey, defaultsValue)
	}
	for defaultsKey, defaultsValue := range migrate.DefaultConfigurationValues(migrateDefaultsKeyConstant) {
		viperInstance.SetDefault(defaultsKey, defaultsValue)
	}
	for defaultsKey, defaultsValue := range rollout.DefaultConfigurationValues(rolloutDefaultsKeyConstant) {
		viperInstance.SetDefault(defaultsKey, defaultsValue)
	}
	for defaultsKey, defaultsValue := range deletion.DefaultConfigurationValues(deleteDefaultsKeyConstant) {
		viperInstance.SetDefault(defaultsKey, defaultsValue)
	}

	configuration := cli.ApplicationConfiguration{}
	require.NoError(t, viperInstance.Unmarshal(&configuration))

	require.Equal(t, shared.DefaultStageSequence.First(), configuration.Channels.Clone.Stage)
	require.Equal(t, shared.DefaultConcurrencyLimit, configuration.Channels.Clone.Concurrency)
	require.Equal(t, shared.DefaultConcurrencyLimit, configuration.Channels.Migrate.Concurrency)
	require.Equal(t, shared.DefaultConcurrencyLimit, configuration.Channels.Rollout.Concurrency)
	require.Equal(t, shared.DefaultConcurrencyLimit, configuration.Channels.Delete.Concurrency)
	require.Empty(t, configuration.Channels.Rollout.StatePath)
}

func TestApplicationConfigurationDecodesFromPlainMaps(t *testing.T) {
	rawConfiguration := map[string]any{
		"common": map[string]any{
			"log_level":  "debug",
			"log_format": "console",
		},
		"catalog": map[string]any{
			"server_url": "spacewalk.example.com",
			"username":   "operator",
			"password":   "hunter2",
		},
		"channels": map[string]any{
			"stages": []string{"dev", "qa"},
			"clone": map[string]any{
				"stage":       "qa",
				"concurrency": 4,
			},
			"rollout": map[string]any{
				"state_path": "/tmp/rollout.yaml",
			},
		},
	}

	configuration := cli.ApplicationConfiguration{}
	require.NoError(t, mapstructure.Decode(rawConfiguration, &configuration))

	require.Equal(t, "debug", configuration.Common.LogLevel)
	require.Equal(t, "console", configuration.Common.LogFormat)
	require.Equal(t, "spacewalk.example.com", configuration.Catalog.ServerURL)
	require.Equal(t, "operator", configuration.Catalog.Username)
	require.Equal(t, "hunter2", configuration.Catalog.Password)
	require.Equal(t, []string{"dev", "qa"}, configuration.Channels.Stages)
	require.Equal(t, "qa", configuration.Channels.Clone.Stage)
	require.Equal(t, 4, configuration.Channels.Clone.Concurrency)
	require.Equal(t, "/tmp/rollout.yaml", configuration.Channels.Rollout.StatePath)
}

func TestEmbeddedDefaultConfigurationRoundTrips(t *testing.T) {
	configurationData, configurationType := cli.EmbeddedDefaultConfiguration()
	require.Equal(t, "yaml", configurationType)
	require.NotEmpty(t, configurationData)

	// Mutating the returned slice must not corrupt the embedded copy.
	configurationData[0] = '#'
	freshData, _ := cli.EmbeddedDefaultConfiguration()
	require.NotEqual(t, configurationData[0], freshData[0])
}
