package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteches/houston/internal/catalog"
)

type stubPrompter struct {
	serverURL      string
	username       string
	password       string
	promptedFields []string
	promptError    error
}

func (prompter *stubPrompter) PromptServerURL() (string, error) {
	prompter.promptedFields = append(prompter.promptedFields, "server")
	return prompter.serverURL, prompter.promptError
}

func (prompter *stubPrompter) PromptUsername() (string, error) {
	prompter.promptedFields = append(prompter.promptedFields, "username")
	return prompter.username, prompter.promptError
}

func (prompter *stubPrompter) PromptPassword(string) (string, error) {
	prompter.promptedFields = append(prompter.promptedFields, "password")
	return prompter.password, prompter.promptError
}

func TestResolveCredentials(t *testing.T) {
	t.Run("CompleteConfigurationSkipsPrompting", func(t *testing.T) {
		prompter := &stubPrompter{}
		configured := catalog.Credentials{ServerURL: "spacewalk.example.com", Username: "operator", Password: "secret"}

		resolved, resolveError := catalog.ResolveCredentials(configured, prompter)
		require.NoError(t, resolveError)
		require.Equal(t, configured, resolved)
		require.Empty(t, prompter.promptedFields)
	})

	t.Run("MissingFieldsPrompted", func(t *testing.T) {
		prompter := &stubPrompter{password: "prompted-secret"}
		configured := catalog.Credentials{ServerURL: "spacewalk.example.com", Username: "operator"}

		resolved, resolveError := catalog.ResolveCredentials(configured, prompter)
		require.NoError(t, resolveError)
		require.Equal(t, "prompted-secret", resolved.Password)
		require.Equal(t, []string{"password"}, prompter.promptedFields)
	})

	t.Run("EnvironmentFillsBeforePrompting", func(t *testing.T) {
		t.Setenv("HOUSTON_CATALOG_PASSWORD", "environment-secret")
		prompter := &stubPrompter{}
		configured := catalog.Credentials{ServerURL: "spacewalk.example.com", Username: "operator"}

		resolved, resolveError := catalog.ResolveCredentials(configured, prompter)
		require.NoError(t, resolveError)
		require.Equal(t, "environment-secret", resolved.Password)
		require.Empty(t, prompter.promptedFields)
	})

	t.Run("NoPrompterFailsClosed", func(t *testing.T) {
		_, resolveError := catalog.ResolveCredentials(catalog.Credentials{ServerURL: "spacewalk.example.com"}, nil)
		require.ErrorIs(t, resolveError, catalog.ErrCredentialsIncomplete)
	})
}
