package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	serverPromptConstant              = "Catalog server URL: "
	usernamePromptConstant            = "Username: "
	passwordPromptTemplateConstant    = "Password for %s: "
	promptUnavailableMessageConstant  = "credentials incomplete and no terminal available for prompting"
	credentialsIncompleteMessageConst = "catalog credentials incomplete"
	promptReadFailureTemplateConstant = "unable to read credential input: %w"
	passwordReadFailureTemplateConst  = "unable to read password: %w"
	promptNewlineConstant             = "\n"
	environmentServerVariableConstant = "HOUSTON_CATALOG_SERVER_URL"
	environmentUserVariableConstant   = "HOUSTON_CATALOG_USERNAME"
	environmentPassVariableConstant   = "HOUSTON_CATALOG_PASSWORD"
)

// ErrCredentialsIncomplete indicates the resolver could not assemble a full
// credential set.
var ErrCredentialsIncomplete = errors.New(credentialsIncompleteMessageConst)

// ErrPromptUnavailable indicates interactive prompting was required but no
// terminal is attached.
var ErrPromptUnavailable = errors.New(promptUnavailableMessageConstant)

// Credentials carries the connection identity for the catalog server.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}

// Complete reports whether every credential field is populated.
func (credentials Credentials) Complete() bool {
	return len(credentials.ServerURL) > 0 && len(credentials.Username) > 0 && len(credentials.Password) > 0
}

// CredentialPrompter collects missing credential fields interactively.
type CredentialPrompter interface {
	PromptServerURL() (string, error)
	PromptUsername() (string, error)
	PromptPassword(username string) (string, error)
}

// TerminalPrompter prompts on the controlling terminal, reading passwords
// with echo disabled.
type TerminalPrompter struct {
	Input  *os.File
	Output io.Writer
}

// NewTerminalPrompter constructs a prompter bound to stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{Input: os.Stdin, Output: os.Stderr}
}

func (prompter *TerminalPrompter) promptLine(promptText string) (string, error) {
	if !term.IsTerminal(int(prompter.Input.Fd())) {
		return "", ErrPromptUnavailable
	}

	fmt.Fprint(prompter.Output, promptText)
	lineReader := bufio.NewReader(prompter.Input)
	line, readError := lineReader.ReadString('\n')
	if readError != nil && len(line) == 0 {
		return "", fmt.Errorf(promptReadFailureTemplateConstant, readError)
	}
	return strings.TrimSpace(line), nil
}

// PromptServerURL reads the catalog server URL from the terminal.
func (prompter *TerminalPrompter) PromptServerURL() (string, error) {
	return prompter.promptLine(serverPromptConstant)
}

// PromptUsername reads the login name from the terminal.
func (prompter *TerminalPrompter) PromptUsername() (string, error) {
	return prompter.promptLine(usernamePromptConstant)
}

// PromptPassword reads the password with terminal echo disabled.
func (prompter *TerminalPrompter) PromptPassword(username string) (string, error) {
	fileDescriptor := int(prompter.Input.Fd())
	if !term.IsTerminal(fileDescriptor) {
		return "", ErrPromptUnavailable
	}

	fmt.Fprintf(prompter.Output, passwordPromptTemplateConstant, username)
	passwordBytes, readError := term.ReadPassword(fileDescriptor)
	fmt.Fprint(prompter.Output, promptNewlineConstant)
	if readError != nil {
		return "", fmt.Errorf(passwordReadFailureTemplateConst, readError)
	}
	return string(passwordBytes), nil
}

// ResolveCredentials fills missing credential fields from the environment and
// then from the prompter, failing when a field cannot be obtained.
func ResolveCredentials(configured Credentials, prompter CredentialPrompter) (Credentials, error) {
	resolved := Credentials{
		ServerURL: strings.TrimSpace(configured.ServerURL),
		Username:  strings.TrimSpace(configured.Username),
		Password:  configured.Password,
	}

	if len(resolved.ServerURL) == 0 {
		resolved.ServerURL = strings.TrimSpace(os.Getenv(environmentServerVariableConstant))
	}
	if len(resolved.Username) == 0 {
		resolved.Username = strings.TrimSpace(os.Getenv(environmentUserVariableConstant))
	}
	if len(resolved.Password) == 0 {
		resolved.Password = os.Getenv(environmentPassVariableConstant)
	}

	if resolved.Complete() {
		return resolved, nil
	}
	if prompter == nil {
		return Credentials{}, ErrCredentialsIncomplete
	}

	var promptError error
	if len(resolved.ServerURL) == 0 {
		if resolved.ServerURL, promptError = prompter.PromptServerURL(); promptError != nil {
			return Credentials{}, promptError
		}
	}
	if len(resolved.Username) == 0 {
		if resolved.Username, promptError = prompter.PromptUsername(); promptError != nil {
			return Credentials{}, promptError
		}
	}
	if len(resolved.Password) == 0 {
		if resolved.Password, promptError = prompter.PromptPassword(resolved.Username); promptError != nil {
			return Credentials{}, promptError
		}
	}

	if !resolved.Complete() {
		return Credentials{}, ErrCredentialsIncomplete
	}
	return resolved, nil
}
