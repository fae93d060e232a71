package catalog

import (
	"errors"
	"fmt"
)

const (
	channelNotFoundTemplateConstant = "channel %q not found"
	systemNotFoundTemplateConstant  = "system %d not found"
	callFailureTemplateConstant     = "catalog call %s failed: %v"
)

// NotFoundError reports that a referenced channel or system does not exist
// on the catalog server.
type NotFoundError struct {
	ChannelLabel string
	SystemID     SystemID
}

// Error describes the missing entity.
func (notFoundError NotFoundError) Error() string {
	if len(notFoundError.ChannelLabel) > 0 {
		return fmt.Sprintf(channelNotFoundTemplateConstant, notFoundError.ChannelLabel)
	}
	return fmt.Sprintf(systemNotFoundTemplateConstant, notFoundError.SystemID)
}

// IsNotFound reports whether the error chain contains a NotFoundError.
func IsNotFound(candidateError error) bool {
	var notFoundError NotFoundError
	return errors.As(candidateError, &notFoundError)
}

// CallError captures the failure of a single remote catalog call.
type CallError struct {
	CallName string
	Cause    error
}

// Error describes the failed call.
func (callError CallError) Error() string {
	return fmt.Sprintf(callFailureTemplateConstant, callError.CallName, callError.Cause)
}

// Unwrap exposes the underlying transport failure.
func (callError CallError) Unwrap() error {
	return callError.Cause
}
