// Package errors provides centralized error types and exit codes for devmend.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for different error categories.
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitConfigError      = 2
	ExitRetriesExhausted = 3
	ExitLockHeld         = 4
	ExitPreflightError   = 5
)

// DevmendError is the base error type for all devmend-specific errors.
type DevmendError struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message, including the cause if present.
func (e *DevmendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *DevmendError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(msg string) *DevmendError {
	return &DevmendError{Code: ExitConfigError, Message: msg}
}

// NewConfigErrorWithCause creates a new configuration error with an underlying cause.
func NewConfigErrorWithCause(msg string, cause error) *DevmendError {
	return &DevmendError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewRetriesExhaustedError reports that the supervised process could not be kept alive.
func NewRetriesExhaustedError(msg string, cause error) *DevmendError {
	return &DevmendError{Code: ExitRetriesExhausted, Message: msg, Cause: cause}
}

// NewLockHeldError reports that another monitor owns the project.
func NewLockHeldError(msg string, cause error) *DevmendError {
	return &DevmendError{Code: ExitLockHeld, Message: msg, Cause: cause}
}

// NewPreflightError reports failed startup checks.
func NewPreflightError(msg string) *DevmendError {
	return &DevmendError{Code: ExitPreflightError, Message: msg}
}

// NewGeneralError creates a new general error.
func NewGeneralError(msg string) *DevmendError {
	return &DevmendError{Code: ExitGeneralError, Message: msg}
}

// NewGeneralErrorWithCause creates a new general error with an underlying cause.
func NewGeneralErrorWithCause(msg string, cause error) *DevmendError {
	return &DevmendError{Code: ExitGeneralError, Message: msg, Cause: cause}
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, ExitConfigError)
}

// IsRetriesExhausted checks if an error reports exhausted restarts.
func IsRetriesExhausted(err error) bool {
	return hasCode(err, ExitRetriesExhausted)
}

// IsLockHeld checks if an error reports a held lock.
func IsLockHeld(err error) bool {
	return hasCode(err, ExitLockHeld)
}

func hasCode(err error, code int) bool {
	var dmErr *DevmendError
	if errors.As(err, &dmErr) {
		return dmErr.Code == code
	}
	return false
}

// GetExitCode returns the exit code for an error.
// If the error is not a DevmendError, it returns ExitGeneralError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var dmErr *DevmendError
	if errors.As(err, &dmErr) {
		return dmErr.Code
	}
	return ExitGeneralError
}
