package utils

import (
	"errors"
	"fmt"
)

// Error codes for node operations
const (
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeBindFailed    = "BIND_FAILED"
	ErrCodeQueueFull     = "QUEUE_FULL"
	ErrCodeSendFailed    = "SEND_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeCircuitOpen   = "CIRCUIT_OPEN"
)

// Error is an error with a programmatic code and optional cause
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code so sentinel-style comparisons work across wrapping
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewCodedError creates a new coded error
func NewCodedError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the code of the first coded error in the chain, or ""
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// WrapError wraps an error with additional context
func WrapError(err error, msg string) error {
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapCoded wraps an error into a coded error
func WrapCoded(err error, code, msg string) error {
	return &Error{Code: code, Message: msg, Cause: err}
}
