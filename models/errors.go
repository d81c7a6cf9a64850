package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures at the browser-automation boundary.
type ErrorCode string

// The automation codes form a closed set: every failure coming out of a
// session is mapped to exactly one of them.
const (
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeElementNotFound  ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeNavigationFailed ErrorCode = "NAVIGATION_FAILED"
	ErrCodeProtocolError    ErrorCode = "PROTOCOL_ERROR"

	// ErrCodeInvalidTicker is raised before any session is touched.
	ErrCodeInvalidTicker ErrorCode = "INVALID_TICKER"
)

// AutomationError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AutomationError struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped original error
}

func (e *AutomationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request might succeed later.
// Nothing in the request path retries; the flag only feeds logs and metrics.
func (e *AutomationError) Retryable() bool {
	switch e.Code {
	case ErrCodeConnectionFailed, ErrCodeNavigationFailed:
		return true
	default:
		return false
	}
}

// NewAutomationError creates a new AutomationError.
func NewAutomationError(code ErrorCode, message string, err error) *AutomationError {
	return &AutomationError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err. Errors that did not come through
// the automation boundary report ErrCodeProtocolError.
func CodeOf(err error) ErrorCode {
	var ae *AutomationError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeProtocolError
}
