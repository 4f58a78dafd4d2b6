package types

import (
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Instrumentation error codes
const (
	ErrHookFailure          ErrorCode = "HOOK_FAILURE"
	ErrNormalizationFailure ErrorCode = "NORMALIZATION_FAILURE"
	ErrConfiguration        ErrorCode = "CONFIGURATION"
	ErrSessionClosed        ErrorCode = "SESSION_CLOSED"
)

// Delivery error codes
const (
	ErrTransientDelivery ErrorCode = "TRANSIENT_DELIVERY"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrForbidden         ErrorCode = "FORBIDDEN"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrPayloadRejected   ErrorCode = "PAYLOAD_REJECTED"
	ErrBufferOverflow    ErrorCode = "BUFFER_OVERFLOW"
)

// Error is a structured error carrying the code, the HTTP status that
// produced it (when any), and whether the operation may be retried.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	// RetryAfter carries a collector-provided delay (429 Retry-After).
	// Zero means no delay was provided.
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}
