package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Orchestration error codes
const (
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeCapabilityMismatch ErrorCode = "CAPABILITY_MISMATCH"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeUnavailable        ErrorCode = "UNAVAILABLE"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Sentinel errors. errors.Is matches any *Error carrying the same code,
// so wrapped or enriched variants still compare equal.
var (
	ErrInvalidConfig      = NewError(ErrCodeInvalidConfig, "invalid configuration").WithHTTPStatus(http.StatusBadRequest)
	ErrAgentNotFound      = NewError(ErrCodeNotFound, "agent not found").WithHTTPStatus(http.StatusNotFound)
	ErrTeamNotFound       = NewError(ErrCodeNotFound, "team not found").WithHTTPStatus(http.StatusNotFound)
	ErrCapabilityMismatch = NewError(ErrCodeCapabilityMismatch, "object does not satisfy the agent contract").WithHTTPStatus(http.StatusUnprocessableEntity)
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == e.Message || t.Message == "")
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error derived from a sentinel, keeping its code and
// HTTP status and attaching a formatted cause.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		HTTPStatus: sentinel.HTTPStatus,
		Retryable:  sentinel.Retryable,
		Cause:      fmt.Errorf(format, args...),
	}
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

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// HTTPStatusOf maps an error to an HTTP status, defaulting to 500.
func HTTPStatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
