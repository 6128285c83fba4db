package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeUpstream      ErrorType = "upstream"
	ErrorTypeDataIntegrity ErrorType = "data_integrity"
	ErrorTypeInvalidParams ErrorType = "invalid_params"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error represents a typed failure with an optional HTTP status code and the
// origin tag of the operation that produced it.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Origin  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	} else {
		msg = fmt.Sprintf("%s error: %s", e.Type, msg)
	}
	if e.Origin != "" {
		return e.Origin + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around an underlying cause
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// WithOrigin returns a copy of the error tagged with the given origin
func (e *Error) WithOrigin(origin string) *Error {
	c := *e
	c.Origin = origin
	return &c
}

// WithCode returns a copy of the error carrying the given status code
func (e *Error) WithCode(code int) *Error {
	c := *e
	c.Code = code
	return &c
}

// Network reports a timeout or connection failure
func Network(err error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("network error: %v", err), Err: err}
}

// Upstream reports a malformed or unexpected upstream response
func Upstream(format string, args ...interface{}) *Error {
	return New(ErrorTypeUpstream, format, args...)
}

// DataIntegrity reports an expected entity missing from a successful response
func DataIntegrity(format string, args ...interface{}) *Error {
	return New(ErrorTypeDataIntegrity, format, args...)
}

// InvalidParams reports caller-supplied parameters that cannot be used
func InvalidParams(format string, args ...interface{}) *Error {
	return New(ErrorTypeInvalidParams, format, args...)
}

// TypeOf returns the ErrorType carried anywhere in err's chain, or
// ErrorTypeUnknown when err is not a typed error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 502, 503, 504:
		return true
	default:
		return false
	}
}
