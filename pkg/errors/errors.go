// Package errors provides structured error handling for opentrack
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents a malformed destination payload (HTTP 400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents credential failures (HTTP 401)
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypePermission represents permission failures (HTTP 403)
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeRateLimit represents rate limit errors (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer represents destination 5xx errors
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeNetwork represents connection-level errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConflict represents duplicate-resource errors (HTTP 409)
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeUnknownPayload represents an unrecognized event kind
	ErrorTypeUnknownPayload ErrorType = "unknown_payload"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeUnknown represents errors that match no classification rule
	ErrorTypeUnknown ErrorType = "unknown"
)

// Error represents a structured error with context. Retryable is decided at
// classification time rather than derived from Type alone: two network errors
// can differ (connection reset retries, DNS-not-found does not).
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
	Details    map[string]interface{}
	Stack      []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatusCode records the HTTP status that produced the error
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: defaultRetryable(errType),
		Stack:     captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack and retryability
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:       errType,
			Message:    message,
			StatusCode: existingErr.StatusCode,
			Retryable:  existingErr.Retryable,
			Cause:      err,
			Stack:      existingErr.Stack,
		}
	}

	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: defaultRetryable(errType),
		Cause:     err,
		Stack:     captureStack(2),
	}
}

// defaultRetryable is the type-level retryability default. Classify overrides
// it for the cases where the type alone is not enough.
func defaultRetryable(errType ErrorType) bool {
	switch errType {
	case ErrorTypeRateLimit, ErrorTypeServer, ErrorTypeTimeout, ErrorTypeNetwork:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsConflict reports whether the error is the distinguishable duplicate-create
// shape a remote store throws when a table already exists.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeConflict || e.StatusCode == 409
	}
	return false
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
