package errors

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
)

// Classify normalizes a raw transport or provider error into a structured
// *Error with a retryability decision. Heterogeneous failures (googleapi
// errors, net errors, plain errors) all pass through here before the retry
// loop looks at them. An error that is already classified is returned as-is.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		e := ClassifyStatus(apiErr.Code, apiErr.Message)
		e.Cause = err
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      ErrorTypeTimeout,
			Message:   "request deadline exceeded",
			Retryable: true,
			Cause:     err,
			Stack:     captureStack(2),
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// An unresolvable host is an operator problem; retrying will not fix it.
		return &Error{
			Type:      ErrorTypeNetwork,
			Message:   "dns lookup failed for " + dnsErr.Name,
			Retryable: false,
			Cause:     err,
			Stack:     captureStack(2),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Type:      ErrorTypeTimeout,
			Message:   "network timeout",
			Retryable: true,
			Cause:     err,
			Stack:     captureStack(2),
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return &Error{
			Type:      ErrorTypeNetwork,
			Message:   "connection failed",
			Retryable: true,
			Cause:     err,
			Stack:     captureStack(2),
		}
	}

	// Fall back to message patterns for errors that lost their concrete type
	// across library boundaries.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"):
		return &Error{
			Type:      ErrorTypeNetwork,
			Message:   "connection failed",
			Retryable: true,
			Cause:     err,
			Stack:     captureStack(2),
		}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return &Error{
			Type:      ErrorTypeTimeout,
			Message:   "operation timed out",
			Retryable: true,
			Cause:     err,
			Stack:     captureStack(2),
		}
	case strings.Contains(msg, "no such host"):
		return &Error{
			Type:      ErrorTypeNetwork,
			Message:   "dns lookup failed",
			Retryable: false,
			Cause:     err,
			Stack:     captureStack(2),
		}
	}

	return &Error{
		Type:      ErrorTypeUnknown,
		Message:   err.Error(),
		Retryable: false,
		Cause:     err,
		Stack:     captureStack(2),
	}
}

// ClassifyStatus maps an HTTP status code into the error taxonomy. The message
// is the destination-specific human string; only the type and retryability
// drive behavior.
func ClassifyStatus(code int, message string) *Error {
	e := &Error{
		Message:    message,
		StatusCode: code,
		Stack:      captureStack(2),
	}

	switch {
	case code == 400:
		e.Type = ErrorTypeValidation
	case code == 401:
		e.Type = ErrorTypeAuthentication
	case code == 403:
		e.Type = ErrorTypePermission
	case code == 409:
		e.Type = ErrorTypeConflict
	case code == 429:
		e.Type = ErrorTypeRateLimit
		e.Retryable = true
	case code >= 500 && code <= 599:
		e.Type = ErrorTypeServer
		e.Retryable = true
	default:
		e.Type = ErrorTypeUnknown
	}

	return e
}
