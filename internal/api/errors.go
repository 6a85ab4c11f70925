package api

import (
	"errors"
	"fmt"
	"net"
)

// ErrNotFound matches API errors for resources that do not exist. Callers
// use errors.Is(err, ErrNotFound) to translate a 404 into "does not exist"
// rather than a failure.
var ErrNotFound = errors.New("not found")

// APIError is a failed API request, annotated with enough context to
// diagnose without network traces.
type APIError struct {
	Method   string
	Path     string
	Status   int
	Message  string
	Attempts int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

// Is reports ErrNotFound equivalence for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

// Retryable reports whether the status indicates a transient condition
// worth retrying: 408, 429, and the 5xx gateway/availability statuses.
func (e *APIError) Retryable() bool {
	return retryableStatus(e.Status)
}

// StreamError is a streaming-protocol violation: the server emitted an
// explicit error event, or the stream ended without a terminal event. A
// checkpoint or restore without a confirmed terminal event cannot be
// trusted to have completed, so no partial success is ever returned.
type StreamError struct {
	Op      string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream: %s", e.Op, e.Message)
}

// retryableStatus reports whether an HTTP status is transient.
func retryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// retryableNetworkError reports whether a transport-level error is
// transient: timeouts, connection resets, DNS failures. Context
// cancellation is not retryable; the caller gave up.
func retryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
