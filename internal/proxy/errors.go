package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for proxy operations.
var (
	// ErrInvalidTargetURL indicates that the upstream URL is invalid.
	ErrInvalidTargetURL = errors.New("invalid target URL")

	// ErrUpstreamTimeout indicates that the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream is unavailable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ProxyError represents a proxy-related error with details.
type ProxyError struct {
	Op      string // Operation that failed
	Target  string // Target URL if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	msg := fmt.Sprintf("proxy error [%s]", e.Op)
	if e.Target != "" {
		msg += " target=" + e.Target
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProxyError) Is(target error) bool {
	_, ok := target.(*ProxyError)
	return ok
}

// NewInvalidTargetError creates an error for an invalid upstream URL.
func NewInvalidTargetError(target string, cause error) *ProxyError {
	if cause == nil {
		cause = ErrInvalidTargetURL
	} else {
		cause = fmt.Errorf("%w: %w", ErrInvalidTargetURL, cause)
	}
	return &ProxyError{
		Op:      "parse_target",
		Target:  target,
		Message: "invalid target URL",
		Cause:   cause,
	}
}

// classify maps a transport error to a sentinel, an HTTP status and a
// metrics label.
func classify(err error) (sentinel error, status int, label string) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ErrUpstreamTimeout, http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return err, StatusClientClosedRequest, "canceled"
	default:
		return ErrUpstreamUnavailable, http.StatusBadGateway, "unavailable"
	}
}

// StatusClientClosedRequest is the non-standard status logged when the
// client goes away before the upstream answers.
const StatusClientClosedRequest = 499

// IsProxyError checks if an error is a ProxyError.
func IsProxyError(err error) bool {
	var proxyErr *ProxyError
	return errors.As(err, &proxyErr)
}
