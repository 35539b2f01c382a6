package security

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a security rejection.
type Kind int

// Rejection kinds.
const (
	KindAuthentication Kind = iota + 1
	KindAuthorization
	KindValidation
	KindRateLimit
)

// DefaultRetryAfterSeconds is used by rate limit errors without an explicit wait.
const DefaultRetryAfterSeconds = 60

// Messages used by the pipeline.
const (
	MsgAPIKeyRequired          = "API key required"
	MsgInvalidAPIKey           = "Invalid API key"
	MsgInsufficientPermissions = "Insufficient permissions"
	MsgIPNotAllowed            = "IP not allowed"
	MsgOriginNotAllowed        = "Origin not allowed"
	MsgRateLimitExceeded       = "Rate limit exceeded"
)

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("authorization failed")
	ErrValidation     = errors.New("request validation failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// StatusCode returns the HTTP status of the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuthentication:
		return ErrAuthentication
	case KindAuthorization:
		return ErrAuthorization
	case KindValidation:
		return ErrValidation
	case KindRateLimit:
		return ErrRateLimited
	default:
		return nil
	}
}

// Error is a security rejection. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string

	// RequiredScopes and ActualScopes are set on authorization errors.
	RequiredScopes []string
	ActualScopes   []string

	// RetryAfterSeconds is set on rate limit errors.
	RetryAfterSeconds int

	Cause error
}

// NewAuthenticationError creates a 401 error.
func NewAuthenticationError(message string, cause error) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return &Error{Kind: KindAuthentication, Message: message, Cause: cause}
}

// NewAuthorizationError creates a 403 error carrying the scope lists.
func NewAuthorizationError(message string, required, actual []string) *Error {
	if message == "" {
		message = MsgInsufficientPermissions
	}
	return &Error{
		Kind:           KindAuthorization,
		Message:        message,
		RequiredScopes: required,
		ActualScopes:   actual,
	}
}

// NewValidationError creates a 404 error.
func NewValidationError(message string) *Error {
	if message == "" {
		message = "Request validation failed"
	}
	return &Error{Kind: KindValidation, Message: message}
}

// NewRateLimitError creates a 429 error. Non-positive retryAfter uses
// DefaultRetryAfterSeconds.
func NewRateLimitError(message string, retryAfter int) *Error {
	if message == "" {
		message = MsgRateLimitExceeded
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfterSeconds
	}
	return &Error{Kind: KindRateLimit, Message: message, RetryAfterSeconds: retryAfter}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// StatusCode returns the native HTTP status of the error.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var secErr *Error
	if errors.As(err, &secErr) {
		return secErr, true
	}
	return nil, false
}
