package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

var securityTracer = otel.Tracer("mcp-http-security/security")

// RequestValidator checks request metadata before authentication.
// Returning an *Error rejects the request with its Kind's status.
type RequestValidator interface {
	Validate(r *http.Request) error
}

// CredentialValidator resolves a presented token. Rejections must match
// apikey.ErrInvalidKey; any other error is treated as an internal fault.
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (*apikey.KeyInfo, error)
}

// RateLimiter decides whether a request identified by key may proceed.
// When it may not, wait is the time until the next allowed request.
type RateLimiter interface {
	Allow(key string) (allowed bool, wait time.Duration)
}

// RateLimitKeyFunc derives the rate limit key for a request. info is nil
// when authentication is disabled.
type RateLimitKeyFunc func(r *http.Request, info *apikey.KeyInfo) string

// ErrorHandler writes the response for errors that are not security
// rejections.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware runs the request gate.
type Middleware struct {
	config       *Config
	validator    RequestValidator
	credentials  CredentialValidator
	extractor    apikey.Extractor
	limiter      RateLimiter
	limitKey     RateLimitKeyFunc
	errorHandler ErrorHandler
	logger       observability.Logger
	metrics      *Metrics
}

// Option is a functional option for the middleware.
type Option func(*Middleware)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithRateLimiter enables rate limiting between authentication and
// authorization.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(m *Middleware) {
		m.limiter = limiter
	}
}

// WithRateLimitKey overrides how rate limit keys are derived.
func WithRateLimitKey(fn RateLimitKeyFunc) Option {
	return func(m *Middleware) {
		m.limitKey = fn
	}
}

// WithErrorHandler sets the handler for internal errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(m *Middleware) {
		m.errorHandler = h
	}
}

// WithExtractor overrides the token extractor built from the header config.
func WithExtractor(e apikey.Extractor) Option {
	return func(m *Middleware) {
		m.extractor = e
	}
}

// NewMiddleware creates a gate. validator may be nil to skip request
// validation. credentials is required when authentication is enabled.
func NewMiddleware(validator RequestValidator, credentials CredentialValidator, cfg *Config, opts ...Option) (*Middleware, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
		cfg.ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsAuthRequired() && credentials == nil {
		return nil, errors.New("credential validator is required when authentication is enabled")
	}

	m := &Middleware{
		config:      cfg,
		validator:   validator,
		credentials: credentials,
		logger:      observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.extractor == nil {
		m.extractor = apikey.DefaultExtractor(cfg.AuthHeader, cfg.APIKeyHeader)
	}
	if m.limitKey == nil {
		m.limitKey = DefaultRateLimitKey
	}
	if m.errorHandler == nil {
		m.errorHandler = m.defaultErrorHandler
	}
	if m.metrics == nil {
		m.metrics = NewMetrics("mcpguard")
	}

	return m, nil
}

// Config returns a copy of the effective configuration.
func (m *Middleware) Config() *Config {
	return m.config.Clone()
}

// DefaultRateLimitKey keys by key id when authenticated, otherwise by the
// remote host without its port.
func DefaultRateLimitKey(r *http.Request, info *apikey.KeyInfo) string {
	if info != nil {
		return "key:" + info.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// Process runs the gate. On success it returns r, carrying the
// authenticated key and its scopes in its context when authentication ran.
// Rejections are *Error values; other errors are internal faults.
func (m *Middleware) Process(r *http.Request) (*http.Request, error) {
	start := time.Now()
	ctx, span := securityTracer.Start(r.Context(), "security.Process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	out, info, err := m.process(r)
	if info != nil {
		span.SetAttributes(attribute.String("security.key_id", info.ID))
	}
	if err != nil {
		outcome, reason := outcomeError, "internal"
		if secErr, ok := AsError(err); ok {
			outcome, reason = outcomeRejected, secErr.Kind.String()
			span.SetAttributes(attribute.String("security.rejection", reason))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		m.metrics.RecordDecision(outcome, reason, time.Since(start))
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	m.metrics.RecordDecision(outcomeAllowed, "ok", time.Since(start))
	return out, nil
}

// process returns the authenticated key alongside any error so rejections
// after authentication can still be attributed.
func (m *Middleware) process(r *http.Request) (*http.Request, *apikey.KeyInfo, error) {
	if m.validator != nil {
		if err := m.validator.Validate(r); err != nil {
			return nil, nil, err
		}
	}

	var info *apikey.KeyInfo
	if m.config.IsAuthRequired() {
		var err error
		info, err = m.authenticate(r)
		if err != nil {
			return nil, nil, err
		}
	}

	if m.limiter != nil {
		if allowed, wait := m.limiter.Allow(m.limitKey(r, info)); !allowed {
			return nil, info, NewRateLimitError(MsgRateLimitExceeded, retryAfterSeconds(wait))
		}
	}

	if info != nil && len(m.config.AllowedScopes) > 0 && !info.HasAnyScope(m.config.AllowedScopes) {
		return nil, info, NewAuthorizationError(
			MsgInsufficientPermissions,
			append([]string(nil), m.config.AllowedScopes...),
			append([]string(nil), info.Scopes...),
		)
	}

	if info == nil {
		return r, nil, nil
	}
	ctx := contextWithCredential(r.Context(), m.config.KeyAttribute, m.config.ScopesAttribute, info)
	return r.WithContext(ctx), info, nil
}

func (m *Middleware) authenticate(r *http.Request) (*apikey.KeyInfo, error) {
	token, err := m.extractor.Extract(r)
	if err != nil || token == "" {
		return nil, NewAuthenticationError(MsgAPIKeyRequired, err)
	}

	info, err := m.credentials.Validate(r.Context(), token)
	switch {
	case errors.Is(err, apikey.ErrInvalidKey):
		return nil, NewAuthenticationError(MsgInvalidAPIKey, err)
	case err != nil:
		return nil, fmt.Errorf("credential validation failed: %w", err)
	case info == nil:
		return nil, NewAuthenticationError(MsgInvalidAPIKey, nil)
	}
	return info, nil
}

// retryAfterSeconds rounds wait up to whole seconds.
func retryAfterSeconds(wait time.Duration) int {
	if wait <= 0 {
		return DefaultRetryAfterSeconds
	}
	return int(math.Ceil(wait.Seconds()))
}

// Handler wraps next with the gate.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := m.Process(r)
		if err != nil {
			if secErr, ok := AsError(err); ok {
				m.logRejection(r, secErr)
				WriteError(w, secErr, m.config.SilentFail)
				return
			}
			m.errorHandler(w, r, err)
			return
		}
		HeadersHandler(m.config.Headers, next).ServeHTTP(w, out)
	})
}

func (m *Middleware) logRejection(r *http.Request, secErr *Error) {
	fields := []observability.Field{
		observability.String("kind", secErr.Kind.String()),
		observability.String("path", r.URL.Path),
		observability.String("remote_addr", r.RemoteAddr),
	}
	if secErr.Kind == KindAuthorization {
		fields = append(fields,
			observability.Strings("required_scopes", secErr.RequiredScopes),
			observability.Strings("actual_scopes", secErr.ActualScopes),
		)
	}
	m.logger.WithContext(r.Context()).Debug("request rejected", fields...)
}

func (m *Middleware) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.WithContext(r.Context()).Error("security gate failed", observability.Error(err))
	writeJSON(w, http.StatusInternalServerError, "internal server error")
}

// WriteError writes the response for a rejection. With silent set every
// rejection becomes a plain-text 404 without challenge headers.
func WriteError(w http.ResponseWriter, secErr *Error, silent bool) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")

	if silent {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not found"))
		return
	}

	switch secErr.Kind {
	case KindAuthentication:
		h.Set("WWW-Authenticate", `Bearer realm="mcp"`)
	case KindRateLimit:
		retry := secErr.RetryAfterSeconds
		if retry <= 0 {
			retry = DefaultRetryAfterSeconds
		}
		h.Set("Retry-After", strconv.Itoa(retry))
	}
	writeJSON(w, secErr.StatusCode(), secErr.Message)
}

func writeJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
