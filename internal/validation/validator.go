package validation

import (
	"net"
	"net/http"
	"strings"

	"github.com/code-wheel/mcp-http-security/internal/allowlist"
	"github.com/code-wheel/mcp-http-security/internal/observability"
	"github.com/code-wheel/mcp-http-security/internal/security"
)

// Header names consulted by the validator.
const (
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderReferer       = "Referer"
	HeaderHost          = "Host"
)

// Validator checks client addresses and hostnames.
type Validator struct {
	ips     *allowlist.IPMatcher
	origins *allowlist.OriginMatcher
	logger  observability.Logger
}

// Option is a functional option for the validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a validator. Empty rule lists allow everything.
func New(ipRules, originRules []string, opts ...Option) *Validator {
	v := &Validator{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(v)
	}

	v.ips = allowlist.NewIPMatcher(ipRules, allowlist.WithLogger(v.logger))
	v.origins = allowlist.NewOriginMatcher(originRules, allowlist.WithLogger(v.logger))
	return v
}

// Validate returns a validation *security.Error when the client address or
// hostname is not allowed.
func (v *Validator) Validate(r *http.Request) error {
	if addr := ClientIP(r); addr != "" && !v.ips.IsAllowed(addr) {
		v.logger.WithContext(r.Context()).Debug("client address rejected",
			observability.String("client_ip", addr),
		)
		return security.NewValidationError(security.MsgIPNotAllowed)
	}

	if host := Hostname(r); host != "" && !v.origins.IsAllowed(host) {
		v.logger.WithContext(r.Context()).Debug("hostname rejected",
			observability.String("host", host),
		)
		return security.NewValidationError(security.MsgOriginNotAllowed)
	}

	return nil
}

// IsValid reports whether Validate would succeed.
func (v *Validator) IsValid(r *http.Request) bool {
	return v.Validate(r) == nil
}

// ClientIP returns the first X-Forwarded-For entry, or the remote address
// without its port. It returns "" when neither is present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return stripPort(r.RemoteAddr)
}

// stripPort removes the port from an address string.
// Handles both IPv4 ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Hostname returns the lowercased request hostname from the first present
// of Origin, Referer and Host. It returns "" when that header yields no
// hostname; a malformed Origin does not fall through to Referer.
func Hostname(r *http.Request) string {
	for _, name := range []string{HeaderOrigin, HeaderReferer} {
		if value := r.Header.Get(name); value != "" {
			host, _ := allowlist.ExtractHostname(value)
			return host
		}
	}

	host := r.Host
	if host == "" {
		host = r.Header.Get(HeaderHost)
	}
	return strings.ToLower(allowlist.StripPort(host))
}
