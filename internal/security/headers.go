package security

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// HeadersConfig configures response headers added to gated responses.
type HeadersConfig struct {
	// XContentTypeOptions sets X-Content-Type-Options. Usually "nosniff".
	XContentTypeOptions string `yaml:"xContentTypeOptions,omitempty" json:"xContentTypeOptions,omitempty"`

	// XFrameOptions sets X-Frame-Options: DENY or SAMEORIGIN.
	XFrameOptions string `yaml:"xFrameOptions,omitempty" json:"xFrameOptions,omitempty"`

	// ReferrerPolicy sets Referrer-Policy.
	ReferrerPolicy string `yaml:"referrerPolicy,omitempty" json:"referrerPolicy,omitempty"`

	// HSTSMaxAge enables Strict-Transport-Security on HTTPS requests when positive.
	HSTSMaxAge int `yaml:"hstsMaxAge,omitempty" json:"hstsMaxAge,omitempty"`

	// HSTSIncludeSubDomains adds includeSubDomains to the HSTS header.
	HSTSIncludeSubDomains bool `yaml:"hstsIncludeSubDomains,omitempty" json:"hstsIncludeSubDomains,omitempty"`

	// CustomHeaders are set verbatim.
	CustomHeaders map[string]string `yaml:"customHeaders,omitempty" json:"customHeaders,omitempty"`

	// RemoveHeaders are stripped from upstream responses.
	RemoveHeaders []string `yaml:"removeHeaders,omitempty" json:"removeHeaders,omitempty"`
}

// DefaultHeadersConfig returns conservative defaults for an API gateway.
func DefaultHeadersConfig() *HeadersConfig {
	return &HeadersConfig{
		XContentTypeOptions: "nosniff",
		XFrameOptions:       "DENY",
		ReferrerPolicy:      "no-referrer",
	}
}

// Validate validates the headers configuration.
func (c *HeadersConfig) Validate() error {
	if c == nil {
		return nil
	}
	switch strings.ToUpper(c.XFrameOptions) {
	case "", "DENY", "SAMEORIGIN":
	default:
		return fmt.Errorf("invalid X-Frame-Options value: %s", c.XFrameOptions)
	}
	if c.HSTSMaxAge < 0 {
		return fmt.Errorf("hstsMaxAge must be non-negative, got %d", c.HSTSMaxAge)
	}
	return nil
}

// HeadersHandler wraps next and applies cfg to every response. A nil cfg
// returns next unchanged.
func HeadersHandler(cfg *HeadersConfig, next http.Handler) http.Handler {
	if cfg == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg.apply(w.Header(), isSecureRequest(r))

		if len(cfg.RemoveHeaders) > 0 {
			w = &headerRemovingResponseWriter{ResponseWriter: w, removeHeaders: cfg.RemoveHeaders}
		}
		next.ServeHTTP(w, r)
	})
}

func (c *HeadersConfig) apply(h http.Header, secure bool) {
	if c.XContentTypeOptions != "" {
		h.Set("X-Content-Type-Options", c.XContentTypeOptions)
	}
	if c.XFrameOptions != "" {
		h.Set("X-Frame-Options", strings.ToUpper(c.XFrameOptions))
	}
	if c.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", c.ReferrerPolicy)
	}
	if c.HSTSMaxAge > 0 && secure {
		v := "max-age=" + strconv.Itoa(c.HSTSMaxAge)
		if c.HSTSIncludeSubDomains {
			v += "; includeSubDomains"
		}
		h.Set("Strict-Transport-Security", v)
	}
	for name, value := range c.CustomHeaders {
		h.Set(name, value)
	}
}

// isSecureRequest checks if the request is over HTTPS.
func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || r.URL.Scheme == "https"
}

// headerRemovingResponseWriter wraps http.ResponseWriter to remove specified headers.
type headerRemovingResponseWriter struct {
	http.ResponseWriter
	removeHeaders []string
	wroteHeader   bool
}

// WriteHeader removes specified headers before writing the status code.
func (w *headerRemovingResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		for _, header := range w.removeHeaders {
			w.ResponseWriter.Header().Del(header)
		}
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write ensures headers are processed before writing the body.
func (w *headerRemovingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter.
func (w *headerRemovingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
