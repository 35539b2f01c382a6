package apikey

import (
	"errors"
	"net/http"
	"strings"
)

// Default header names.
const (
	DefaultAuthHeader   = "Authorization"
	DefaultAPIKeyHeader = "X-MCP-Api-Key"
	bearerPrefix        = "Bearer "
)

// ErrNoAPIKeyFound indicates that the request carries no usable token.
var ErrNoAPIKeyFound = errors.New("no API key found")

// Extractor defines the interface for extracting API keys from HTTP requests.
type Extractor interface {
	// Extract returns the token or ErrNoAPIKeyFound.
	Extract(r *http.Request) (string, error)
}

// BearerExtractor reads "<header>: Bearer <token>". The scheme match is
// case-sensitive.
type BearerExtractor struct {
	header string
}

// NewBearerExtractor creates a bearer extractor. If header is empty, it
// defaults to "Authorization".
func NewBearerExtractor(header string) *BearerExtractor {
	if header == "" {
		header = DefaultAuthHeader
	}
	return &BearerExtractor{header: header}
}

// Extract implements Extractor.
func (e *BearerExtractor) Extract(r *http.Request) (string, error) {
	value := r.Header.Get(e.header)
	if !strings.HasPrefix(value, bearerPrefix) {
		return "", ErrNoAPIKeyFound
	}
	token := strings.TrimSpace(value[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoAPIKeyFound
	}
	return token, nil
}

// HeaderExtractor reads the raw token from a dedicated header.
type HeaderExtractor struct {
	header string
}

// NewHeaderExtractor creates a header extractor. If header is empty, it
// defaults to "X-MCP-Api-Key".
func NewHeaderExtractor(header string) *HeaderExtractor {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &HeaderExtractor{header: header}
}

// Extract implements Extractor.
func (e *HeaderExtractor) Extract(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.Header.Get(e.header))
	if token == "" {
		return "", ErrNoAPIKeyFound
	}
	return token, nil
}

// CompositeExtractor tries multiple extractors in order.
type CompositeExtractor struct {
	extractors []Extractor
}

// NewCompositeExtractor creates a new composite extractor.
func NewCompositeExtractor(extractors ...Extractor) *CompositeExtractor {
	return &CompositeExtractor{extractors: extractors}
}

// Extract returns the first token found.
func (e *CompositeExtractor) Extract(r *http.Request) (string, error) {
	for _, extractor := range e.extractors {
		token, err := extractor.Extract(r)
		if err == nil && token != "" {
			return token, nil
		}
	}
	return "", ErrNoAPIKeyFound
}

// DefaultExtractor checks the bearer header first, then the API key header.
func DefaultExtractor(authHeader, apiKeyHeader string) Extractor {
	return NewCompositeExtractor(
		NewBearerExtractor(authHeader),
		NewHeaderExtractor(apiKeyHeader),
	)
}

// ExtractorFunc is a function type that implements Extractor.
type ExtractorFunc func(r *http.Request) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(r *http.Request) (string, error) {
	return f(r)
}
