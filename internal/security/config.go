package security

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/http/httpguts"
)

// Defaults.
const (
	DefaultAuthHeader      = "Authorization"
	DefaultAPIKeyHeader    = "X-MCP-Api-Key"
	DefaultKeyAttribute    = "mcp.key"
	DefaultScopesAttribute = "mcp.scopes"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("header", func(fl validator.FieldLevel) bool {
		return httpguts.ValidHeaderFieldName(fl.Field().String())
	})
}

// Config configures the gating pipeline.
type Config struct {
	// RequireAuth enables API key authentication. Nil means true.
	RequireAuth *bool `yaml:"requireAuth,omitempty" json:"requireAuth,omitempty"`

	// AllowedScopes restricts access to keys holding at least one of the
	// scopes. Empty means no restriction.
	AllowedScopes []string `yaml:"allowedScopes,omitempty" json:"allowedScopes,omitempty" validate:"dive,required"`

	// AuthHeader carries "Bearer <token>".
	AuthHeader string `yaml:"authHeader,omitempty" json:"authHeader,omitempty" validate:"omitempty,header"`

	// APIKeyHeader carries the raw token.
	APIKeyHeader string `yaml:"apiKeyHeader,omitempty" json:"apiKeyHeader,omitempty" validate:"omitempty,header"`

	// KeyAttribute and ScopesAttribute name the request context values
	// holding the authenticated key and its scopes.
	KeyAttribute    string `yaml:"keyAttribute,omitempty" json:"keyAttribute,omitempty"`
	ScopesAttribute string `yaml:"scopesAttribute,omitempty" json:"scopesAttribute,omitempty"`

	// SilentFail turns every rejection into a plain 404.
	SilentFail bool `yaml:"silentFail,omitempty" json:"silentFail,omitempty"`

	// Headers adds response headers to every response passing the gate.
	Headers *HeadersConfig `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	requireAuth := true
	return &Config{
		RequireAuth:     &requireAuth,
		AllowedScopes:   []string{},
		AuthHeader:      DefaultAuthHeader,
		APIKeyHeader:    DefaultAPIKeyHeader,
		KeyAttribute:    DefaultKeyAttribute,
		ScopesAttribute: DefaultScopesAttribute,
	}
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.RequireAuth == nil {
		requireAuth := true
		c.RequireAuth = &requireAuth
	}
	if c.AuthHeader == "" {
		c.AuthHeader = DefaultAuthHeader
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.KeyAttribute == "" {
		c.KeyAttribute = DefaultKeyAttribute
	}
	if c.ScopesAttribute == "" {
		c.ScopesAttribute = DefaultScopesAttribute
	}
}

// IsAuthRequired reports whether authentication runs.
func (c *Config) IsAuthRequired() bool {
	return c.RequireAuth == nil || *c.RequireAuth
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}
	if c.KeyAttribute != "" && c.KeyAttribute == c.ScopesAttribute {
		return errors.New("invalid security config: keyAttribute and scopesAttribute must differ")
	}
	if c.Headers != nil {
		if err := c.Headers.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.RequireAuth != nil {
		v := *c.RequireAuth
		out.RequireAuth = &v
	}
	out.AllowedScopes = append([]string(nil), c.AllowedScopes...)
	if c.Headers != nil {
		h := *c.Headers
		out.Headers = &h
	}
	return &out
}
