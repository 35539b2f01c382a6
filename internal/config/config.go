package config

import (
	"time"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/auth/apikey/store"
	"github.com/code-wheel/mcp-http-security/internal/observability"
	"github.com/code-wheel/mcp-http-security/internal/ratelimit"
	"github.com/code-wheel/mcp-http-security/internal/security"
)

// Default server settings.
const (
	DefaultListen            = ":8080"
	DefaultMetricsPath       = "/metrics"
	DefaultHealthPath        = "/healthz"
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultMaxBodyBytes      = 4 << 20
)

// Config is the root gateway configuration.
type Config struct {
	Server      ServerConfig            `yaml:"server" json:"server"`
	Logging     observability.LogConfig `yaml:"logging" json:"logging"`
	Security    *security.Config        `yaml:"security,omitempty" json:"security,omitempty" validate:"-"`
	Allowlist   AllowlistConfig         `yaml:"allowlist" json:"allowlist"`
	Credentials CredentialsConfig       `yaml:"credentials" json:"credentials"`
	RateLimit   *RateLimitConfig        `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// ServerConfig configures the HTTP listener and the upstream MCP server.
type ServerConfig struct {
	// Listen is the address to listen on.
	Listen string `yaml:"listen" json:"listen" validate:"required,listen_addr"`

	// Upstream is the MCP server that admitted requests are proxied to.
	Upstream string `yaml:"upstream" json:"upstream" validate:"required,http_url"`

	ShutdownTimeout   Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`

	MetricsPath string `yaml:"metricsPath,omitempty" json:"metricsPath,omitempty" validate:"omitempty,startswith=/"`
	HealthPath  string `yaml:"healthPath,omitempty" json:"healthPath,omitempty" validate:"omitempty,startswith=/"`

	// MaxBodyBytes limits request bodies. Negative disables the limit.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// AllowlistConfig holds the request validation rules.
type AllowlistConfig struct {
	// IPs are exact addresses or CIDR blocks.
	IPs []string `yaml:"ips,omitempty" json:"ips,omitempty" validate:"dive,notblank"`

	// Origins are hostnames or "*.domain" wildcards.
	Origins []string `yaml:"origins,omitempty" json:"origins,omitempty" validate:"dive,notblank"`
}

// CredentialsConfig configures API key issuing and storage.
type CredentialsConfig struct {
	Prefix        string       `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Pepper        string       `yaml:"pepper,omitempty" json:"-"`
	HashAlgorithm string       `yaml:"hashAlgorithm,omitempty" json:"hashAlgorithm,omitempty"`
	Store         store.Config `yaml:"store" json:"store"`
}

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond" json:"requestsPerSecond" validate:"required_if=Enabled true,gte=0"`
	Burst             int      `yaml:"burst,omitempty" json:"burst,omitempty" validate:"gte=0"`
	KeyTTL            Duration `yaml:"keyTTL,omitempty" json:"keyTTL,omitempty"`
	Backend           string   `yaml:"backend,omitempty" json:"backend,omitempty" validate:"omitempty,oneof=memory redis"`
	RedisURL          string   `yaml:"redisURL,omitempty" json:"-"`
	RedisKeyPrefix    string   `yaml:"redisKeyPrefix,omitempty" json:"redisKeyPrefix,omitempty"`
	FailureThreshold  int      `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty" validate:"gte=0"`
	BreakerTimeout    Duration `yaml:"breakerTimeout,omitempty" json:"breakerTimeout,omitempty"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = Duration(DefaultReadHeaderTimeout)
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
	if c.Server.HealthPath == "" {
		c.Server.HealthPath = DefaultHealthPath
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	defaults := observability.DefaultLogConfig()
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaults.Output
	}

	if c.Security == nil {
		c.Security = security.DefaultConfig()
	} else {
		c.Security.ApplyDefaults()
	}

	if c.Credentials.Prefix == "" {
		c.Credentials.Prefix = apikey.DefaultPrefix
	}
	if c.Credentials.HashAlgorithm == "" {
		c.Credentials.HashAlgorithm = apikey.HashAlgSHA256
	}
}

// APIKeyConfig returns the key manager configuration.
func (c *CredentialsConfig) APIKeyConfig() *apikey.Config {
	return &apikey.Config{
		Prefix:        c.Prefix,
		Pepper:        c.Pepper,
		HashAlgorithm: c.HashAlgorithm,
	}
}

// IsEnabled reports whether rate limiting is configured and enabled.
func (r *RateLimitConfig) IsEnabled() bool {
	return r != nil && r.Enabled
}

// LimiterConfig converts to the limiter configuration.
func (r *RateLimitConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerSecond: r.RequestsPerSecond,
		Burst:             r.Burst,
		KeyTTL:            r.KeyTTL.Duration(),
		Backend:           r.Backend,
		RedisURL:          r.RedisURL,
		RedisKeyPrefix:    r.RedisKeyPrefix,
		FailureThreshold:  r.FailureThreshold,
		BreakerTimeout:    r.BreakerTimeout.Duration(),
	}
}
