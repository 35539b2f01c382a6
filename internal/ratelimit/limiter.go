package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/code-wheel/mcp-http-security/internal/clock"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// Rate limiter default configuration constants.
const (
	// DefaultKeyTTL is the default TTL for idle key entries.
	DefaultKeyTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval for cleanup operations.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval for cleanup operations.
	MaxCleanupInterval = time.Minute

	// DefaultRedisKeyPrefix prefixes bucket keys in Redis.
	DefaultRedisKeyPrefix = "mcp:ratelimit:"

	// DefaultRedisTimeout bounds a single Redis round trip.
	DefaultRedisTimeout = 250 * time.Millisecond
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow consumes one token for key. When no token is available it
	// returns false and the time until the next one.
	Allow(key string) (bool, time.Duration)

	// Stop releases background resources.
	Stop()
}

// Config configures a limiter.
type Config struct {
	// RequestsPerSecond is the steady-state refill rate.
	RequestsPerSecond float64

	// Burst is the bucket size. Values below 1 become 1.
	Burst int

	// KeyTTL is how long an idle key keeps its bucket.
	KeyTTL time.Duration

	// Backend is "memory" (default) or "redis".
	Backend string

	// RedisURL and RedisKeyPrefix configure the redis backend.
	RedisURL       string
	RedisKeyPrefix string

	// RedisTimeout bounds each Redis call.
	RedisTimeout time.Duration

	// FailureThreshold is the number of consecutive Redis failures that
	// open the circuit breaker. BreakerTimeout is how long it stays open.
	FailureThreshold int
	BreakerTimeout   time.Duration
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.KeyTTL <= 0 {
		c.KeyTTL = DefaultKeyTTL
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = DefaultRedisKeyPrefix
	}
	if c.RedisTimeout <= 0 {
		c.RedisTimeout = DefaultRedisTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requestsPerSecond must be positive, got %v", c.RequestsPerSecond)
	}
	switch c.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown rate limit backend: %s", c.Backend)
	}
	return nil
}

// Option is a functional option for limiters.
type Option func(*options)

type options struct {
	logger  observability.Logger
	clock   clock.Clock
	metrics *Metrics
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: observability.NopLogger(),
		clock:  clock.System(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("mcpguard")
	}
	return o
}

// cleanupInterval runs cleanup at half the TTL, clamped to sane bounds.
func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > MaxCleanupInterval {
		interval = MaxCleanupInterval
	}
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}
	return interval
}
