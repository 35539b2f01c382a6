package ratelimit

import (
	"context"
)

// New creates the limiter selected by cfg.Backend.
func New(ctx context.Context, cfg Config, opts ...Option) (Limiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendRedis {
		return OpenRedisLimiter(ctx, cfg, opts...)
	}
	return NewMemoryLimiter(cfg, opts...)
}
