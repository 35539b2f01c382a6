package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// tokenBucketScript refills and takes one token atomically.
// Returns: allowed (0 or 1), wait in ms until the next token.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1])
	local ts = tonumber(data[2])
	if tokens == nil or ts == nil then
		tokens = burst
		ts = now
	end

	local elapsed = math.max(0, now - ts) / 1000.0
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil((1 - tokens) / rate * 1000)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now))
	redis.call('PEXPIRE', key, math.ceil(burst / rate * 1000) + 1000)

	return {allowed, wait}
`)

// RedisLimiter shares token buckets between processes through Redis.
// While Redis fails, a circuit breaker routes requests to a local
// MemoryLimiter.
type RedisLimiter struct {
	client   redis.UniversalClient
	owned    bool
	prefix   string
	rate     float64
	burst    int
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	fallback *MemoryLimiter
	opts     options
}

// NewRedisLimiter creates a limiter over client.
func NewRedisLimiter(client redis.UniversalClient, cfg Config, opts ...Option) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	cfg.ApplyDefaults()
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requestsPerSecond must be positive, got %v", cfg.RequestsPerSecond)
	}

	o := buildOptions(opts)
	l := &RedisLimiter{
		client:   client,
		prefix:   cfg.RedisKeyPrefix,
		rate:     cfg.RequestsPerSecond,
		burst:    cfg.Burst,
		timeout:  cfg.RedisTimeout,
		fallback: newMemoryLimiter(cfg, o),
		opts:     o,
	}
	go l.fallback.cleanupLoop(cleanupInterval(cfg.KeyTTL))

	threshold := uint32(cfg.FailureThreshold) //nolint:gosec // positive after ApplyDefaults
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			o.metrics.setBreakerState(to)
		},
	})

	return l, nil
}

// OpenRedisLimiter connects to the Redis at cfg.RedisURL and creates a
// limiter that owns the connection.
func OpenRedisLimiter(ctx context.Context, cfg Config, opts ...Option) (*RedisLimiter, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("redis url is required")
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	l, err := NewRedisLimiter(client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(key string) (bool, time.Duration) {
	now := l.opts.clock.Now()

	res, err := l.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		return tokenBucketScript.Run(ctx, l.client,
			[]string{l.prefix + key},
			strconv.FormatFloat(l.rate, 'f', -1, 64),
			l.burst,
			now.UnixMilli(),
		).Int64Slice()
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			l.opts.logger.Warn("redis rate limit failed, using local fallback", observability.Error(err))
		}
		l.opts.metrics.recordFallback()
		return l.fallback.Allow(key)
	}

	values, _ := res.([]int64)
	if len(values) < 2 {
		l.opts.metrics.recordFallback()
		return l.fallback.Allow(key)
	}

	allowed := values[0] == 1
	l.opts.metrics.recordDecision(BackendRedis, allowed)
	if allowed {
		return true, 0
	}
	return false, time.Duration(values[1]) * time.Millisecond
}

// State returns the circuit breaker state.
func (l *RedisLimiter) State() gobreaker.State {
	return l.breaker.State()
}

// Stop stops the fallback cleanup and closes an owned client.
func (l *RedisLimiter) Stop() {
	l.fallback.Stop()
	if l.owned {
		_ = l.client.Close()
	}
}
