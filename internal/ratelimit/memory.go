package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// keyEntry holds a bucket and its last access time for TTL-based cleanup.
type keyEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	opts   options
	limit  rate.Limit
	burst  int
	ttl    time.Duration
	mu     sync.Mutex
	keys   map[string]*keyEntry
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop when done.
func NewMemoryLimiter(cfg Config, opts ...Option) (*MemoryLimiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := newMemoryLimiter(cfg, buildOptions(opts))
	go l.cleanupLoop(cleanupInterval(l.ttl))
	return l, nil
}

func newMemoryLimiter(cfg Config, o options) *MemoryLimiter {
	return &MemoryLimiter{
		opts:   o,
		limit:  rate.Limit(cfg.RequestsPerSecond),
		burst:  cfg.Burst,
		ttl:    cfg.KeyTTL,
		keys:   make(map[string]*keyEntry),
		stopCh: make(chan struct{}),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(key string) (bool, time.Duration) {
	now := l.opts.clock.Now()

	l.mu.Lock()
	entry, ok := l.keys[key]
	if !ok {
		entry = &keyEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.keys[key] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	l.mu.Unlock()

	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		l.opts.metrics.recordDecision(BackendMemory, false)
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		l.opts.metrics.recordDecision(BackendMemory, false)
		return false, wait
	}

	l.opts.metrics.recordDecision(BackendMemory, true)
	return true, 0
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// CleanupIdle removes keys not used within maxAge.
func (l *MemoryLimiter) CleanupIdle(maxAge time.Duration) int {
	cutoff := l.opts.clock.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.keys {
		if entry.lastAccess.Before(cutoff) {
			delete(l.keys, key)
			removed++
		}
	}

	if removed > 0 {
		l.opts.logger.Debug("cleaned up idle rate limiter entries",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.keys)),
		)
	}
	return removed
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.CleanupIdle(l.ttl)
		case <-l.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call multiple times.
func (l *MemoryLimiter) Stop() {
	l.once.Do(func() {
		close(l.stopCh)
	})
}
