// Package ratelimit provides per-key token bucket rate limiting.
//
// MemoryLimiter keeps one golang.org/x/time/rate bucket per key and drops
// idle keys after a TTL. RedisLimiter shares buckets between gateway
// instances through a Lua script and falls back to a local MemoryLimiter
// while Redis is failing.
package ratelimit
