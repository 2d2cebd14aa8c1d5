// Package cache implements the generic TTL cache of spec.md §4.3: one
// instance is used for prompt-response text, another for embedding vectors,
// differing only in TTL and size policy (spec.md §9 "Caches as
// interface-typed collaborators").
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kristoman/standardgpt/internal/types"
)

// Stats reports read-side counters for one cache instance.
type Stats struct {
	Hits    int64
	Misses  int64
	Expired int64
}

// Option configures a Cache at construction time.
type Option func(*config)

type config struct {
	namespaceTTL map[string]time.Duration
	defaultTTL   time.Duration
	maxEntries   int // 0 = unbounded
}

// WithNamespaceTTL registers a TTL override for a specific namespace, per
// the namespace/TTL table of spec.md §4.3.
func WithNamespaceTTL(namespace string, ttl time.Duration) Option {
	return func(c *config) { c.namespaceTTL[namespace] = ttl }
}

// WithDefaultTTL sets the TTL used when no namespace-specific one applies.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *config) { c.defaultTTL = ttl }
}

// WithMaxEntries bounds the cache to n entries, evicting the oldest-by-
// creation entry once exceeded. Zero (the default) means unbounded, matching
// the prompt-response cache's policy; the embedding cache passes a nonzero
// bound.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.maxEntries = n }
}

// Cache is a namespaced, generic TTL cache of values of type T.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*types.CacheEntry[T]
	order   *list.List // front = oldest
	pos     map[string]*list.Element
	cfg     config
	stats   Stats
	now     func() time.Time
}

// New constructs a Cache with the given options.
func New[T any](opts ...Option) *Cache[T] {
	cfg := config{namespaceTTL: map[string]time.Duration{}, defaultTTL: 15 * time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[T]{
		entries: make(map[string]*types.CacheEntry[T]),
		order:   list.New(),
		pos:     make(map[string]*list.Element),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (c *Cache[T]) ttlFor(namespace string) time.Duration {
	if ttl, ok := c.cfg.namespaceTTL[namespace]; ok {
		return ttl
	}
	return c.cfg.defaultTTL
}

// BuildKey derives the cache key for (namespace, content, kwargs), applying
// the memory-context rule of spec.md §4.3: a non-trivial
// conversation_memory kwarg (not empty, not the literal "0") is folded into
// the key via a short hash, and for the "answer" namespace a memory_context
// flag is additionally set in the hashed payload. This is the mechanism that
// prevents cross-session cache poisoning (spec.md §3, §8 scenario 5).
func BuildKey(namespace, content string, kwargs map[string]string) string {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(namespace)
	sb.WriteByte('|')
	sb.WriteString(content)

	memContext := false
	if mem, ok := kwargs["conversation_memory"]; ok && mem != "" && mem != "0" {
		memContext = true
		h := sha256.Sum256([]byte(mem))
		sb.WriteString("|mem:")
		sb.WriteString(hex.EncodeToString(h[:])[:12])
	}
	if namespace == "answer" && memContext {
		sb.WriteString("|memory_context=true")
	}

	for _, k := range keys {
		if k == "conversation_memory" {
			continue // already folded in above, never hashed verbatim
		}
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(kwargs[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return fmt.Sprintf("%s:%s", namespace, hex.EncodeToString(sum[:]))
}

// Get looks up key. Expired entries are deleted and counted as a miss.
func (c *Cache[T]) Get(namespace, key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	if entry.Expired(c.ttlFor(namespace), c.now()) {
		c.deleteLocked(key)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}

	entry.HitCount++
	c.stats.Hits++
	return entry.Value, true
}

// Set stores value under key, evicting the oldest-by-creation entry first if
// the cache has a bound and is already at capacity.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.cfg.maxEntries > 0 && len(c.entries) >= c.cfg.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = &types.CacheEntry[T]{Value: value, CreatedAt: c.now()}
	if el, exists := c.pos[key]; exists {
		c.order.MoveToBack(el)
	} else {
		c.pos[key] = c.order.PushBack(key)
	}
}

func (c *Cache[T]) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.deleteLocked(key)
}

func (c *Cache[T]) deleteLocked(key string) {
	delete(c.entries, key)
	if el, ok := c.pos[key]; ok {
		c.order.Remove(el)
		delete(c.pos, key)
	}
}

// Stats returns a snapshot of the hit/miss/expired counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Len reports the current number of stored entries, including ones past
// their TTL that have not yet been removed (expiry is checked lazily on Get).
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
