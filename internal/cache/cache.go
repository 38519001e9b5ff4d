// Package cache provides a bounded in-memory TTL cache.
package cache

import (
	"sync"
	"time"

	"github.com/permitdesk/permit-pipeline/internal/clock"
	"github.com/permitdesk/permit-pipeline/internal/telemetry"
)

// Config sizes a cache instance.
type Config struct {
	// Name labels the cache in logs and metrics.
	Name string
	// DefaultTTL applies when Set is called without an explicit TTL.
	DefaultTTL time.Duration
	// MaxEntries bounds the cache; the oldest entry is evicted at capacity.
	MaxEntries int
}

type entry[V any] struct {
	value   V
	created time.Time
	ttl     time.Duration
}

// Cache is a mutex-guarded key/value store with per-entry expiry.
// Expired entries are removed lazily on read.
type Cache[V any] struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	entries map[string]entry[V]
}

// New constructs a Cache. A nil clk falls back to the system clock.
func New[V any](cfg Config, clk clock.Clock) *Cache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Cache[V]{
		cfg:     cfg,
		clock:   clk,
		entries: make(map[string]entry[V]),
	}
}

// Set stores value under key. A ttl of zero uses the configured default.
// When at capacity the single oldest-by-creation entry is evicted first.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: value, created: c.clock.Now(), ttl: ttl}
}

// Get returns the value for key if present and unexpired. An expired entry is
// deleted and reported absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		telemetry.ObserveCacheLookup(c.cfg.Name, false)
		var zero V
		return zero, false
	}
	if c.clock.Now().Sub(e.created) > e.ttl {
		delete(c.entries, key)
		telemetry.ObserveCacheLookup(c.cfg.Name, false)
		var zero V
		return zero, false
	}
	telemetry.ObserveCacheLookup(c.cfg.Name, true)
	return e.value, true
}

// Has reports whether key holds an unexpired entry.
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for k, e := range c.entries {
		if first || e.created.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.created
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
