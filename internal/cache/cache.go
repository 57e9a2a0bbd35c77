// Package cache provides an in-memory key/value store with per-entry TTL.
//
// It fronts the generation providers: identical requests are served from
// here without re-entering the resilience chain. Expired entries are
// dropped lazily on read and by a background sweep owned by the cache's
// lifecycle (started in New, stopped in Close).
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/haven-app/haven/internal/log"
)

// Default configuration values.
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Config configures a Cache.
type Config struct {
	// DefaultTTL applies when Set is called without an explicit TTL.
	// Default: 1h.
	DefaultTTL time.Duration

	// SweepInterval is how often expired entries are removed in bulk.
	// Default: 5m.
	SweepInterval time.Duration
}

// entry is a stored payload with its expiry.
type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a TTL key/value store safe for concurrent use.
// The zero value is not usable; construct with New and release with Close.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	defaultTTL time.Duration
	logger     log.Logger

	stop chan struct{}
	done chan struct{}
}

// New creates a cache and starts its background sweep.
func New(cfg Config, logger log.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: cfg.DefaultTTL,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.sweepLoop(cfg.SweepInterval)

	return c
}

// Close stops the background sweep. The cache remains readable afterwards,
// but no further expiry collection happens.
func (c *Cache) Close() {
	select {
	case <-c.stop:
		return // already closed
	default:
	}
	close(c.stop)
	<-c.done
}

// Get returns the value for key, or false when the key is absent or
// expired. An expired entry is deleted on the spot, independent of the
// periodic sweep.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !time.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: another goroutine may have
		// replaced the entry since the read lock was dropped.
		if cur, still := c.entries[key]; still && !time.Now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Set stores value under key. An optional ttl overrides the default;
// only the first ttl argument is used.
func (c *Cache) Set(key string, value []byte, ttl ...time.Duration) {
	d := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	now := time.Now()
	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(d),
	}
	c.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok
}

// DeleteByPrefix removes every entry whose key starts with prefix.
// Used to invalidate all cached results scoped to one user.
func (c *Cache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Has reports whether key is present and unexpired. Unlike Get it does
// not remove an expired entry.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return ok && time.Now().Before(e.expiresAt)
}

// Len returns the number of stored entries, expired ones included until
// the next sweep.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLoop removes expired entries on a fixed interval so memory stays
// bounded even for keys that are written but never read again.
func (c *Cache) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep deletes all expired entries.
func (c *Cache) sweep() {
	now := time.Now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("cache sweep", "removed", removed, "remaining", remaining)
	}
}
