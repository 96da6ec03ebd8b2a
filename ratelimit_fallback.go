package stepup

import (
	"sync"
	"time"
)

type fallbackEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// fallbackCache is the in-process sliding-window cache used while the shared
// counter store is unreachable. It is a bounded, mutex-guarded,
// least-recently-accessed map, deliberately per-process: concurrent service
// instances each enforce their own conservative limit independently during
// an outage, and that aggregate overshoot is accepted rather than solved by
// reintroducing the dependency being escaped.
type fallbackCache struct {
	mu      sync.Mutex
	entries map[string]*fallbackEntry

	maxEntries   int
	idleEviction time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func newFallbackCache(cfg RateLimitConfig) *fallbackCache {
	c := &fallbackCache{
		entries:      make(map[string]*fallbackEntry),
		maxEntries:   cfg.FallbackMaxEntries,
		idleEviction: cfg.FallbackIdleEviction,
		done:         make(chan struct{}),
	}

	go c.sweep(cfg.FallbackSweepInterval)

	return c
}

// conservativeLimit halves the nominal limit because this cache cannot see
// traffic hitting other instances. Never below one.
func conservativeLimit(limit int) int {
	c := limit / 2
	if c < 1 {
		c = 1
	}
	return c
}

// check enforces the conservative limit internally but reports the caller's
// original limit in the result so client-facing headers stay consistent.
func (c *fallbackCache) check(key string, limit int, window time.Duration, now time.Time) RateLimitResult {
	enforced := conservativeLimit(limit)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[key]
	if entry == nil {
		entry = &fallbackEntry{}
		c.entries[key] = entry
		c.evictOverflowLocked(key)
	}
	entry.lastAccess = now

	windowStart := now.Add(-window)
	kept := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	count := len(kept)
	entry.timestamps = append(kept, now)

	remaining := limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   count < enforced,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}
}

// evictOverflowLocked drops the least-recently-accessed key (other than the
// one just inserted) once the map exceeds its bound.
func (c *fallbackCache) evictOverflowLocked(justInserted string) {
	if len(c.entries) <= c.maxEntries {
		return
	}

	var oldestKey string
	var oldestAccess time.Time
	for key, entry := range c.entries {
		if key == justInserted {
			continue
		}
		if oldestKey == "" || entry.lastAccess.Before(oldestAccess) {
			oldestKey = key
			oldestAccess = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *fallbackCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-c.idleEviction)
			c.mu.Lock()
			for key, entry := range c.entries {
				if entry.lastAccess.Before(cutoff) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

func (c *fallbackCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *fallbackCache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
