// Package cache is the in-process result cache for read-only tools.
//
// Entries expire after a fixed TTL. A janitor goroutine purges expired
// entries in the background until Shutdown is called. Any mutating tool
// calls Invalidate, so a cached read never outlives a write. A read that was
// computed across an Invalidate is dropped by SetIfGeneration.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL map safe for concurrent use.
type Cache[V any] struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	gen     uint64
	hits    uint64
	misses  uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its janitor. ttl <= 0 disables caching:
// Get always misses. maxSize <= 0 means unbounded.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	return newWithClock[V](ttl, maxSize, time.Now)
}

func newWithClock[V any](ttl time.Duration, maxSize int, now func() time.Time) *Cache[V] {
	c := &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		entries: make(map[string]entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.janitor(max(ttl, time.Second))
	} else {
		close(c.done)
	}
	return c
}

// Key builds a cache key from a tool name and its arguments. Map keys are
// marshalled in sorted order, so equal argument maps yield equal keys.
func Key(tool string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return tool + "\x00" + string(data)
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c.ttl <= 0 || key == "" {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key. When the cache is full, expired entries are
// purged first and then the entry closest to expiry is evicted.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 || key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

// Generation returns a counter bumped by every Invalidate.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfGeneration stores value only if no Invalidate happened since gen was
// read, and reports whether it did.
func (c *Cache[V]) SetIfGeneration(key string, value V, gen uint64) bool {
	if c.ttl <= 0 || key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.setLocked(key, value)
	return true
}

func (c *Cache[V]) setLocked(key string, value V) {
	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.purgeLocked(now)
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// Invalidate drops every entry and starts a new generation.
func (c *Cache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	clear(c.entries)
}

// Len returns the number of stored entries, including expired ones the
// janitor has not purged yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Shutdown stops the janitor and drops every entry. Safe to call more than
// once.
func (c *Cache[V]) Shutdown() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	c.Invalidate()
}

func (c *Cache[V]) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.purgeLocked(c.now())
			c.mu.Unlock()
		}
	}
}

func (c *Cache[V]) purgeLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[V]) evictOldestLocked() {
	var oldest string
	var at time.Time
	for k, e := range c.entries {
		if oldest == "" || e.expires.Before(at) {
			oldest, at = k, e.expires
		}
	}
	delete(c.entries, oldest)
}
