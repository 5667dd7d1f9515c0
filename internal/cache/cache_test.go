package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache[string], *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newWithClock[string](ttl, size, clk.Now)
	t.Cleanup(c.Shutdown)
	return c, clk
}

func TestGetSet_Expiry(t *testing.T) {
	c, clk := newTestCache(t, time.Minute, 0)
	c.Set("k", "v")

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	clk.Advance(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should expire at TTL")
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d", hits, misses)
	}
}

func TestDisabledWhenTTLZero(t *testing.T) {
	c := New[string](0, 0)
	defer c.Shutdown()
	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Error("zero TTL cache should never hit")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestSet_EvictsWhenFull(t *testing.T) {
	c, clk := newTestCache(t, time.Minute, 2)
	c.Set("a", "1")
	clk.Advance(time.Second)
	c.Set("b", "2")
	clk.Advance(time.Second)
	c.Set("c", "3")

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry missing")
	}

	c.Set("b", "updated")
	if c.Len() != 2 {
		t.Errorf("overwrite changed size to %d", c.Len())
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Invalidate", c.Len())
	}
}

func TestSetIfGeneration(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)

	gen := c.Generation()
	if !c.SetIfGeneration("fresh", "v", gen) {
		t.Fatal("store within the same generation should succeed")
	}

	stale := c.Generation()
	c.Invalidate()
	if c.Generation() == stale {
		t.Fatal("Invalidate should start a new generation")
	}
	if c.SetIfGeneration("stale", "old", stale) {
		t.Error("a value computed before Invalidate must not be stored")
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("stale value is readable")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	c := New[int](time.Minute, 0)
	c.Set("x", 1)
	c.Shutdown()
	c.Shutdown()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Shutdown", c.Len())
	}
}

func TestKey_StableAcrossMapOrder(t *testing.T) {
	a := Key("memory_search", map[string]any{"query": "x", "limit": 5})
	b := Key("memory_search", map[string]any{"limit": 5, "query": "x"})
	if a != b || a == "" {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if Key("memory_list", map[string]any{"query": "x", "limit": 5}) == a {
		t.Error("tool name must be part of the key")
	}
	if Key("t", map[string]any{"bad": func() {}}) != "" {
		t.Error("unmarshalable args should produce no key")
	}
}
