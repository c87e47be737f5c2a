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

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	clock := newFakeClock()
	c := NewLRUCache[string](10, time.Minute).WithClock(clock.Now)

	c.Set("a", "default-ttl")
	c.SetWithTTL("b", "short", 10*time.Second)

	clock.Advance(11 * time.Second)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to expire after its own ttl")
	}
	if v, ok := c.Get("a"); !ok || v != "default-ttl" {
		t.Fatalf("expected a to survive, got %q %v", v, ok)
	}

	clock.Advance(time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to remain")
	}
}

func TestLRUCache_UpsertKeepsExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewLRUCache[int64](10, time.Hour).WithClock(clock.Now)
	inc := func(old int64, _ bool) int64 { return old + 1 }

	if n := c.Upsert("k", time.Minute, inc); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	clock.Advance(40 * time.Second)
	if n := c.Upsert("k", time.Minute, inc); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	ttl, ok := c.TTL("k")
	if !ok || ttl != 20*time.Second {
		t.Fatalf("expected remaining ttl 20s, got %v %v", ttl, ok)
	}
	clock.Advance(21 * time.Second)
	if n := c.Upsert("k", time.Minute, inc); n != 1 {
		t.Fatalf("expected counter to restart after expiry, got %d", n)
	}
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager()
	c := NewLRUCache[int](10, time.Millisecond)
	c.Set("a", 1)
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()
	if c.Size() != 0 {
		t.Fatalf("expected cleanup to remove expired entry")
	}
}
