package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/cache"
)

// fakeClock is a manually advanced clock.
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

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_ExpirationWithClock(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := cache.New[string](5*time.Minute, cache.WithClock(clk.Now))

	c.Set("key1", "value1")

	clk.Advance(4*time.Minute + 59*time.Second)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected entry to be alive inside the TTL")
	}

	clk.Advance(time.Second)
	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired at the TTL boundary")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, len=%d", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_Flush(t *testing.T) {
	c := cache.New[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Flush()

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be flushed")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, len=%d", c.Len())
	}
}
