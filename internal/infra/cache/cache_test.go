package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"bioterminal/internal/clock"
)

func newTestCache(mock *clock.Mock, maxEntries int) *Cache[string] {
	return New[string](Config{
		Name:            "test",
		MaxEntries:      maxEntries,
		TTL:             time.Minute,
		MaxStaleEntries: 10,
		Clock:           mock,
	})
}

func TestGet_HitAndMiss(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	c.Set("a", "value-a")
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got != "value-a" {
		t.Errorf("Get(a) = %q, want value-a", got)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestGet_TTLExpiry(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "value-a")

	mock.Advance(time.Minute - time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired before TTL elapsed")
	}

	mock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry still fresh after TTL elapsed")
	}
}

func TestSetWithTTL_PerEntryOverride(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.SetWithTTL("short", "v-short", 10*time.Second)
	c.Set("long", "v-long")

	mock.Advance(10 * time.Second)
	if _, ok := c.Get("short"); ok {
		t.Error("short-TTL entry still fresh after its TTL elapsed")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("default-TTL entry expired with the short one")
	}

	mock.Advance(50 * time.Second)
	if _, ok := c.Get("long"); ok {
		t.Error("default-TTL entry still fresh after default TTL elapsed")
	}
}

func TestSetWithTTL_NonPositiveUsesDefault(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.SetWithTTL("a", "value-a", 0)
	c.SetWithTTL("b", "value-b", -time.Second)

	mock.Advance(time.Minute - time.Second)
	for _, key := range []string{"a", "b"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("entry %q expired before the default TTL elapsed", key)
		}
	}

	mock.Advance(time.Second)
	for _, key := range []string{"a", "b"} {
		if _, ok := c.Get(key); ok {
			t.Errorf("entry %q still fresh after the default TTL elapsed", key)
		}
	}

	if got := c.Stats().Expirations; got != 1 {
		t.Errorf("Expirations = %d, want 1", got)
	}
}

func TestGet_ExpiredEntryServedAsStale(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "value-a")
	mock.Advance(2 * time.Minute)

	// Fresh read misses, but the value remains reachable via Stale.
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
	got, ok := c.Stale("a")
	if !ok {
		t.Fatal("expected stale copy to be retained")
	}
	if got != "value-a" {
		t.Errorf("Stale(a) = %q, want value-a", got)
	}

	// A fresh Set supersedes the stale copy.
	c.Set("a", "value-a2")
	if _, ok := c.Stale("a"); ok {
		t.Error("stale copy should be dropped after fresh Set")
	}
}

func TestStale_NotVisibleForFreshEntries(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "value-a")
	if _, ok := c.Stale("a"); ok {
		t.Error("fresh entry must not be visible in the stale area")
	}
}

func TestSet_LRUEvictionOrder(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 3)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Set("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("key %q should have survived eviction", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestSet_ReplaceRefreshesTTL(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "old")
	mock.Advance(45 * time.Second)
	c.Set("a", "new")
	mock.Advance(45 * time.Second)

	// 90s since the first Set, 45s since the replace: still fresh.
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("replaced entry should carry a refreshed TTL")
	}
	if got != "new" {
		t.Errorf("Get(a) = %q, want new", got)
	}
}

func TestDelete(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "1")
	if !c.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if c.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still readable")
	}
}

func TestClear(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "1")
	c.Set("b", "2")
	mock.Advance(2 * time.Minute)
	_, _ = c.Get("a") // push a into the stale area

	c.Clear()

	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 after Clear", got)
	}
	if _, ok := c.Stale("a"); ok {
		t.Error("stale area should be emptied by Clear")
	}
}

func TestSweep_PurgesExpired(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 10)

	c.Set("a", "1")
	c.Set("b", "2")
	mock.Advance(2 * time.Minute)
	c.Set("c", "3")

	if got := c.sweep(); got != 2 {
		t.Errorf("sweep() = %d, want 2", got)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", got)
	}
	if _, ok := c.Stale("a"); !ok {
		t.Error("swept entry should be retained as stale")
	}
}

func TestOnEvict_Reasons(t *testing.T) {
	mock := clock.NewMock(time.Now())

	var mu sync.Mutex
	evicted := map[string]string{}

	c := New[string](Config{
		Name:            "test",
		MaxEntries:      2,
		TTL:             time.Minute,
		MaxStaleEntries: 10,
		Clock:           mock,
		OnEvict: func(key, reason string) {
			mu.Lock()
			evicted[key] = reason
			mu.Unlock()
		},
	})

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3") // evicts a (lru)
	mock.Advance(2 * time.Minute)
	_, _ = c.Get("b") // expires b
	c.Delete("c")

	mu.Lock()
	defer mu.Unlock()
	want := map[string]string{"a": ReasonLRU, "b": ReasonExpired, "c": ReasonDeleted}
	for key, reason := range want {
		if evicted[key] != reason {
			t.Errorf("evicted[%q] = %q, want %q", key, evicted[key], reason)
		}
	}
}

func TestStaleArea_Bounded(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := New[string](Config{
		Name:            "test",
		MaxEntries:      100,
		TTL:             time.Minute,
		MaxStaleEntries: 3,
		Clock:           mock,
	})

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
	}
	mock.Advance(2 * time.Minute)
	c.sweep()

	if got := c.Stats().StaleSize; got != 3 {
		t.Errorf("StaleSize = %d, want bounded at 3", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	mock := clock.NewMock(time.Now())
	c := newTestCache(mock, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Set(key, "v")
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if got := c.Len(); got > 100 {
		t.Errorf("Len() = %d, exceeds capacity", got)
	}
}
