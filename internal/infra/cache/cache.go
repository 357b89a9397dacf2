// Package cache provides a thread-safe in-memory cache with TTL expiry and
// LRU eviction, used to deduplicate outbound fetches.
//
// Expired entries are retained in a bounded stale side area so callers can
// serve degraded results when the upstream is unavailable.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"bioterminal/internal/clock"
)

// Eviction reasons passed to the OnEvict hook.
const (
	ReasonLRU     = "lru"
	ReasonExpired = "expired"
	ReasonDeleted = "deleted"
)

// Config holds configuration for a Cache.
type Config struct {
	// Name identifies the cache in logs and eviction events.
	Name string

	// MaxEntries is the maximum number of live entries. When the cache
	// is full, the least recently used entry is evicted. Default: 1000.
	MaxEntries int

	// TTL is how long an entry stays fresh after Set. Default: 30 minutes.
	TTL time.Duration

	// MaxStaleEntries bounds the stale side area that holds expired
	// entries for degraded serving. Zero disables stale retention.
	MaxStaleEntries int

	// SweepInterval is how often the background sweeper purges expired
	// entries. Zero disables the sweeper; expiry then happens lazily on Get.
	SweepInterval time.Duration

	// Clock is the time source. Defaults to the system clock.
	Clock clock.Clock

	// OnEvict, if set, is called after an entry leaves the live area.
	// It runs outside the cache lock.
	OnEvict func(key, reason string)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Size        int
	StaleSize   int
	Capacity    int
	HitRate     float64
	Utilization float64
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Cache is a TTL+LRU cache. All methods are safe for concurrent use.
type Cache[V any] struct {
	cfg Config

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element

	staleLL    *list.List // front = most recently expired
	staleItems map[string]*list.Element

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates a cache from cfg and starts the background sweeper when
// SweepInterval is set. Call Close to stop the sweeper.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	c := &Cache[V]{
		cfg:        cfg,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		staleLL:    list.New(),
		staleItems: make(map[string]*list.Element),
		stopSweep:  make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the fresh value for key. An expired entry counts as a miss;
// the expired value moves to the stale area and stays reachable via Stale.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	ent := el.Value.(*entry[V])
	if !ent.expiresAt.After(c.cfg.Clock.Now()) {
		c.expireLocked(el, ent)
		c.misses++
		c.mu.Unlock()
		c.notifyEvict(ent.key, ReasonExpired)
		var zero V
		return zero, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	c.mu.Unlock()
	return ent.value, true
}

// Stale returns the value for key from the stale area. It only serves
// entries that expired and were retained; fresh entries are not visible here.
func (c *Cache[V]) Stale(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.staleItems[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[V]).value, true
}

// Set stores value under key with the configured TTL, replacing any
// existing entry. When the cache is full the least recently used entry
// is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key with a per-entry TTL. A non-positive
// ttl falls back to the configured default.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	var evictedKey string

	c.mu.Lock()
	expiresAt := c.cfg.Clock.Now().Add(ttl)

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.ll.MoveToFront(el)
		c.mu.Unlock()
		return
	}

	if c.ll.Len() >= c.cfg.MaxEntries {
		if oldest := c.ll.Back(); oldest != nil {
			ent := oldest.Value.(*entry[V])
			c.removeLocked(oldest, ent)
			c.evictions++
			evictedKey = ent.key
		}
	}

	el := c.ll.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	// A fresh value supersedes any stale copy.
	c.dropStaleLocked(key)
	c.mu.Unlock()

	if evictedKey != "" {
		c.notifyEvict(evictedKey, ReasonLRU)
	}
}

// Delete removes key from both the live and stale areas.
// It reports whether a live entry was removed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		c.removeLocked(el, el.Value.(*entry[V]))
	}
	c.dropStaleLocked(key)
	c.mu.Unlock()

	if ok {
		c.notifyEvict(key, ReasonDeleted)
	}
	return ok
}

// Clear removes all live and stale entries. Counters are preserved.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.staleLL.Init()
	c.staleItems = make(map[string]*list.Element)
}

// Len returns the number of live entries, counting entries that have
// expired but not yet been purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        c.ll.Len(),
		StaleSize:   c.staleLL.Len(),
		Capacity:    c.cfg.MaxEntries,
		HitRate:     hitRate,
		Utilization: float64(c.ll.Len()) / float64(c.cfg.MaxEntries),
	}
}

// Close stops the background sweeper. The cache remains usable.
func (c *Cache[V]) Close() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// expireLocked moves an expired entry to the stale area.
// Callers must hold c.mu.
func (c *Cache[V]) expireLocked(el *list.Element, ent *entry[V]) {
	c.ll.Remove(el)
	delete(c.items, ent.key)
	c.expirations++

	if c.cfg.MaxStaleEntries <= 0 {
		return
	}
	if old, ok := c.staleItems[ent.key]; ok {
		c.staleLL.Remove(old)
	} else if c.staleLL.Len() >= c.cfg.MaxStaleEntries {
		if oldest := c.staleLL.Back(); oldest != nil {
			c.staleLL.Remove(oldest)
			delete(c.staleItems, oldest.Value.(*entry[V]).key)
		}
	}
	c.staleItems[ent.key] = c.staleLL.PushFront(ent)
}

// removeLocked drops a live entry without stale retention.
// Callers must hold c.mu.
func (c *Cache[V]) removeLocked(el *list.Element, ent *entry[V]) {
	c.ll.Remove(el)
	delete(c.items, ent.key)
}

// dropStaleLocked removes key from the stale area if present.
// Callers must hold c.mu.
func (c *Cache[V]) dropStaleLocked(key string) {
	if el, ok := c.staleItems[key]; ok {
		c.staleLL.Remove(el)
		delete(c.staleItems, key)
	}
}

func (c *Cache[V]) notifyEvict(key, reason string) {
	if c.cfg.OnEvict != nil {
		c.cfg.OnEvict(key, reason)
	}
}

// sweepLoop periodically purges expired entries so memory is reclaimed
// even for keys that are never read again.
func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired := c.sweep()
			if expired > 0 {
				slog.Debug("cache sweep completed",
					slog.String("cache", c.cfg.Name),
					slog.Int("expired", expired))
			}
		case <-c.stopSweep:
			return
		}
	}
}

// sweep purges all expired live entries, moving them to the stale area.
// It returns the number of entries purged.
func (c *Cache[V]) sweep() int {
	var expiredKeys []string

	c.mu.Lock()
	now := c.cfg.Clock.Now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*entry[V])
		if !ent.expiresAt.After(now) {
			c.expireLocked(el, ent)
			expiredKeys = append(expiredKeys, ent.key)
		}
		el = prev
	}
	c.mu.Unlock()

	for _, key := range expiredKeys {
		c.notifyEvict(key, ReasonExpired)
	}
	return len(expiredKeys)
}
