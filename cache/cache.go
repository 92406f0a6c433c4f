// Package cache is the process-wide query cache. Entries are keyed by a
// family (the entity kind) plus a scope (the filter: identity, id, category).
// Mutations invalidate whole families rather than patching entries.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a shared load once it is detached from the
// caller that started it.
const DefaultLoadTimeout = 30 * time.Second

// Key identifies one cached query result.
type Key struct {
	Family string
	Scope  string
}

func (k Key) String() string {
	if k.Scope == "" {
		return k.Family
	}
	return k.Family + ":" + k.Scope
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

type entry struct {
	value   any
	expires time.Time
}

// Cache is safe for concurrent use. Cached values are shared between
// callers and must be treated as read-only.
type Cache struct {
	mu          sync.RWMutex
	entries     map[Key]entry
	generations map[string]uint64
	ttl         time.Duration
	now         func() time.Time
	loadTimeout time.Duration
	group       singleflight.Group
	hits        atomic.Uint64
	misses      atomic.Uint64
}

// New returns an empty cache. A ttl of zero keeps entries until invalidated.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries:     make(map[Key]entry),
		generations: make(map[string]uint64),
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
	}
}

// Get returns the live entry for key.
func (c *Cache) Get(key Key) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		// re-check: a fresh value may have replaced the expired one
		if cur, still := c.entries[key]; still && cur.expires.Equal(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key unconditionally.
func (c *Cache) Set(key Key, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = c.newEntry(value)
	c.mu.Unlock()
}

// Invalidate drops a single key. It also advances the family generation so
// that fetches already in flight for the family do not store stale results.
func (c *Cache) Invalidate(key Key) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.generations[key.Family]++
	c.mu.Unlock()
}

// InvalidateFamily drops every key of the given families.
func (c *Cache) InvalidateFamily(families ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, family := range families {
		for key := range c.entries {
			if key.Family == family {
				delete(c.entries, key)
			}
		}
		c.generations[family]++
	}
}

// InvalidateScope drops the keys with the given scope in each family, such as
// every view cached for one identity.
func (c *Cache) InvalidateScope(scope string, families ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, family := range families {
		delete(c.entries, Key{Family: family, Scope: scope})
		c.generations[family]++
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.generations[key.Family]++
	}
	c.entries = make(map[Key]entry)
}

// Stats returns hit and miss counters and the number of stored entries.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}

func (c *Cache) generation(family string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[family]
}

// storeIfCurrent stores value only when no invalidation of the family
// happened since gen was observed.
func (c *Cache) storeIfCurrent(key Key, gen uint64, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.Family] != gen {
		return false
	}
	c.entries[key] = c.newEntry(value)
	return true
}

func (c *Cache) newEntry(value any) entry {
	e := entry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	return e
}

// Fetch returns the cached value for key, or runs load and caches its
// result. Concurrent misses for the same key share one load, which keeps
// running when the caller that started it is cancelled. Errors are never
// cached. A nil cache always calls load.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			return typed, nil
		}
	}
	c.misses.Add(1)

	gen := c.generation(key.Family)
	flightKey := key.String() + "#" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		// The load is shared, so one caller going away must not cancel it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, gen, val)
		return val, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
