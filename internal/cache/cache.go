// Package cache is a bounded, time-expiring result cache sitting in front of
// read operations. Keys are deterministic; writes invalidate entries by key
// substring so one user's mutation does not flush other users' reads.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an entry may be served after it was stored.
	DefaultTTL = 60 * time.Second
	// DefaultCapacity bounds the number of entries; the oldest insertion is
	// evicted when exceeded (FIFO, not LRU).
	DefaultCapacity = 100
)

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion

	now func() time.Time
}

// Option tweaks cache construction; used by tests to pin expiry windows.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a deterministic cache key from an operation name and its
// parameters. encoding/json sorts map keys, so identical logical queries
// produce identical keys.
func Key(op string, params any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", op, params)
	}
	return op + ":" + string(b)
}

// Get returns the cached value if present and younger than the TTL. Expired
// entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.remove(el)
		return nil, false
	}
	return e.value, true
}

// Set stores value, evicting the oldest entry when the capacity is exceeded.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	el := c.order.PushBack(&entry{key: key, value: value, storedAt: c.now()})
	c.entries[key] = el

	for len(c.entries) > c.capacity {
		c.remove(c.order.Front())
	}
}

// Invalidate removes every entry whose key contains substr and returns the
// number removed.
func (c *Cache) Invalidate(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if strings.Contains(el.Value.(*entry).key, substr) {
			c.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(el *list.Element) {
	if el == nil {
		return
	}
	delete(c.entries, el.Value.(*entry).key)
	c.order.Remove(el)
}

