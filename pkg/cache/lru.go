package cache

import (
	"container/list"
	"sync"

	"github.com/kadledav/streamroute/errors"
)

// LRU is a fixed-capacity cache with least-recently-used eviction
type LRU[V any] struct {
	capacity int
	onEvict  EvictCallback[V]

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	statsTracker
}

type lruEntry[V any] struct {
	key   string
	value V
}

// Option configures an LRU cache
type Option[V any] func(*LRU[V])

// WithEvictionCallback installs a callback invoked for each evicted entry
func WithEvictionCallback[V any](cb EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) {
		c.onEvict = cb
	}
}

// NewLRU creates an LRU cache holding at most capacity entries
func NewLRU[V any](capacity int, opts ...Option[V]) (*LRU[V], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "LRU", "NewLRU",
			"capacity must be positive")
	}

	c := &LRU[V]{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get retrieves a value and marks it most recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.miss()
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	c.hit()
	return elem.Value.(*lruEntry[V]).value, true
}

// Set stores a value, evicting the least recently used entry when full
func (c *LRU[V]) Set(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(elem)
		return false
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(&lruEntry[V]{key: key, value: value})
	c.entries[key] = elem
	return true
}

// Delete removes an entry by key
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.entries, key)
	return true
}

// Clear removes all entries without invoking the eviction callback
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Size returns the current number of entries
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss/eviction counters
func (c *LRU[V]) Stats() Statistics {
	return c.snapshot()
}

// evictOldest removes the least recently used entry. Caller holds c.mu.
func (c *LRU[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*lruEntry[V])
	c.order.Remove(oldest)
	delete(c.entries, entry.key)
	c.eviction()
	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value)
	}
}
