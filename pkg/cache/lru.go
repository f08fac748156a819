package cache

import (
	"container/list"
	"sync"
)

// LRU is a least-recently-used cache keyed by artifact digest.
// A nil *LRU or one with capacity <= 0 never stores anything, which lets
// callers disable memoization without branching.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	observer func(hit bool)

	hits   int64
	misses int64
}

type entry[V any] struct {
	key   string
	value V
}

// Option configures an LRU
type Option[V any] func(*LRU[V])

// WithObserver registers a callback invoked on every Get
func WithObserver[V any](fn func(hit bool)) Option[V] {
	return func(c *LRU[V]) { c.observer = fn }
}

// New creates an LRU holding at most capacity entries
func New[V any](capacity int, opts ...Option[V]) *LRU[V] {
	c := &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value and marks it most recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	value := zero
	elem, ok := c.items[key]
	if ok {
		c.order.MoveToFront(elem)
		value = elem.Value.(*entry[V]).value
		c.hits++
	} else {
		c.misses++
	}
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer(ok)
	}
	return value, ok
}

// Put adds or replaces a value, evicting the oldest entry when full
func (c *LRU[V]) Put(key string, value V) {
	if c == nil || c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[V]).value = value
		return
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
	}
}

// Purge removes all entries and resets statistics
func (c *LRU[V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics
func (c *LRU[V]) Stats() (hits, misses int64, hitRate float64) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hits
	misses = c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Len returns the current number of entries
func (c *LRU[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
