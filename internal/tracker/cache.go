package tracker

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a capacity-bounded LRU with TTL expiry keyed by string.
type Cache[V any] struct {
	maxSize   int
	ttl       time.Duration
	now       func() time.Time
	mu        sync.Mutex
	cache     map[string]*list.Element
	lruList   *list.List
	hits      uint64
	misses    uint64
	evictions uint64
}

type cacheEntry[V any] struct {
	key       string
	value     V
	updatedAt time.Time
}

// CacheMetrics holds cache performance metrics
type CacheMetrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
	Size      int
	MaxSize   int
}

// NewCache creates a cache. maxSize < 1 is raised to 1; ttl <= 0 disables expiry.
func NewCache[V any](maxSize int, ttl time.Duration, clock func() time.Time) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     clock,
		cache:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

// Get retrieves a live entry and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, exists := c.cache[key]
	if !exists {
		c.misses++
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[V])
	if c.expired(entry, c.now()) {
		c.removeElement(elem)
		c.evictions++
		c.misses++
		return zero, false
	}

	c.lruList.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Put inserts or replaces an entry, evicting the least recently used one
// when over capacity. It reports whether an eviction happened.
func (c *Cache[V]) Put(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, exists := c.cache[key]; exists {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.updatedAt = now
		c.lruList.MoveToFront(elem)
		return false
	}

	elem := c.lruList.PushFront(&cacheEntry[V]{key: key, value: value, updatedAt: now})
	c.cache[key] = elem

	if c.lruList.Len() > c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions++
			return true
		}
	}
	return false
}

// Remove deletes an entry if present.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		c.removeElement(elem)
		return true
	}
	return false
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// CleanupExpired removes expired entries
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*cacheEntry[V]), now) {
			c.removeElement(elem)
			c.evictions++
			removed++
		}
		elem = prev
	}
	return removed
}

// GetMetrics returns cache metrics
func (c *Cache[V]) GetMetrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheMetrics{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
		Size:      c.lruList.Len(),
		MaxSize:   c.maxSize,
	}
}

func (c *Cache[V]) expired(entry *cacheEntry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.updatedAt) > c.ttl
}

func (c *Cache[V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[V]).key)
}
