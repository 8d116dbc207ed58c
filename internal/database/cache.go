package database

import (
	"sync"
	"time"
)

const (
	// DefaultCacheSize bounds the number of cached result sets
	DefaultCacheSize = 50
	// DefaultCacheTTL is how long a cached result set stays valid
	DefaultCacheTTL = 5 * time.Minute
)

// Row is one result row keyed by column name
type Row map[string]any

type cacheEntry struct {
	key       string
	rows      []Row
	prev      *cacheEntry
	next      *cacheEntry
	expiresAt time.Time
}

// QueryCache is a bounded, thread-safe LRU of query results with lazy TTL expiry.
// head.next is the most recently used entry, tail.prev the least.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*cacheEntry
	head     *cacheEntry
	tail     *cacheEntry
	now      func() time.Time

	hits   int64
	misses int64
}

// NewQueryCache creates a cache; non-positive arguments fall back to the defaults
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheEntry, capacity),
		head:     &cacheEntry{},
		tail:     &cacheEntry{},
		now:      time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached rows for key and marks them most recently used
func (c *QueryCache) Get(key string) ([]Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.misses++
		return nil, false
	}

	c.moveToFront(entry)
	c.hits++
	return entry.rows, true
}

// Put stores rows under key, evicting the least recently used entry when full
func (c *QueryCache) Put(key string, rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if entry, ok := c.items[key]; ok {
		entry.rows = rows
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &cacheEntry{key: key, rows: rows, expiresAt: expiresAt}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		oldest := c.tail.prev
		if oldest == c.head {
			break
		}
		c.removeEntry(oldest)
	}
}

// Purge drops every entry; called after the database content changed underneath
func (c *QueryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]*cacheEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
	return n
}

// Len returns the number of entries, expired ones included until touched
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit/miss counters and the current size
func (c *QueryCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

// must be called with lock held

func (c *QueryCache) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *QueryCache) moveToFront(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *QueryCache) removeEntry(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}
