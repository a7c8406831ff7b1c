package premium

import (
	"sync"
	"time"
)

// Cache holds recently read statuses to reduce storage load
type Cache interface {
	// Get returns a copy of the cached status and true if found
	Get(userID string) (*Status, bool)

	// Set stores a status with TTL
	Set(status *Status, ttl time.Duration)

	// Invalidate removes a user's status
	Invalidate(userID string)

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type cacheEntry struct {
	status     *Status
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreak when access times are equal
}

// NoopCache is used when caching is disabled
type NoopCache struct{}

func (c *NoopCache) Get(string) (*Status, bool) { return nil, false }
func (c *NoopCache) Set(*Status, time.Duration) {}
func (c *NoopCache) Invalidate(string)          {}
func (c *NoopCache) Stats() CacheStats          { return CacheStats{} }

// LRUCache implements Cache using an in-memory LRU with TTL
type LRUCache struct {
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	max       int
	hits      int64
	misses    int64
	evictions int64
	sequence  int64
	now       func() time.Time
}

// NewLRUCache creates a cache holding at most maxEntries statuses (default 1000)
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LRUCache{
		entries: make(map[string]*cacheEntry, maxEntries),
		max:     maxEntries,
		now:     time.Now,
	}
}

func (c *LRUCache) Get(userID string) (*Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[userID]
	if !exists || c.now().After(entry.expiration) {
		c.misses++
		return nil, false
	}
	entry.accessTime = c.now()
	entry.sequence = c.sequence
	c.sequence++
	c.hits++
	return entry.status.clone(), true
}

func (c *LRUCache) Set(status *Status, ttl time.Duration) {
	if status == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[status.UserID]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}

	seq := c.sequence
	c.sequence++
	c.entries[status.UserID] = &cacheEntry{
		status:     status.clone(),
		expiration: now.Add(ttl),
		accessTime: now,
		sequence:   seq,
	}
}

// evictOldest must be called with mu held
func (c *LRUCache) evictOldest() {
	var oldestKey string
	var oldest *cacheEntry
	for key, entry := range c.entries {
		if oldest == nil || entry.accessTime.Before(oldest.accessTime) ||
			(entry.accessTime.Equal(oldest.accessTime) && entry.sequence < oldest.sequence) {
			oldestKey, oldest = key, entry
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *LRUCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}
