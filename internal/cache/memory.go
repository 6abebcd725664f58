package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry represents a cached embedding with expiration
type cacheEntry struct {
	vec       []float32
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU embedding cache with TTL support.
// Identical input strings embed to identical vectors, so entries are keyed
// by the input itself.
type MemoryCache struct {
	cache  *lru.Cache[string, *cacheEntry]
	ttl    time.Duration
	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache:  cache,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	// Start background cleanup goroutine
	go mc.cleanupLoop()

	return mc, nil
}

// Get retrieves an embedding from the cache
func (mc *MemoryCache) Get(key string) ([]float32, bool) {
	mc.mu.RLock()
	entry, ok := mc.cache.Get(key)
	mc.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Check if entry has expired
	if time.Now().After(entry.expiresAt) {
		mc.mu.Lock()
		mc.cache.Remove(key)
		mc.mu.Unlock()
		return nil, false
	}

	return entry.vec, true
}

// Set stores an embedding in the cache
func (mc *MemoryCache) Set(key string, vec []float32) {
	entry := &cacheEntry{
		vec:       vec,
		expiresAt: time.Now().Add(mc.ttl),
	}

	mc.mu.Lock()
	mc.cache.Add(key, entry)
	mc.mu.Unlock()
}

// Close stops the cache cleanup goroutine
func (mc *MemoryCache) Close() {
	close(mc.stopCh)
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(mc.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	keys := mc.cache.Keys()

	for _, key := range keys {
		entry, ok := mc.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			mc.cache.Remove(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns not found
func (nc *NoopCache) Get(key string) ([]float32, bool) {
	return nil, false
}

// Set does nothing
func (nc *NoopCache) Set(key string, vec []float32) {}

// Close does nothing
func (nc *NoopCache) Close() {}
