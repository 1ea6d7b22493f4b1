package analysis

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of responses kept when no size is given
const DefaultCacheSize = 1024

// Cache provides in-memory LRU caching of analysis responses by request hash
type Cache struct {
	cache *lru.Cache[string, string]
}

// NewCache creates a new response cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, string](maxLen)
	if err != nil {
		cache, _ = lru.New[string, string](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get retrieves a cached response
func (c *Cache) Get(hash string) (string, bool) {
	return c.cache.Get(hash)
}

// Set stores a response in cache with automatic LRU eviction
func (c *Cache) Set(hash, text string) {
	c.cache.Add(hash, text)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}
