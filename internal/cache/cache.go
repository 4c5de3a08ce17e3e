package cache

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// Cache is a small in-memory TTL cache with hashed keys. When it fills up
// it evicts half of the stored entries to make room.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

type entry struct {
	value  any
	expiry time.Time
}

// New returns a cache holding at most maxSize entries.
func New(maxSize int, defaultTTL time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key. Expired entries are removed on
// access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := hashKey(key)
	e, ok := c.entries[h]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiry) {
		delete(c.entries, h)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A non-positive ttl falls back to the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[hashKey(key)] = entry{value: value, expiry: c.now().Add(ttl)}
}

// evictLocked drops half of the entries. Map order is unspecified, so the
// victims are arbitrary; the goal is headroom, not strict LRU.
func (c *Cache) evictLocked() {
	drop := len(c.entries) / 2
	if drop < 1 {
		drop = 1
	}
	for h := range c.entries {
		if drop == 0 {
			break
		}
		delete(c.entries, h)
		drop--
	}
}

// Len reports the number of stored entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

const dayTTL = 24 * time.Hour

// EmbeddingCache memoizes embedding vectors keyed by model and input text.
// Only the first 100 characters of the text participate in the key, which
// bounds key size at the cost of colliding on long shared prefixes.
type EmbeddingCache struct {
	c *Cache
}

// NewEmbeddingCache returns an embedding cache with day-long entries.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{c: New(5000, dayTTL)}
}

func embeddingKey(text, model string) string {
	r := []rune(text)
	if len(r) > 100 {
		r = r[:100]
	}
	return "emb:" + model + ":" + string(r)
}

// Get returns the cached vector for text under model.
func (c *EmbeddingCache) Get(text, model string) ([]float32, bool) {
	v, ok := c.c.Get(embeddingKey(text, model))
	if !ok {
		return nil, false
	}
	emb, ok := v.([]float32)
	return emb, ok
}

// Set stores the vector for text under model.
func (c *EmbeddingCache) Set(text, model string, embedding []float32) {
	c.c.Set(embeddingKey(text, model), embedding, dayTTL)
}

// ResponseCache memoizes chat completion text keyed by model and a digest
// of the prompt.
type ResponseCache struct {
	c *Cache
}

// NewResponseCache returns a response cache with day-long entries.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{c: New(1000, dayTTL)}
}

func responseKey(prompt, model string) string {
	sum := md5.Sum([]byte(prompt))
	return "resp:" + model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached completion for prompt under model.
func (c *ResponseCache) Get(prompt, model string) (string, bool) {
	v, ok := c.c.Get(responseKey(prompt, model))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores the completion for prompt under model.
func (c *ResponseCache) Set(prompt, model, response string) {
	c.c.Set(responseKey(prompt, model), response, dayTTL)
}
