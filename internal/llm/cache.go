package llm

import (
	"sync"

	"go.uber.org/zap"
)

// Cache is the process-wide instance cache from §4.1: a cached entry
// is returned for a given key regardless of later config changes; a
// fresh instance is always returned when no key is supplied. This
// mirrors the Python original's class-level _llm_cache in its LLM
// factory, generalised to a mutex-guarded map instead of a bare dict
// since Go gives no free pass on concurrent map access.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Client
}

// NewCache returns an empty instance cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Client)}
}

// GetOrCreate returns the cached Client for key if present; otherwise
// it builds one from cfg/tc/logger, stores it under key, and returns
// it. If key is empty, a fresh Client is built and returned without
// being cached, per §4.1 ("if no key is supplied, a fresh instance is
// returned").
func (c *Cache) GetOrCreate(key string, cfg Config, tc TransportConfig, logger *zap.Logger) (*Client, error) {
	if key == "" {
		return New(cfg, tc, logger)
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.mu.Unlock()

	client, err := New(cfg, tc, logger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		// Lost a race with a concurrent GetOrCreate(key, ...); the
		// cache keeps whichever entry landed first.
		return existing, nil
	}
	c.entries[key] = client
	return client, nil
}

// Get returns the cached Client for key, if any.
func (c *Cache) Get(key string) (*Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.entries[key]
	return client, ok
}

// Clear releases the cache entry for key, or every entry if key is
// empty.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]*Client)
		return
	}
	delete(c.entries, key)
}

// List returns the keys currently cached.
func (c *Cache) List() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
