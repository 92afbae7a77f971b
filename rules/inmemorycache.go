package rules

import (
	"sync"
	"time"
)

// InMemoryEngineCache is an in-memory EngineCache, safe for concurrent use.
// Cached engines are immutable, so they are handed out without copying.
type InMemoryEngineCache struct {
	engine   *SelectionEngine
	cachedAt time.Time
	config   CacheConfig
	clock    func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryEngineCache creates an empty cache
func NewInMemoryEngineCache(config CacheConfig) *InMemoryEngineCache {
	return &InMemoryEngineCache{
		config: config,
		clock:  time.Now,
	}
}

func (c *InMemoryEngineCache) Get() *SelectionEngine {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.liveLocked() {
		return nil
	}
	return c.engine
}

func (c *InMemoryEngineCache) Set(engine *SelectionEngine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine = engine
	c.cachedAt = c.clock()
}

func (c *InMemoryEngineCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine = nil
}

func (c *InMemoryEngineCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.liveLocked()
}

func (c *InMemoryEngineCache) liveLocked() bool {
	if c.engine == nil {
		return false
	}
	if c.config.TTL > 0 && c.clock().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
