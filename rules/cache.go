package rules

import "time"

// EngineCache holds the SelectionEngine built from the current active rules
// and pool, so selections do not rebuild it on every request.
type EngineCache interface {
	// Get returns the cached engine, or nil on a miss or after expiry
	Get() *SelectionEngine

	// Set stores an engine
	Set(engine *SelectionEngine)

	// Invalidate clears the cache, forcing a rebuild on next Get
	Invalidate()

	// IsValid returns true if the cache holds a live engine
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for a cached engine.
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns the default: invalidate on mutations only
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
