package config

import "time"

// CacheConfig defines settings for the status response cache. When Enabled
// is false or no Redis client is configured, caching is disabled. TTL
// bounds how stale a cached status may be if an invalidation is missed.
// Prefix namespaces keys and MaxBodyBytes caps what is stored.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// Cache derives the status cache settings.
func (c Config) Cache() CacheConfig {
	ttl := c.StatusCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return CacheConfig{
		Enabled:      c.RedisURL != "",
		TTL:          ttl,
		Prefix:       "status",
		MaxBodyBytes: 64 << 10,
	}
}
