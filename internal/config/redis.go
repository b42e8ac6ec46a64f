package config

// Redis backs the status response cache. It is optional: when REDIS_URL is
// unset or the server cannot be reached at startup, the cache degrades to a
// pass-through.

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from a redis:// or rediss://
// URL. The returned client is nil if the URL is empty, malformed, or the
// server does not answer a ping.
func NewRedisClient(rawURL string) *redis.Client {
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil
	}
	client := redis.NewClient(opts)
	// Ping the server with a short timeout. Return nil on failure.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
