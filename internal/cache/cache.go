// Package cache provides the key/value cache the circuit store uses for
// expensive reads. A process builds one Cache at startup and passes it by
// reference to whatever needs it.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque values with an optional expiry.
type Cache interface {
	// Get returns the value stored under key. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}

// Open returns a Redis backed cache when redisURL is set and an in-process
// one otherwise.
func Open(ctx context.Context, redisURL string) (Cache, error) {
	if redisURL == "" {
		return NewMemory(), nil
	}
	c, err := NewRedis(redisURL)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis is unreachable: %w", err)
	}
	return c, nil
}
