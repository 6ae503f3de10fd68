// Package cache stores derived query results, such as relationship lists,
// keyed by the fingerprint of the snapshot they were computed from.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by every cache backend
type Cache interface {
	// Get retrieves a value, returning ErrCacheMiss when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl uses the backend default; a negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes every value under the backend's prefix
	Clear(ctx context.Context) error

	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Config holds settings shared by all backends
type Config struct {
	DefaultTTL time.Duration
	Prefix     string // prepended to every key
}

// DefaultConfig returns a five minute TTL and the "metagraph:" prefix
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "metagraph:",
	}
}

// ErrCacheMiss is returned when a key is not in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss reports whether err is, or wraps, a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
