// Package ratelimit throttles API clients. Limits are per key, where the key
// is usually the token subject or the client address.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Limiter decides whether the next request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info is the limiter state after a decision
type Info struct {
	Limit     int       // requests allowed per window
	Remaining int       // requests left in the current window
	ResetAt   time.Time // when the window next frees capacity
	Allowed   bool
}

// Config holds the limit shared by every implementation
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig allows 600 requests per minute per client
func DefaultConfig() Config {
	return Config{Limit: 600, Window: time.Minute}
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be greater than 0")
	}
	if c.Window <= 0 {
		return errors.New("window must be greater than 0")
	}
	return nil
}
