package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a process-local limiter. Each key holds up to Limit
// tokens, refilled continuously at Limit per Window.
type TokenBucket struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a token bucket limiter. Buckets idle for two
// windows are dropped every cleanupInterval; zero disables cleanup.
func NewTokenBucket(config Config, cleanupInterval time.Duration) (*TokenBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	tb := &TokenBucket{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		tb.cleanup = time.NewTicker(cleanupInterval)
		go tb.cleanupLoop()
	}
	return tb, nil
}

// Allow takes one token from key's bucket
func (tb *TokenBucket) Allow(_ context.Context, key string) (*Info, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	limit := float64(tb.config.Limit)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: limit, lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = min(limit, b.tokens+limit*elapsed.Seconds()/tb.config.Window.Seconds())
		b.lastRefill = now
	}

	info := &Info{Limit: tb.config.Limit}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)
	// time until one whole token is back
	missing := 1 - (b.tokens - float64(info.Remaining))
	info.ResetAt = now.Add(time.Duration(missing * float64(tb.config.Window) / limit))
	return info, nil
}

func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.dropIdle()
		case <-tb.done:
			return
		}
	}
}

func (tb *TokenBucket) dropIdle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	threshold := 2 * tb.config.Window
	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > threshold {
			delete(tb.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() {
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	})
	return nil
}
