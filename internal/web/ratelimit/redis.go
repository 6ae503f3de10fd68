package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then records the
// request if the window has room. Scores are unix milliseconds. Returns
// {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
local current = redis.call('ZCARD', key)
local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl)
	current = current + 1
	allowed = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, current, tostring(first)}
`)

// RedisLimiter is a sliding window limiter shared by every server using
// the same Redis
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter storing one sorted set per key under prefix
func NewRedisLimiter(client *redis.Client, config Config, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, config: config, prefix: prefix, now: time.Now}, nil
}

// Allow records a request for key if the window has room
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := r.now()
	result, err := slidingWindow.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(),
		now.Add(-r.config.Window).UnixMilli(),
		r.config.Limit,
		r.config.Window.Milliseconds(),
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return nil, errors.New("unexpected redis script result")
	}

	allowed, ok1 := result[0].(int64)
	count, ok2 := result[1].(int64)
	oldest, ok3 := result[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("unexpected redis script result")
	}

	first, err := strconv.ParseFloat(oldest, 64)
	if err != nil {
		first = float64(now.UnixMilli())
	}

	return &Info{
		Limit:     r.config.Limit,
		Remaining: max(r.config.Limit-int(count), 0),
		ResetAt:   time.UnixMilli(int64(first)).Add(r.config.Window),
		Allowed:   allowed == 1,
	}, nil
}

// Reset forgets every request recorded for key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
