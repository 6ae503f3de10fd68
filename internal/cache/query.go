package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// Queries answers relationship and search queries against a snapshot,
// memoizing results in a Cache. Cache failures are logged and the query is
// computed directly; they never fail a request.
type Queries struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewQueries wraps c. A zero ttl uses the cache's default.
func NewQueries(c Cache, ttl time.Duration, logger *zap.Logger) *Queries {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queries{cache: c, ttl: ttl, logger: logger}
}

// Relationships returns snap.Relationships(entity, dir), cached
func (q *Queries) Relationships(ctx context.Context, snap *registry.Snapshot, entity string, dir registry.Direction) ([]registry.Relationship, error) {
	key := RelationshipKey(snap.Fingerprint(), dir, entity)
	return cached(ctx, q, key, func() ([]registry.Relationship, error) {
		return snap.Relationships(entity, dir)
	})
}

// SearchableFields returns snap.SearchableFields(entity), cached
func (q *Queries) SearchableFields(ctx context.Context, snap *registry.Snapshot, entity string) ([]registry.SearchableField, error) {
	key := SearchableKey(snap.Fingerprint(), entity)
	return cached(ctx, q, key, func() ([]registry.SearchableField, error) {
		return snap.SearchableFields(entity)
	})
}

func cached[T any](ctx context.Context, q *Queries, key string, compute func() ([]T, error)) ([]T, error) {
	data, err := q.cache.Get(ctx, key)
	switch {
	case err == nil:
		var out []T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		q.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !IsCacheMiss(err):
		q.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	out, err := compute()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(out); err == nil {
		if err := q.cache.Set(ctx, key, data, q.ttl); err != nil {
			q.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}
