// Package cache stores evaluated query results in Redis, keyed by index
// fingerprint and canonical query, and collapses concurrent identical
// misses with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bindex/pkg/redis"
)

const keyPrefix = "bindex:query:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get looks up a cached result. Store failures count as misses.
func (c *QueryCache) Get(ctx context.Context, fingerprint, canonical string) (*executor.Result, bool) {
	key := buildKey(fingerprint, canonical)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", canonical, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, fingerprint, canonical string, result *executor.Result) {
	key := buildKey(fingerprint, canonical)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for canonical, or runs compute once
// for all concurrent callers and caches its result. The bool reports a cache
// hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	canonical string,
	compute func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, fingerprint, canonical); ok {
		return result, true, nil
	}
	key := buildKey(fingerprint, canonical)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, fingerprint, canonical, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached result, for all index fingerprints.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(fingerprint, canonical string) string {
	hash := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%s%s:%x", keyPrefix, fingerprint, hash[:16])
}
