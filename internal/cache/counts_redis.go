package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"geofeed/internal/model"
)

const (
	// CountCachePrefix is the key prefix for per-post count hashes
	CountCachePrefix = "counts:post:"

	// redisExpiryFactor scales the TTL into the Redis key expiry. Freshness is
	// decided on read from ComputedAt; the key expiry only reclaims memory.
	redisExpiryFactor = 2
)

// RedisCountCache implements CountCache with one Redis hash per post.
// Hash fields are viewer keys, values are JSON-encoded CountEntry.
// It is shared by every server instance pointing at the same Redis.
type RedisCountCache struct {
	client *redis.Client
	ttl    time.Duration
	clock  Clock
}

// NewRedisCountCache creates a CountCache backed by Redis. A nil clock uses RealClock.
func NewRedisCountCache(client *redis.Client, ttl time.Duration, clock Clock) *RedisCountCache {
	if ttl <= 0 {
		ttl = DefaultCountTTL
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RedisCountCache{client: client, ttl: ttl, clock: clock}
}

// countKey returns the Redis key holding a post's cached aggregates.
func countKey(postID int64) string {
	return fmt.Sprintf("%s%d", CountCachePrefix, postID)
}

// Get reads one viewer's entry with HGET. Stale entries are removed with HDEL.
func (c *RedisCountCache) Get(ctx context.Context, postID int64, viewerID *int64) (model.EngagementAggregate, bool, error) {
	key := countKey(postID)
	field := viewerKey(viewerID)

	data, err := c.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.EngagementAggregate{}, false, nil
	}
	if err != nil {
		log.Printf("[CountCache] Get FAILED: post=%d viewer=%s err=%v", postID, field, err)
		return model.EngagementAggregate{}, false, fmt.Errorf("get cached counts: %w", err)
	}

	var entry model.CountEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("[CountCache] Get decode error: post=%d viewer=%s err=%v", postID, field, err)
		c.client.HDel(ctx, key, field)
		return model.EngagementAggregate{}, false, nil
	}

	if isStale(c.clock.Now(), entry.ComputedAt, c.ttl) {
		c.client.HDel(ctx, key, field)
		return model.EngagementAggregate{}, false, nil
	}

	return entry.Aggregate, true, nil
}

// Put writes an entry and refreshes the key expiry in one pipeline.
// Pipeline: HSET + EXPIRE
func (c *RedisCountCache) Put(ctx context.Context, postID int64, viewerID *int64, agg model.EngagementAggregate, now time.Time) error {
	key := countKey(postID)
	field := viewerKey(viewerID)

	data, err := json.Marshal(model.CountEntry{Aggregate: agg, ComputedAt: now})
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, field, data)
	pipe.Expire(ctx, key, redisExpiryFactor*c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[CountCache] Put FAILED: post=%d viewer=%s err=%v", postID, field, err)
		return fmt.Errorf("put cached counts: %w", err)
	}
	return nil
}

// Invalidate deletes the whole hash for a post.
func (c *RedisCountCache) Invalidate(ctx context.Context, postID int64) error {
	removed, err := c.client.Del(ctx, countKey(postID)).Result()
	if err != nil {
		log.Printf("[CountCache] Invalidate FAILED: post=%d err=%v", postID, err)
		return fmt.Errorf("invalidate cached counts: %w", err)
	}

	log.Printf("[CountCache] Invalidate OK: post=%d removed=%d", postID, removed)
	return nil
}
