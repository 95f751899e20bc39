// Package comments implements the hierarchical comment read-model: paginated
// root comments with bounded reply previews, backed by a version-invalidated
// Redis cache.
package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tidepool/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	// cacheTTL bounds staleness even if a version bump is lost.
	cacheTTL = 10 * time.Minute
)

// Cache stores assembled comment pages keyed by target, page and a
// monotonically increasing version. Any write under a target bumps the
// version, which orphans every cached page for it at once; invalidation is
// the only mutation path and can never run backwards.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a comment page cache over the given Redis client. A nil
// client disables caching (every read recomputes).
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func versionKey(targetType string, targetID uint) string {
	return fmt.Sprintf("cmt:ver:%s:%d", targetType, targetID)
}

func rootsKey(targetType string, targetID uint, version int64, pageNo, pageSize int) string {
	return fmt.Sprintf("cmt:roots:%s:%d:v%d:p%d:s%d", targetType, targetID, version, pageNo, pageSize)
}

func repliesKey(commentID uint, version int64, pageNo, pageSize int) string {
	return fmt.Sprintf("cmt:replies:%d:v%d:p%d:s%d", commentID, version, pageNo, pageSize)
}

// Version returns the current invalidation marker for a target. A target
// with no writes yet reports version 0.
func (c *Cache) Version(ctx context.Context, targetType string, targetID uint) (int64, error) {
	if c.rdb == nil {
		return 0, nil
	}
	v, err := c.rdb.Get(ctx, versionKey(targetType, targetID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		observability.RedisErrors.WithLabelValues("comment_version").Inc()
		return 0, err
	}
	return v, nil
}

// BumpVersion advances the invalidation marker after any comment write under
// the target. INCR is monotonic, so a bump can never un-invalidate.
func (c *Cache) BumpVersion(ctx context.Context, targetType string, targetID uint) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Incr(ctx, versionKey(targetType, targetID)).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("comment_version_bump").Inc()
		return err
	}
	return nil
}

// get loads a cached page into dest. Returns false on miss or any cache
// error; cache trouble degrades to a recompute, never to a failed read.
func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if c.rdb == nil {
		observability.CommentCacheHits.WithLabelValues("bypass").Inc()
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.CommentCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		observability.RedisErrors.WithLabelValues("comment_cache_get").Inc()
		observability.CommentCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		observability.CommentCacheHits.WithLabelValues("miss").Inc()
		return false
	}
	observability.CommentCacheHits.WithLabelValues("hit").Inc()
	return true
}

// set stores an assembled page, best effort.
func (c *Cache) set(ctx context.Context, key string, v any) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("comment_cache_set").Inc()
	}
}
