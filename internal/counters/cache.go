// Package counters implements the atomic interaction-counter cache. Each
// counter is a Redis set of the actor IDs currently active on a target; the
// count is the set's cardinality, so a counter can never drift negative or
// double-count an actor.
package counters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tidepool/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Metric names one counted interaction kind.
type Metric string

const (
	MetricLikes     Metric = "likes"
	MetricComments  Metric = "comments"
	MetricFollowers Metric = "followers"
)

// Key uniquely identifies one counter.
type Key struct {
	TargetType string
	TargetID   uint
	Metric     Metric
}

// redisKey is "ctr:{metric}:{targetType}:{targetId}".
func (k Key) redisKey() string {
	return fmt.Sprintf("ctr:%s:%s:%d", k.Metric, k.TargetType, k.TargetID)
}

func (k Key) String() string {
	return k.redisKey()
}

// toggleScript flips one actor's membership in the counter set and returns
// the resulting count plus the new active state. The membership check and
// the mutation run inside Redis as a single script, so concurrent toggles on
// the same key cannot interleave. ARGV[2] selects the direction: "on", "off"
// or "flip"; a direction that matches the current state is a no-op.
var toggleScript = redis.NewScript(`
local key = KEYS[1]
local actor = ARGV[1]
local dir = ARGV[2]
local active = redis.call("SISMEMBER", key, actor)
local changed = 0
if dir == "flip" then
  if active == 1 then dir = "off" else dir = "on" end
end
if dir == "on" and active == 0 then
  redis.call("SADD", key, actor)
  active = 1
  changed = 1
elseif dir == "off" and active == 1 then
  redis.call("SREM", key, actor)
  active = 0
  changed = 1
end
local count = redis.call("SCARD", key)
return {count, active, changed}
`)

// Result reports the outcome of one toggle.
type Result struct {
	Count   int64
	Active  bool
	Changed bool
}

// Cache is the Redis-backed counter store.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a Cache over the given Redis client.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Toggle flips the actor's active state on the key and returns the new count
// and state.
func (c *Cache) Toggle(ctx context.Context, actorID uint, key Key) (Result, error) {
	return c.run(ctx, actorID, key, "flip")
}

// Activate marks the actor active. Re-activating is a no-op on the count
// (the idempotent "like again" guard).
func (c *Cache) Activate(ctx context.Context, actorID uint, key Key) (Result, error) {
	return c.run(ctx, actorID, key, "on")
}

// Deactivate marks the actor inactive. Deactivating an inactive actor is a
// no-op; the count never goes negative.
func (c *Cache) Deactivate(ctx context.Context, actorID uint, key Key) (Result, error) {
	return c.run(ctx, actorID, key, "off")
}

func (c *Cache) run(ctx context.Context, actorID uint, key Key, dir string) (Result, error) {
	vals, err := toggleScript.Run(ctx, c.rdb, []string{key.redisKey()},
		strconv.FormatUint(uint64(actorID), 10), dir).Int64Slice()
	if err != nil {
		observability.RedisErrors.WithLabelValues("counter_toggle").Inc()
		return Result{}, fmt.Errorf("counter toggle %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("counter toggle %s: unexpected script reply %v", key, vals)
	}
	res := Result{Count: vals[0], Active: vals[1] == 1, Changed: vals[2] == 1}
	outcome := "noop"
	if res.Changed {
		if res.Active {
			outcome = "activated"
		} else {
			outcome = "deactivated"
		}
	}
	observability.CounterToggles.WithLabelValues(string(key.Metric), outcome).Inc()
	return res, nil
}

// GetCount returns the current counter value; reads never mutate.
func (c *Cache) GetCount(ctx context.Context, key Key) (int64, error) {
	n, err := c.rdb.SCard(ctx, key.redisKey()).Result()
	if err != nil {
		observability.RedisErrors.WithLabelValues("counter_get").Inc()
		return 0, fmt.Errorf("counter get %s: %w", key, err)
	}
	return n, nil
}

// BatchGetCounts returns counts for all given keys in one pipelined round trip.
func (c *Cache) BatchGetCounts(ctx context.Context, keys []Key) (map[Key]int64, error) {
	if len(keys) == 0 {
		return map[Key]int64{}, nil
	}
	cmds := make([]*redis.IntCmd, len(keys))
	pipe := c.rdb.Pipeline()
	for i, k := range keys {
		cmds[i] = pipe.SCard(ctx, k.redisKey())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrors.WithLabelValues("counter_batch_get").Inc()
		return nil, fmt.Errorf("counter batch get: %w", err)
	}
	out := make(map[Key]int64, len(keys))
	for i, k := range keys {
		out[k] = cmds[i].Val()
	}
	return out, nil
}

// IsActive reports whether the actor is currently active on the key.
func (c *Cache) IsActive(ctx context.Context, actorID uint, key Key) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, key.redisKey(),
		strconv.FormatUint(uint64(actorID), 10)).Result()
	if err != nil {
		observability.RedisErrors.WithLabelValues("counter_is_active").Inc()
		return false, fmt.Errorf("counter membership %s: %w", key, err)
	}
	return ok, nil
}

// SnapshotEntry is one counter in a reconciliation snapshot.
type SnapshotEntry struct {
	Key   Key
	Count int64
}

// Snapshot scans every counter for the given metric and target type. It is
// meant for reconciliation jobs, not the hot path.
func (c *Cache) Snapshot(ctx context.Context, targetType string, metric Metric) ([]SnapshotEntry, error) {
	pattern := fmt.Sprintf("ctr:%s:%s:*", metric, targetType)
	var entries []SnapshotEntry
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		id, err := parseTargetID(redisKey)
		if err != nil {
			continue
		}
		count, err := c.rdb.SCard(ctx, redisKey).Result()
		if err != nil {
			observability.RedisErrors.WithLabelValues("counter_snapshot").Inc()
			return nil, fmt.Errorf("counter snapshot: %w", err)
		}
		entries = append(entries, SnapshotEntry{
			Key:   Key{TargetType: targetType, TargetID: id, Metric: metric},
			Count: count,
		})
	}
	if err := iter.Err(); err != nil {
		observability.RedisErrors.WithLabelValues("counter_snapshot").Inc()
		return nil, fmt.Errorf("counter snapshot scan: %w", err)
	}
	return entries, nil
}

// RemoveMembers drops the given members from one counter set. Used when the
// rows behind those members are hard-deleted, so the cached count follows the
// store without waiting for a sweep.
func (c *Cache) RemoveMembers(ctx context.Context, key Key, memberIDs []uint) error {
	if len(memberIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(memberIDs))
	for i, id := range memberIDs {
		members[i] = strconv.FormatUint(uint64(id), 10)
	}
	if err := c.rdb.SRem(ctx, key.redisKey(), members...).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("counter_remove_members").Inc()
		return fmt.Errorf("counter remove members %s: %w", key, err)
	}
	return nil
}

// Rebuild replaces one counter set with exactly the given members, delete and
// repopulate in a single transaction. Reconciliation repair uses it to restore
// both the count and per-member state from authoritative rows.
func (c *Cache) Rebuild(ctx context.Context, key Key, memberIDs []uint) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key.redisKey())
	if len(memberIDs) > 0 {
		members := make([]interface{}, len(memberIDs))
		for i, id := range memberIDs {
			members[i] = strconv.FormatUint(uint64(id), 10)
		}
		pipe.SAdd(ctx, key.redisKey(), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrors.WithLabelValues("counter_rebuild").Inc()
		return fmt.Errorf("counter rebuild %s: %w", key, err)
	}
	return nil
}

// Reset deletes one counter. Administrative only.
func (c *Cache) Reset(ctx context.Context, key Key) error {
	if err := c.rdb.Del(ctx, key.redisKey()).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("counter_reset").Inc()
		return fmt.Errorf("counter reset %s: %w", key, err)
	}
	return nil
}

func parseTargetID(redisKey string) (uint, error) {
	idx := strings.LastIndexByte(redisKey, ':')
	if idx < 0 {
		return 0, fmt.Errorf("malformed counter key %q", redisKey)
	}
	id, err := strconv.ParseUint(redisKey[idx+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed counter key %q: %w", redisKey, err)
	}
	return uint(id), nil
}
