// Package quota implements the token-bucket half of the Session & Quota
// Store. The bucket's state of record lives in Redis: every aura-core
// replica must observe the same remaining balance, so the refill+debit
// arithmetic runs as a single Lua script via EVAL rather than a
// read-modify-write from the Go side.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// bucketScript implements a token-bucket refill: on each call it
// advances the bucket to "now", adds elapsed_seconds * refill_rate
// tokens capped at capacity, then attempts to debit `cost`. KEYS[1] is
// the bucket hash key (fields "tokens" and "updated_at"). Returns
// {allowed (0/1), tokens_remaining}.
const bucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local tokens = capacity
local updated_at = now

local existing = redis.call('HMGET', key, 'tokens', 'updated_at')
if existing[1] then
	tokens = tonumber(existing[1])
	updated_at = tonumber(existing[2])
end

local elapsed = now - updated_at
if elapsed > 0 then
	tokens = math.min(capacity, tokens + elapsed * refill_rate)
end

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, ttl)

return {allowed, tokens}
`

// Bucket identifies one (tenant, route)-scoped token bucket and its
// parameters. Capacity/RefillRate default to the enumerated config
// options (bucket_capacity_default, bucket_refill_rate_default) but may
// be overridden per tenant or route. Route isolates a tenant's buckets
// by call site (e.g. "/telemetry" vs "/audit") so a burst against one
// route never exhausts another's quota.
type Bucket struct {
	TenantID   string
	Route      string
	Capacity   float64
	RefillRate float64 // tokens per second
}

// Store is the Redis-backed atomic token bucket. No in-process mirror of
// bucket state is kept — every Allow call goes to Redis, which is the
// only way multiple aura-core processes stay consistent about remaining
// quota.
type Store struct {
	client *redis.Client
	script *redis.Script
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store backed by client. ttl bounds how long an idle
// bucket's Redis key survives; it should comfortably exceed the time a
// fully-drained bucket takes to refill to capacity.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		script: redis.NewScript(bucketScript),
		prefix: "quota:bucket:",
		ttl:    ttl,
	}
}

func (s *Store) key(tenantID, route string) string { return s.prefix + tenantID + ":" + route }

// Allow attempts to debit cost tokens from b's bucket, refilling first.
// It reports whether the debit succeeded and the balance remaining
// afterward (whether or not the debit succeeded, so callers can surface
// "try again in N seconds" without a second round trip).
func (s *Store) Allow(ctx context.Context, b Bucket, cost float64) (allowed bool, remaining float64, err error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := s.script.Run(ctx, s.client, []string{s.key(b.TenantID, b.Route)},
		b.Capacity, b.RefillRate, cost, now, int(s.ttl.Seconds())).Result()
	if err != nil {
		return false, 0, apierr.Wrap(apierr.KindTransient, "evaluate token bucket", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, apierr.Internal(fmt.Errorf("unexpected token bucket script result: %v", res))
	}
	allowedInt, _ := vals[0].(int64)
	remainingStr := fmt.Sprintf("%v", vals[1])
	var rem float64
	if _, err := fmt.Sscanf(remainingStr, "%f", &rem); err != nil {
		return false, 0, apierr.Internal(fmt.Errorf("parse token bucket remaining: %w", err))
	}

	return allowedInt == 1, rem, nil
}

// Reset drops a (tenant, route) bucket's state entirely, restoring it to
// full capacity on next use. Used by administrative overrides, never by
// the admission path itself.
func (s *Store) Reset(ctx context.Context, tenantID, route string) error {
	if err := s.client.Del(ctx, s.key(tenantID, route)).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "reset token bucket", err)
	}
	return nil
}
