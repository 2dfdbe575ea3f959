package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// InflightRegistry tracks how many Jobs are concurrently executing, per
// tenant and globally, so the Gatekeeper can enforce
// max_inflight_per_tenant and max_inflight_global without a database
// round trip per node transition — just an INCR/DECR pair.
type InflightRegistry struct {
	client *redis.Client
	prefix string
}

// NewInflightRegistry creates a registry backed by client.
func NewInflightRegistry(client *redis.Client) *InflightRegistry {
	return &InflightRegistry{client: client, prefix: "quota:inflight:"}
}

func (r *InflightRegistry) tenantKey(tenantID string) string { return r.prefix + "tenant:" + tenantID }
func (r *InflightRegistry) globalKey() string                { return r.prefix + "global" }
func (r *InflightRegistry) fingerprintKey(fingerprint string) string {
	return r.prefix + "fp:" + fingerprint
}

// TryAcquireFingerprint takes the build lock for fingerprint via SET NX,
// so two concurrent Admits for the same fingerprint never both enqueue a
// Job: the loser attaches as a coalescing subscriber instead. The lock
// expires after ttl on its own, a safety net against a lost release
// signal (crashed worker, dropped completion) wedging the fingerprint
// shut forever.
func (r *InflightRegistry) TryAcquireFingerprint(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.fingerprintKey(fingerprint), "1", ttl).Result()
	if err != nil {
		return false, apierr.Wrap(apierr.KindTransient, "acquire fingerprint inflight lock", err)
	}
	return ok, nil
}

// ReleaseFingerprint releases fingerprint's build lock ahead of its TTL,
// e.g. when admission fails downstream of the lock and the Job never
// actually runs.
func (r *InflightRegistry) ReleaseFingerprint(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, r.fingerprintKey(fingerprint)).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "release fingerprint inflight lock", err)
	}
	return nil
}

// TryAcquire increments the tenant counter and then the global counter,
// each with its own INCR. If either count exceeds its limit it DECRs
// what it incremented and reports false. The calls are not one
// transaction, so concurrent callers can briefly see a count above its
// limit.
func (r *InflightRegistry) TryAcquire(ctx context.Context, tenantID string, maxPerTenant, maxGlobal int) (bool, error) {
	tenantCount, err := r.client.Incr(ctx, r.tenantKey(tenantID)).Result()
	if err != nil {
		return false, apierr.Wrap(apierr.KindTransient, "acquire tenant inflight slot", err)
	}
	if tenantCount > int64(maxPerTenant) {
		r.client.Decr(ctx, r.tenantKey(tenantID))
		return false, nil
	}

	globalCount, err := r.client.Incr(ctx, r.globalKey()).Result()
	if err != nil {
		r.client.Decr(ctx, r.tenantKey(tenantID))
		return false, apierr.Wrap(apierr.KindTransient, "acquire global inflight slot", err)
	}
	if globalCount > int64(maxGlobal) {
		r.client.Decr(ctx, r.tenantKey(tenantID))
		r.client.Decr(ctx, r.globalKey())
		return false, nil
	}

	return true, nil
}

// Release gives back the slot acquired by a prior successful TryAcquire.
func (r *InflightRegistry) Release(ctx context.Context, tenantID string) error {
	pipe := r.client.TxPipeline()
	pipe.Decr(ctx, r.tenantKey(tenantID))
	pipe.Decr(ctx, r.globalKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return apierr.Wrap(apierr.KindTransient, "release inflight slot", err)
	}
	return nil
}
