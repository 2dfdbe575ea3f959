package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreAllowDebitsWithinCapacity(t *testing.T) {
	s := NewStore(newTestClient(t), time.Hour)
	b := Bucket{TenantID: "tenant-1", Capacity: 5, RefillRate: 1}
	ctx := context.Background()

	allowed, remaining, err := s.Allow(ctx, b, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.InDelta(t, 4.0, remaining, 0.001)
}

func TestStoreAllowDeniesWhenExhausted(t *testing.T) {
	s := NewStore(newTestClient(t), time.Hour)
	b := Bucket{TenantID: "tenant-1", Capacity: 2, RefillRate: 0}
	ctx := context.Background()

	_, _, err := s.Allow(ctx, b, 1)
	require.NoError(t, err)
	_, _, err = s.Allow(ctx, b, 1)
	require.NoError(t, err)

	allowed, remaining, err := s.Allow(ctx, b, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.InDelta(t, 0.0, remaining, 0.001)
}

func TestStoreAllowIsolatesBucketsByRoute(t *testing.T) {
	s := NewStore(newTestClient(t), time.Hour)
	ctx := context.Background()
	telemetry := Bucket{TenantID: "tenant-1", Route: "/telemetry", Capacity: 1, RefillRate: 0}
	audit := Bucket{TenantID: "tenant-1", Route: "/audit", Capacity: 1, RefillRate: 0}

	allowed, _, err := s.Allow(ctx, telemetry, 1)
	require.NoError(t, err)
	assert.True(t, allowed, "first debit against the telemetry route bucket should succeed")

	allowed, _, err = s.Allow(ctx, audit, 1)
	require.NoError(t, err)
	assert.True(t, allowed, "audit route has its own bucket and should be unaffected by the telemetry debit")

	allowed, _, err = s.Allow(ctx, telemetry, 1)
	require.NoError(t, err)
	assert.False(t, allowed, "telemetry bucket is now exhausted on its own key")
}

func TestStoreResetRestoresCapacity(t *testing.T) {
	s := NewStore(newTestClient(t), time.Hour)
	b := Bucket{TenantID: "tenant-1", Capacity: 1, RefillRate: 0}
	ctx := context.Background()

	_, _, err := s.Allow(ctx, b, 1)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "tenant-1", ""))

	allowed, _, err := s.Allow(ctx, b, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInflightRegistryEnforcesTenantAndGlobalLimits(t *testing.T) {
	r := NewInflightRegistry(newTestClient(t))
	ctx := context.Background()

	ok, err := r.TryAcquire(ctx, "tenant-1", 1, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryAcquire(ctx, "tenant-1", 1, 5)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire should exceed per-tenant limit of 1")
}

func TestInflightRegistryReleaseFreesSlot(t *testing.T) {
	r := NewInflightRegistry(newTestClient(t))
	ctx := context.Background()

	ok, err := r.TryAcquire(ctx, "tenant-1", 1, 5)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Release(ctx, "tenant-1"))

	ok, err = r.TryAcquire(ctx, "tenant-1", 1, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInflightRegistryEnforcesGlobalLimitAcrossTenants(t *testing.T) {
	r := NewInflightRegistry(newTestClient(t))
	ctx := context.Background()

	ok, err := r.TryAcquire(ctx, "tenant-1", 5, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryAcquire(ctx, "tenant-2", 5, 1)
	require.NoError(t, err)
	assert.False(t, ok, "global limit of 1 should block a second tenant's acquire")
}

func TestInflightRegistryFingerprintLockExcludesConcurrentAcquire(t *testing.T) {
	r := NewInflightRegistry(newTestClient(t))
	ctx := context.Background()

	ok, err := r.TryAcquireFingerprint(ctx, "fp-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryAcquireFingerprint(ctx, "fp-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second acquire for the same fingerprint must fail while the lock is held")

	ok, err = r.TryAcquireFingerprint(ctx, "fp-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a different fingerprint has its own lock")
}

func TestInflightRegistryReleaseFingerprintFreesLock(t *testing.T) {
	r := NewInflightRegistry(newTestClient(t))
	ctx := context.Background()

	ok, err := r.TryAcquireFingerprint(ctx, "fp-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.ReleaseFingerprint(ctx, "fp-1"))

	ok, err = r.TryAcquireFingerprint(ctx, "fp-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
