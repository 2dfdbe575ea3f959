// Package gatekeeper implements the Gatekeeper: the single admission
// point that rate-limits and deduplicates every submitEdits/submitAudit
// call before it becomes a Job on the Workflow Runtime. Admit does not
// authenticate the caller, and fetchLesson/refreshSession do not pass
// through it.
package gatekeeper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/quota"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/session"
)

// Admission is the outcome of Admit.
type Admission string

const (
	AdmissionNew       Admission = "new"
	AdmissionCoalesced Admission = "coalesced"
	AdmissionDenied    Admission = "denied"
)

// DeniedReason further qualifies an AdmissionDenied result.
type DeniedReason string

const (
	ReasonRateLimited   DeniedReason = "rate_limited"
	ReasonPayloadReject DeniedReason = "payload_rejected"
)

// Result is what Admit returns.
type Result struct {
	Fingerprint string
	Admission   Admission
	Reason      DeniedReason
	Existing    *resultstore.Result // populated when Admission == AdmissionCoalesced
}

// Normalizer canonicalizes a kind's payload before fingerprinting, so the
// hash is stable across cosmetic differences (trailing whitespace,
// timestamp rounding) the pipeline itself doesn't care about.
type Normalizer func(payload []byte) ([]byte, error)

// buildLockTTL bounds how long a fingerprint's in-flight build lock
// survives without an explicit release, mirroring the Workflow
// Runtime's own processing deadline (engine.Runtime.runJob) so a job
// that crashes mid-flight doesn't wedge its fingerprint shut beyond the
// point the runtime itself would have given up on it.
const buildLockTTL = 10 * time.Minute

// Gatekeeper is the single admission entry point. One instance is shared
// across all tenants; per-tenant/per-route state lives in its Redis-
// backed dependencies, not in the Gatekeeper itself.
type Gatekeeper struct {
	Sessions *session.Store

	quota       *quota.Store
	inflight    *quota.InflightRegistry
	results     *resultstore.Store
	runtime     *engine.Runtime
	normalizers map[string]Normalizer
	localShape  *quota.LocalShaper

	coalescenceTTL    time.Duration
	maxInflightTenant int
	maxInflightGlobal int
}

// New creates a Gatekeeper.
func New(sessions *session.Store, quotaStore *quota.Store, inflight *quota.InflightRegistry, results *resultstore.Store, runtime *engine.Runtime, normalizers map[string]Normalizer, coalescenceTTL time.Duration, maxInflightTenant, maxInflightGlobal int) *Gatekeeper {
	return &Gatekeeper{
		Sessions:          sessions,
		quota:             quotaStore,
		inflight:          inflight,
		results:           results,
		runtime:           runtime,
		normalizers:       normalizers,
		localShape:        quota.NewLocalShaper(),
		coalescenceTTL:    coalescenceTTL,
		maxInflightTenant: maxInflightTenant,
		maxInflightGlobal: maxInflightGlobal,
	}
}

// Admit implements admit(tenant, kind, payload) -> (fingerprint,
// admission): the sequence is fingerprint -> Result Store (coalesce
// against a completed build) -> fingerprint in-flight lock (coalesce
// against a running build) -> per-tenant/global in-flight accounting
// (backpressure) -> token bucket (rate limit) -> enqueue.
func (g *Gatekeeper) Admit(ctx context.Context, tenantID, kind string, payload []byte, idempotencyKey string, bucket quota.Bucket) (Result, error) {
	fingerprint, err := g.fingerprint(tenantID, kind, payload, idempotencyKey)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.KindValidation, "payload rejected", err)
	}

	if existing, err := g.results.Get(ctx, fingerprint); err == nil {
		if time.Since(existing.CompletedAt) <= g.coalescenceTTL {
			return Result{Fingerprint: fingerprint, Admission: AdmissionCoalesced, Existing: existing}, nil
		}
	} else if apierr.KindOf(err) != apierr.KindTransient {
		return Result{}, err
	}

	// A Job with this fingerprint is already pending/running: attach as a
	// coalescing subscriber (the caller polls/streams the fingerprint)
	// rather than racing a second Job to the same Result Store key.
	buildAcquired, err := g.inflight.TryAcquireFingerprint(ctx, fingerprint, buildLockTTL)
	if err != nil {
		return Result{}, err
	}
	if !buildAcquired {
		return Result{Fingerprint: fingerprint, Admission: AdmissionCoalesced}, nil
	}

	acquired, err := g.inflight.TryAcquire(ctx, tenantID, g.maxInflightTenant, g.maxInflightGlobal)
	if err != nil {
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{}, err
	}
	if !acquired {
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{Fingerprint: fingerprint, Admission: AdmissionDenied, Reason: ReasonRateLimited}, nil
	}

	// Per-process burst smoothing ahead of the Redis-authoritative bucket:
	// a caller already over its local limiter's burst is almost certainly
	// also over the shared bucket, so this saves a Redis round trip under
	// load without changing who decides quota.
	if !g.localShape.Allow(bucket) {
		_ = g.inflight.Release(ctx, tenantID)
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{Fingerprint: fingerprint, Admission: AdmissionDenied, Reason: ReasonRateLimited}, nil
	}

	allowed, _, err := g.quota.Allow(ctx, bucket, 1.0)
	if err != nil {
		_ = g.inflight.Release(ctx, tenantID)
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{}, err
	}
	if !allowed {
		_ = g.inflight.Release(ctx, tenantID)
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{Fingerprint: fingerprint, Admission: AdmissionDenied, Reason: ReasonRateLimited}, nil
	}

	job := engine.Job{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Kind:        kind,
		Fingerprint: fingerprint,
		Payload:     payload,
		Status:      engine.StatusQueued,
		EnqueuedAt:  time.Now(),
	}
	if err := g.runtime.Enqueue(ctx, job); err != nil {
		_ = g.inflight.Release(ctx, tenantID)
		_ = g.inflight.ReleaseFingerprint(ctx, fingerprint)
		return Result{}, err
	}

	return Result{Fingerprint: fingerprint, Admission: AdmissionNew}, nil
}

func (g *Gatekeeper) fingerprint(tenantID, kind string, payload []byte, idempotencyKey string) (string, error) {
	normalize := g.normalizers[kind]
	normalized := payload
	if normalize != nil {
		n, err := normalize(payload)
		if err != nil {
			return "", err
		}
		normalized = n
	}

	envelope := struct {
		Tenant         string          `json:"tenant"`
		Kind           string          `json:"kind"`
		Payload        json.RawMessage `json:"normalized_payload"`
		IdempotencyKey string          `json:"idempotency_key,omitempty"`
	}{Tenant: tenantID, Kind: kind, Payload: normalized, IdempotencyKey: idempotencyKey}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
