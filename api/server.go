// Package api implements the RPC surface bound 1:1 to client jobs:
// submitEdits, submitAudit, fetchLesson, refreshSession. Every method is
// a plain Go function; the HTTP transport in api/http is a translation
// shim only.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/audit"
	"github.com/ofircohen205/aura-sub001/config"
	"github.com/ofircohen205/aura-sub001/gatekeeper"
	"github.com/ofircohen205/aura-sub001/quota"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/session"
	"github.com/ofircohen205/aura-sub001/telemetry"
)

// JobKind names the two pipeline kinds submitEdits/submitAudit create.
const (
	KindStruggle = "struggle"
	KindAudit    = "audit"
)

// Route names the quota bucket each RPC draws from, so a burst against
// one never exhausts the other's quota (spec.md §3/§4.6's per-(tenant,
// route) token bucket).
const (
	RouteTelemetry = "/telemetry"
	RouteAudit     = "/audit"
)

// SubmitResponse is what submitEdits/submitAudit return.
type SubmitResponse struct {
	Fingerprint string
	Admission   gatekeeper.Admission
	Reason      gatekeeper.DeniedReason
}

// FetchResponse is what fetchLesson returns.
type FetchResponse struct {
	Ready  bool
	Result *resultstore.Result
}

// Server wires the Gatekeeper and Result Store into the four RPC
// methods clients call.
type Server struct {
	gate     *gatekeeper.Gatekeeper
	results  *resultstore.Store
	sessions *session.Store
	tunables config.Tunables
}

// NewServer creates a Server.
func NewServer(gate *gatekeeper.Gatekeeper, results *resultstore.Store, sessions *session.Store, tunables config.Tunables) *Server {
	return &Server{gate: gate, results: results, sessions: sessions, tunables: tunables}
}

func (s *Server) bucket(tenantID, route string) quota.Bucket {
	return quota.Bucket{
		TenantID:   tenantID,
		Route:      route,
		Capacity:   s.tunables.BucketCapacityDefault,
		RefillRate: s.tunables.BucketRefillRateDefault,
	}
}

// SubmitEdits implements submitEdits: admits a WindowUpdate as a
// struggle-kind Job.
func (s *Server) SubmitEdits(ctx context.Context, tenantID string, update telemetry.WindowUpdate, idempotencyKey string) (SubmitResponse, error) {
	payload, err := marshalPayload(update)
	if err != nil {
		return SubmitResponse{}, apierr.Wrap(apierr.KindValidation, "encode window update", err)
	}

	result, err := s.gate.Admit(ctx, tenantID, KindStruggle, payload, idempotencyKey, s.bucket(tenantID, RouteTelemetry))
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{Fingerprint: result.Fingerprint, Admission: result.Admission, Reason: result.Reason}, nil
}

// SubmitAudit implements submitAudit: admits a raw unified diff as an
// audit-kind Job.
func (s *Server) SubmitAudit(ctx context.Context, tenantID string, raw []byte, idempotencyKey string) (SubmitResponse, error) {
	payload, err := marshalPayload(audit.AuditPayload{Raw: raw})
	if err != nil {
		return SubmitResponse{}, apierr.Wrap(apierr.KindValidation, "encode audit payload", err)
	}

	result, err := s.gate.Admit(ctx, tenantID, KindAudit, payload, idempotencyKey, s.bucket(tenantID, RouteAudit))
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{Fingerprint: result.Fingerprint, Admission: result.Admission, Reason: result.Reason}, nil
}

// FetchLesson implements fetchLesson: a non-blocking poll for a
// fingerprint's result, and GET /interventions/{fingerprint}'s 200/202
// distinction.
func (s *Server) FetchLesson(ctx context.Context, fingerprint string) (FetchResponse, error) {
	result, err := s.results.Get(ctx, fingerprint)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindTransient {
			return FetchResponse{Ready: false}, nil
		}
		return FetchResponse{}, err
	}
	return FetchResponse{Ready: true, Result: result}, nil
}

// AwaitLesson blocks until fingerprint's result lands or deadline
// elapses, for the streaming subscribe path.
func (s *Server) AwaitLesson(ctx context.Context, fingerprint string, deadline time.Duration) (*resultstore.Result, error) {
	return s.results.Await(ctx, fingerprint, deadline)
}

// RefreshSession implements refreshSession: rotates a presented refresh
// token for a fresh access/refresh pair.
func (s *Server) RefreshSession(ctx context.Context, refreshToken string) (*session.TokenPair, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

func marshalPayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
