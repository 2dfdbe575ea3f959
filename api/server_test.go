package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofircohen205/aura-sub001/config"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/gatekeeper"
	"github.com/ofircohen205/aura-sub001/logging"
	"github.com/ofircohen205/aura-sub001/quota"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/session"
	"github.com/ofircohen205/aura-sub001/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	issuer := session.NewTokenIssuer("secret", time.Minute, "aura-core")
	sessions := session.NewStore(client, issuer, time.Hour)
	quotaStore := quota.NewStore(client, time.Hour)
	inflight := quota.NewInflightRegistry(client)
	results := resultstore.NewStore(client, time.Minute)
	queue := engine.NewQueue(client, "test:")
	checkpoints := engine.NewCheckpointStore(client, time.Minute)
	logger := logging.NewContextLogger(logging.New(logging.DefaultConfig()), nil)
	runtime := engine.NewRuntime(queue, checkpoints, map[string]*engine.Graph{}, time.Second, logger)

	gate := gatekeeper.New(sessions, quotaStore, inflight, results, runtime,
		map[string]gatekeeper.Normalizer{}, time.Minute, 10, 10)

	tunables := config.Tunables{BucketCapacityDefault: 100, BucketRefillRateDefault: 10}
	return NewServer(gate, results, sessions, tunables)
}

func TestSubmitEditsAdmitsNewJob(t *testing.T) {
	s := newTestServer(t)
	update := telemetry.WindowUpdate{SessionID: "s1", Errors: []telemetry.ErrorEvent{{Signature: "nil_pointer"}}}

	resp, err := s.SubmitEdits(context.Background(), "tenant-1", update, "")

	require.NoError(t, err)
	assert.Equal(t, gatekeeper.AdmissionNew, resp.Admission)
	assert.NotEmpty(t, resp.Fingerprint)
}

func TestSubmitAuditAdmitsNewJob(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.SubmitAudit(context.Background(), "tenant-1", []byte("--- a/x.go\n+++ b/x.go\n"), "")

	require.NoError(t, err)
	assert.Equal(t, gatekeeper.AdmissionNew, resp.Admission)
}

func TestFetchLessonNotReadyIsNonError(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.FetchLesson(context.Background(), "never-submitted")

	require.NoError(t, err)
	assert.False(t, resp.Ready)
	assert.Nil(t, resp.Result)
}

func TestFetchLessonReturnsReadyResult(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.results.Put(context.Background(), resultstore.Result{
		Fingerprint: "fp-1", Kind: "struggle", CompletedAt: time.Now(),
	}))

	resp, err := s.FetchLesson(context.Background(), "fp-1")

	require.NoError(t, err)
	assert.True(t, resp.Ready)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "struggle", resp.Result.Kind)
}

func TestAwaitLessonWakesOnResult(t *testing.T) {
	s := newTestServer(t)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.results.Put(context.Background(), resultstore.Result{Fingerprint: "fp-2", Kind: "audit"})
	}()

	result, err := s.AwaitLesson(context.Background(), "fp-2", 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "audit", result.Kind)
}

func TestRefreshSessionRotatesTokenPair(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.sessions.Create(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	rotated, err := s.RefreshSession(ctx, created.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, created.RefreshToken, rotated.RefreshToken)
}
