package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofircohen205/aura-sub001/apierr"
)

func TestGraphValidateAcceptsAcyclicGraph(t *testing.T) {
	g := &Graph{
		Name:  "test",
		Start: "a",
		Nodes: map[NodeID]Node{
			"a": {ID: "a"},
			"b": {ID: "b"},
		},
	}
	reachable := map[NodeID][]NodeID{"a": {"b"}, "b": {Terminal}}

	assert.NoError(t, g.Validate(reachable))
}

func TestGraphValidateRejectsMissingStart(t *testing.T) {
	g := &Graph{Name: "test", Start: "missing", Nodes: map[NodeID]Node{}}
	assert.Error(t, g.Validate(nil))
}

func TestGraphValidateRejectsCycle(t *testing.T) {
	g := &Graph{
		Name:  "test",
		Start: "a",
		Nodes: map[NodeID]Node{
			"a": {ID: "a"},
			"b": {ID: "b"},
		},
	}
	reachable := map[NodeID][]NodeID{"a": {"b"}, "b": {"a"}}

	err := g.Validate(reachable)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestGraphValidateRejectsUndeclaredNode(t *testing.T) {
	g := &Graph{
		Name:  "test",
		Start: "a",
		Nodes: map[NodeID]Node{"a": {ID: "a"}},
	}
	reachable := map[NodeID][]NodeID{"a": {"ghost"}}

	err := g.Validate(reachable)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")
}

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesTransientFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, Jitter: 0}

	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apierr.Transient("temporary failure")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return apierr.Validation("bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsZeroValueMaxAttemptsAsOne(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		calls++
		return apierr.Transient("temporary failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestStateCancelIsObservableAcrossGoroutines(t *testing.T) {
	s := NewState(&Job{ID: "job-1"})
	assert.False(t, s.Cancelled())

	done := make(chan struct{})
	go func() {
		s.Cancel()
		close(done)
	}()
	<-done

	assert.True(t, s.Cancelled())
}

func TestStateSetGetRoundTrip(t *testing.T) {
	s := NewState(&Job{ID: "job-1"})
	s.Set("key", 42)

	v, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}
