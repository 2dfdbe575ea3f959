package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueue(client, "test:")
}

func TestQueueEnqueueDequeueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := Job{ID: "job-1", Kind: "struggle", Fingerprint: "fp-1"}
	require.NoError(t, q.Enqueue(ctx, job))

	depth, err := q.Depth(ctx, "struggle")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	dequeued, err := q.Dequeue(ctx, "struggle", time.Second)
	require.NoError(t, err)
	require.NotNil(t, dequeued)
	assert.Equal(t, "job-1", dequeued.ID)
}

func TestQueueDequeueTimesOutWithoutError(t *testing.T) {
	q := newTestQueue(t)
	job, err := q.Dequeue(context.Background(), "struggle", 50*time.Millisecond)

	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueueProcessingLifecycle(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.MarkProcessing(ctx, "job-1", time.Now().Add(time.Minute)))

	processing, err := q.IsProcessing(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, processing)

	require.NoError(t, q.CompleteJob(ctx, "job-1"))

	processing, err = q.IsProcessing(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, processing)
}

func TestQueueFailJobRequeues(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := Job{ID: "job-1", Kind: "struggle", RetryCount: 0}
	require.NoError(t, q.MarkProcessing(ctx, job.ID, time.Now().Add(time.Minute)))
	require.NoError(t, q.FailJob(ctx, job, true))

	depth, err := q.Depth(ctx, "struggle")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	requeued, err := q.Dequeue(ctx, "struggle", time.Second)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, 1, requeued.RetryCount)
}
