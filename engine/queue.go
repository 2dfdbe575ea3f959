package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Queue is the Redis-backed Job queue: one list per Job kind plus a
// processing sorted-set for in-flight tracking — BLPop for blocking
// dequeue, ZAdd for the processing deadline, ZRem on completion.
type Queue struct {
	client *redis.Client
	prefix string
}

// NewQueue wraps an already-connected client.
func NewQueue(client *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = "engine:"
	}
	return &Queue{client: client, prefix: prefix}
}

func (q *Queue) queueKey(kind string) string { return q.prefix + "queue:" + kind }
func (q *Queue) processingKey() string       { return q.prefix + "processing" }

// Enqueue serializes job and pushes it onto its kind's queue.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apierr.Internal(fmt.Errorf("marshal job: %w", err))
	}
	if err := q.client.RPush(ctx, q.queueKey(job.Kind), data).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "enqueue job", err)
	}
	return nil
}

// Dequeue blocks up to timeout for a job on kind's queue, returning nil
// with no error on timeout (an empty queue is not a failure).
func (q *Queue) Dequeue(ctx context.Context, kind string, timeout time.Duration) (*Job, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := q.client.BLPop(dctx, timeout, q.queueKey(kind)).Result()
	if err == redis.Nil || (err != nil && dctx.Err() != nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "dequeue job", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, apierr.Internal(fmt.Errorf("unmarshal job: %w", err))
	}
	return &job, nil
}

// MarkProcessing records jobID as in-flight until deadline.
func (q *Queue) MarkProcessing(ctx context.Context, jobID string, deadline time.Time) error {
	if err := q.client.ZAdd(ctx, q.processingKey(), redis.Z{
		Score:  float64(deadline.Unix()),
		Member: jobID,
	}).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "mark job processing", err)
	}
	return nil
}

// CompleteJob removes jobID from the processing set.
func (q *Queue) CompleteJob(ctx context.Context, jobID string) error {
	if err := q.client.ZRem(ctx, q.processingKey(), jobID).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "complete job", err)
	}
	return nil
}

// FailJob removes jobID from processing and, if requeue is true,
// re-enqueues a copy with RetryCount incremented.
func (q *Queue) FailJob(ctx context.Context, job Job, requeue bool) error {
	if err := q.CompleteJob(ctx, job.ID); err != nil {
		return err
	}
	if !requeue {
		return nil
	}
	job.RetryCount++
	job.EnqueuedAt = time.Now()
	return q.Enqueue(ctx, job)
}

// Depth returns how many jobs are waiting on kind's queue.
func (q *Queue) Depth(ctx context.Context, kind string) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueKey(kind)).Result()
	if err != nil {
		return 0, apierr.Wrap(apierr.KindTransient, "read queue depth", err)
	}
	return n, nil
}

// IsProcessing reports whether jobID is currently in the processing set.
func (q *Queue) IsProcessing(ctx context.Context, jobID string) (bool, error) {
	_, err := q.client.ZScore(ctx, q.processingKey(), jobID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apierr.Wrap(apierr.KindTransient, "check job processing state", err)
	}
	return true, nil
}
