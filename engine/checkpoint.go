package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Checkpoint is a durable snapshot of a Job's progress through a Graph,
// written before every node the graph marks Externalizing so a crashed
// worker can resume from the last externalizing boundary instead of
// replaying side effects.
type Checkpoint struct {
	JobID     string          `json:"job_id"`
	Node      NodeID          `json:"node"`
	State     json.RawMessage `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CheckpointStore persists Checkpoints in Redis with a SET ... EX TTL.
type CheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCheckpointStore creates a CheckpointStore backed by client.
func NewCheckpointStore(client *redis.Client, ttl time.Duration) *CheckpointStore {
	return &CheckpointStore{client: client, prefix: "engine:checkpoint:", ttl: ttl}
}

func (c *CheckpointStore) key(jobID string) string { return c.prefix + jobID }

// Save writes a checkpoint for jobID at node with the given state.
func (c *CheckpointStore) Save(ctx context.Context, jobID string, node NodeID, values map[string]interface{}) error {
	stateJSON, err := json.Marshal(values)
	if err != nil {
		return apierr.Internal(fmt.Errorf("marshal checkpoint state: %w", err))
	}
	cp := Checkpoint{JobID: jobID, Node: node, State: stateJSON, UpdatedAt: time.Now()}
	data, err := json.Marshal(cp)
	if err != nil {
		return apierr.Internal(err)
	}
	if err := c.client.Set(ctx, c.key(jobID), data, c.ttl).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "save checkpoint", err)
	}
	return nil
}

// Load fetches the most recent checkpoint for jobID, if any.
func (c *CheckpointStore) Load(ctx context.Context, jobID string) (*Checkpoint, error) {
	data, err := c.client.Get(ctx, c.key(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "load checkpoint", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, apierr.Internal(err)
	}
	return &cp, nil
}

// Clear removes jobID's checkpoint once the Job reaches a terminal state.
func (c *CheckpointStore) Clear(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, c.key(jobID)).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "clear checkpoint", err)
	}
	return nil
}
