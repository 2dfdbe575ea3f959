// Package resultstore implements the Result Store & Subscription Bus: a
// Redis-backed place to park a Job's outcome keyed by fingerprint, plus a
// pub/sub channel so a caller already waiting on that fingerprint (the
// coalescence case — a second submitEdits for the same window) is woken
// the moment the first caller's Job finishes, rather than polling.
package resultstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// Result is whatever the Workflow Runtime produced for a fingerprint:
// an Intervention, a verdict, or an error envelope. Callers type-assert
// or re-unmarshal Payload according to the Job kind that produced it.
type Result struct {
	Fingerprint string          `json:"fingerprint"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Err         *string         `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Store is the Redis-backed result store and subscription bus.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store backed by client. ttl is how long a
// completed result stays fetchable before expiring (spec's "at least
// long enough for a slow poller to catch up" window).
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, prefix: "result:", ttl: ttl}
}

func (s *Store) key(fingerprint string) string     { return s.prefix + fingerprint }
func (s *Store) channel(fingerprint string) string { return s.prefix + "chan:" + fingerprint }

// Put stores result and publishes it to any active subscribers. Publish
// happens after the SET completes so a subscriber that reacts to the
// notification and immediately calls Get never races the write.
func (s *Store) Put(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return apierr.Internal(err)
	}
	if err := s.client.Set(ctx, s.key(result.Fingerprint), data, s.ttl).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "store result", err)
	}
	if err := s.client.Publish(ctx, s.channel(result.Fingerprint), data).Err(); err != nil {
		return apierr.Wrap(apierr.KindTransient, "publish result", err)
	}
	return nil
}

// Get fetches a previously stored result, reporting apierr.ErrNotFound
// (wrapped as KindTransient, since the caller should retry/subscribe
// rather than treat a miss as terminal) if none exists yet.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Result, error) {
	data, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, apierr.Wrap(apierr.KindTransient, "result not ready", apierr.ErrNotFound)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "fetch result", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apierr.Internal(err)
	}
	return &result, nil
}

// Await blocks until fingerprint's result is available, ctx is
// cancelled, or deadline elapses — whichever comes first. It subscribes
// before the initial Get to close the race where the result lands
// between the miss and the subscribe call; at-least-once delivery means
// an Await can also simply find the result via its own post-subscribe Get
// rather than the notification, which is why both paths are checked.
func (s *Store) Await(ctx context.Context, fingerprint string, deadline time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	pubsub := s.client.Subscribe(ctx, s.channel(fingerprint))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "subscribe for result", err)
	}

	if result, err := s.Get(ctx, fingerprint); err == nil {
		return result, nil
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return nil, apierr.New(apierr.KindTransient, "subscription closed before result arrived")
			}
			var result Result
			if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
				continue
			}
			return &result, nil
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, apierr.New(apierr.KindTransient, "timed out waiting for result")
			}
			return nil, apierr.Cancelled("wait for result cancelled")
		}
	}
}
