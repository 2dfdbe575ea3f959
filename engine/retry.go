package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
)

// RetryConfig is the per-node capped-exponential backoff policy with
// jitter, applied to Workflow Runtime node execution.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay to randomize, e.g. 0.1
}

// DefaultRetryConfig mirrors a node that retries transient failures a
// handful of times with short exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (c RetryConfig) nextDelay(attempt int, current time.Duration) time.Duration {
	if attempt == 0 {
		return c.InitialDelay
	}
	next := time.Duration(float64(current) * c.Multiplier)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next
}

func (c RetryConfig) addJitter(d time.Duration) time.Duration {
	if c.Jitter <= 0 {
		return d
	}
	delta := float64(d) * c.Jitter
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// Retry runs fn up to c.MaxAttempts times, sleeping with capped
// exponential backoff plus jitter between attempts, and returns as soon
// as fn succeeds, ctx is cancelled, attempts are exhausted, or fn
// returns a non-retryable error (apierr.Retryable reports false) — a
// validation or authz failure fails the job on the first attempt rather
// than being retried to no effect.
func Retry(ctx context.Context, c RetryConfig, fn func(ctx context.Context) error) error {
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := c.InitialDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay = c.nextDelay(attempt, delay)
			select {
			case <-time.After(c.addJitter(delay)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !apierr.Retryable(err) {
			return err
		}
	}
	return err
}
