package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op with bounded exponential backoff: attempt k waits
// base*2^k, with at most maxRetries retries after the first attempt.
// Context cancellation aborts the wait.
func Retry(ctx context.Context, base time.Duration, maxRetries uint64, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, maxRetries), ctx)
	return backoff.Retry(op, b)
}

// RetrySchedule runs op, waiting delays[k] before retry k+1. The schedule
// is a fixed lookup table, not exponential: exhausting it returns the last
// error. Used by the balance loader.
func RetrySchedule(ctx context.Context, delays []time.Duration, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	for _, d := range delays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}

// Permanent marks err as non-retryable for Retry.
func Permanent(err error) error { return backoff.Permanent(err) }
