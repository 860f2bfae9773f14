package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_EventualSuccess(t *testing.T) {
	t.Parallel()
	var calls int
	err := Retry(context.Background(), time.Millisecond, 3, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetry_Bounded(t *testing.T) {
	t.Parallel()
	var calls int
	err := Retry(context.Background(), time.Millisecond, 2, func() error {
		calls++
		return errors.New("always")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls, "first attempt plus two retries")
}

func TestRetry_PermanentStopsEarly(t *testing.T) {
	t.Parallel()
	var calls int
	sentinel := errors.New("bad request")
	err := Retry(context.Background(), time.Millisecond, 5, func() error {
		calls++
		return Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestRetrySchedule_UsesAllDelays(t *testing.T) {
	t.Parallel()
	var calls int
	delays := []time.Duration{time.Millisecond, time.Millisecond}
	err := RetrySchedule(context.Background(), delays, func() error {
		calls++
		return errors.New("always")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrySchedule_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int
	err := RetrySchedule(ctx, []time.Duration{time.Hour}, func() error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
