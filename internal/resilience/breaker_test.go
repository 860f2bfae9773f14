package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()
	b := NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	require.True(t, b.Allow())
	require.False(t, b.Open())

	b.Failure()
	require.True(t, b.Open())
	require.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	t.Parallel()
	b := NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	require.False(t, b.Open(), "counter should have restarted after success")
}

func TestBreaker_ClosesAfterCooldown(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(2, 60*time.Second)
	b.now = func() time.Time { return now }

	b.Failure()
	b.Failure()
	require.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	require.False(t, b.Allow())

	now = now.Add(2 * time.Second)
	require.True(t, b.Allow())
	require.False(t, b.Open())

	// counter was reset on close: one more failure does not reopen
	b.Failure()
	require.False(t, b.Open())
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := NewBreaker(1, time.Hour)
	b.Failure()
	require.True(t, b.Open())
	b.Reset()
	require.True(t, b.Allow())
	require.False(t, b.Open())
}
