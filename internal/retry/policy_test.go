package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicy_BackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, 10*time.Millisecond, 40*time.Millisecond)
	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	t.Parallel()

	p := NewExponential(2, time.Millisecond, time.Millisecond)
	require.False(t, p.Exhausted(1))
	require.True(t, p.Exhausted(2))

	unbounded := NewExponential(0, time.Millisecond, time.Millisecond)
	require.False(t, unbounded.Exhausted(1000))
}

func TestPolicy_DefaultsApplied(t *testing.T) {
	t.Parallel()

	p := NewExponential(1, 0, 0)
	require.Equal(t, 250*time.Millisecond, p.BaseDelay)
	require.Equal(t, 250*time.Millisecond, p.MaxDelay)
}

func TestPolicy_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	p := NewExponential(1, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Wait(ctx, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
