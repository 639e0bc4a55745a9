package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingPauser captures requested delays without sleeping.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, delay time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, delay)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func TestAttemptSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	policy := RetryPolicy{MaxAttempts: 3, Backoff: 5 * time.Second}
	calls := 0
	value, attempts, err := Attempt(context.Background(), policy, pauser, func(context.Context, int) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, pauser.Delays())
}

func TestAttemptExhaustsWithoutTrailingBackoff(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	boom := errors.New("boom")
	_, attempts, err := Attempt(context.Background(), RetryPolicy{MaxAttempts: 2, Backoff: time.Second}, pauser,
		func(context.Context, int) (int, error) { return 0, boom })

	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, attempts)
	require.Len(t, pauser.Delays(), 1)
}

func TestAttemptStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	calls := 0
	_, attempts, err := Attempt(context.Background(), RetryPolicy{MaxAttempts: 5}, pauser,
		func(context.Context, int) (int, error) {
			calls++
			return 0, Permanent(ErrInvalidListing)
		})

	require.ErrorIs(t, err, ErrInvalidListing)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
	require.Empty(t, pauser.Delays())
}

func TestAttemptHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, attempts, err := Attempt(ctx, RetryPolicy{MaxAttempts: 3}, &recordingPauser{},
		func(context.Context, int) (int, error) {
			called = true
			return 1, nil
		})

	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, attempts)
	require.False(t, called)
}

func TestAttemptZeroPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, attempts, err := Attempt(context.Background(), RetryPolicy{}, &recordingPauser{},
		func(context.Context, int) (int, error) {
			calls++
			return 0, errors.New("nope")
		})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}
