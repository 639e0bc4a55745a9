package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPauserWaits(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, TimerPauser{}.Pause(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimerPauserStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerPauser{}.Pause(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestTimerPauserZeroDelay(t *testing.T) {
	t.Parallel()

	require.NoError(t, TimerPauser{}.Pause(context.Background(), 0))
}
