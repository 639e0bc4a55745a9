package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockStampsUTC(t *testing.T) {
	t.Parallel()

	now := New().Now
	started := now()
	finished := now()

	require.Equal(t, time.UTC, started.Location())
	require.False(t, finished.Before(started), "finish %v precedes start %v", finished, started)
	require.WithinDuration(t, time.Now().UTC(), started, time.Second)
}
