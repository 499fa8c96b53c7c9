package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewCronScheduler("every morning")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestNextHonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	c, err := NewCronScheduler("0 9 * * *", WithLocation(loc))
	require.NoError(t, err)

	next := c.Next(time.Date(2025, 7, 1, 5, 0, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC), next.UTC())
}

func TestStartRunsOnStartAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, err := NewCronScheduler("0 9 * * *", WithRunOnStart(true), WithLogger(quietLogger()))
	require.NoError(t, err)

	fired := make(chan time.Time, 1)
	require.NoError(t, c.Start(context.Background(), func(at time.Time) { fired <- at }))

	select {
	case at := <-fired:
		assert.False(t, at.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}

	require.Error(t, c.Start(context.Background(), func(time.Time) {}))
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestStartStopsWhenContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, err := NewCronScheduler("@daily", WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx, func(time.Time) {}))
	cancel()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.cron == nil
	}, time.Second, 10*time.Millisecond)
}

func TestStartRejectsNilJob(t *testing.T) {
	c, err := NewCronScheduler("@hourly")
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background(), nil))
}

func TestTriggersSkipWhileInitialRunIsActive(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, err := NewCronScheduler("@every 1s", WithRunOnStart(true), WithLogger(quietLogger()))
	require.NoError(t, err)

	var active, peak, runs atomic.Int32
	job := func(time.Time) {
		runs.Add(1)
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2500 * time.Millisecond)
		active.Add(-1)
	}

	require.NoError(t, c.Start(context.Background(), job))
	time.Sleep(2200 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, int32(1), runs.Load())
}
