package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New(context.Background(), "Not/AZone", time.Minute)
	assert.Error(t, err)
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s, err := New(context.Background(), "UTC", time.Minute)
	require.NoError(t, err)
	assert.Error(t, s.AddJob("warm", "not a schedule", func(context.Context) error { return nil }))
}

func TestAddJobReplaces(t *testing.T) {
	s, err := New(context.Background(), "UTC", time.Minute)
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddJob("warm", "*/3 * * * *", noop))
	require.NoError(t, s.AddJob("warm", "*/5 * * * *", noop))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1, "re-adding replaces the job")
	assert.Equal(t, "warm", jobs[0].Name)
	assert.True(t, jobs[0].NextRun.IsZero())

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool {
		return !s.ListJobs()[0].NextRun.IsZero()
	}, time.Second, 10*time.Millisecond)
}

func TestRunCancelledWithParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := New(ctx, "UTC", time.Minute)
	require.NoError(t, err)
	cancel()

	err = s.RunNow("warm", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNow(t *testing.T) {
	s, err := New(context.Background(), "UTC", time.Second)
	require.NoError(t, err)

	var deadline bool
	err = s.RunNow("warm", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, deadline, "runs are bounded by the timeout")

	boom := errors.New("boom")
	assert.ErrorIs(t, s.RunNow("warm", func(context.Context) error { return boom }), boom)
}

func TestScheduledRun(t *testing.T) {
	s, err := New(context.Background(), "UTC", time.Second)
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.AddJob("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
