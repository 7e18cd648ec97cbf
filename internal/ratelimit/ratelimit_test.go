package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyQuota(t *testing.T) {
	l := New(0, 2)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Equal(t, 0, l.Remaining())
	assert.ErrorIs(t, l.Wait(ctx), ErrQuotaExhausted)
	assert.Equal(t, 1, l.GetStats()["upstream_denied"])
}

func TestQuotaResets(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	l := New(0, 1)
	l.now = func() time.Time { return now }
	l.resetTime = now.Add(24 * time.Hour)

	require.NoError(t, l.Wait(context.Background()))
	assert.ErrorIs(t, l.Wait(context.Background()), ErrQuotaExhausted)

	now = now.Add(25 * time.Hour)
	assert.NoError(t, l.Wait(context.Background()))
}

func TestNoQuota(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Equal(t, -1, l.Remaining())
}

func TestCancelledWaitRefunds(t *testing.T) {
	l := New(0.001, 5)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx), "first token is available immediately")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.Wait(cancelled))
	assert.Equal(t, 4, l.Remaining())
}
