package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTriggerIfDue(t *testing.T) {
	cfg := SweepConfig{Hour: 2, Minute: 0, CheckInterval: time.Minute}

	newSweep := func(runs *int32) *DailySweep {
		return NewDailySweep(cfg, func(ctx context.Context) error {
			atomic.AddInt32(runs, 1)
			return nil
		}, zaptest.NewLogger(t))
	}

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	t.Run("does not run before the scheduled time", func(t *testing.T) {
		var runs int32
		s := newSweep(&runs)
		s.TriggerIfDue(context.Background(), day.Add(1*time.Hour))
		assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	})

	t.Run("runs once per day after the scheduled time", func(t *testing.T) {
		var runs int32
		s := newSweep(&runs)
		s.TriggerIfDue(context.Background(), day.Add(2*time.Hour))
		s.TriggerIfDue(context.Background(), day.Add(3*time.Hour))
		assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

		// Next day it becomes due again.
		s.TriggerIfDue(context.Background(), day.Add(26*time.Hour))
		assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	})
}

func TestStartStop(t *testing.T) {
	cfg := SweepConfig{Hour: 23, Minute: 59, CheckInterval: 10 * time.Millisecond}
	s := NewDailySweep(cfg, func(ctx context.Context) error { return nil },
		zaptest.NewLogger(t))

	require.NoError(t, s.Start(context.Background()))
	// Idempotent start.
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
