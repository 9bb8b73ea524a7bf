// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesImmediatelyAndOnTicks(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Runner{Interval: 20 * time.Millisecond, Log: zerolog.Nop()}
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(_ context.Context) error {
			if atomic.AddInt32(&runs, 1) >= 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}

func TestRunnerContinuesAfterJobError(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Runner{Interval: 10 * time.Millisecond, Log: zerolog.Nop()}
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(_ context.Context) error {
			if atomic.AddInt32(&runs, 1) >= 2 {
				cancel()
			}
			return fmt.Errorf("run failed")
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped retrying after an error")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestRunnerRejectsNonPositiveInterval(t *testing.T) {
	r := &Runner{Log: zerolog.Nop()}
	err := r.Run(context.Background(), func(_ context.Context) error { return nil })
	assert.Error(t, err)
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs int32
	r := &Runner{Interval: time.Hour, Log: zerolog.Nop()}
	err := r.Run(ctx, func(_ context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&runs))
}
