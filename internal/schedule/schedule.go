// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schedule runs a job on a fixed interval until the context is
// cancelled. Job errors are logged and the schedule keeps going, so one
// bad run never stops the service.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Job is one scheduled execution.
type Job func(ctx context.Context) error

// Runner executes a job immediately and then once per interval.
type Runner struct {
	Interval time.Duration
	Log      zerolog.Logger
}

// Run blocks until ctx is cancelled, executing job on schedule. The first
// execution happens right away rather than one interval in. Returns nil on
// cancellation; a non-positive interval is an error.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r.Interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", r.Interval)
	}

	r.execute(ctx, job)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		r.Log.Error().Err(err).Dur("elapsed", time.Since(start)).
			Msg("scheduled run failed")
		return
	}
	r.Log.Info().Dur("elapsed", time.Since(start)).Msg("scheduled run finished")
}
