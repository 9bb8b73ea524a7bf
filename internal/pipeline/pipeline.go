// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates one research run: fetch, analyze,
// aggregate, synthesize. A run tolerates per-paper failures and records
// them; only an unusable configuration or an unreachable source fails the
// run as a whole.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/papersynth/papersynth/internal/analyze"
	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/internal/fetch"
	"github.com/papersynth/papersynth/internal/synth"
	"github.com/papersynth/papersynth/internal/trend"
	"github.com/papersynth/papersynth/pkg/types"
)

// Pipeline executes research runs over a fixed configuration. Safe to
// hold long-lived; Run rejects overlapping executions.
type Pipeline struct {
	cfg    types.PipelineConfig
	source fetch.Source
	client analyze.Client
	store  *cache.Store
	log    zerolog.Logger

	running atomic.Bool

	// now is replaced in tests for deterministic timestamps.
	now func() time.Time
}

// New validates cfg and builds a pipeline over the given collaborators.
func New(cfg types.PipelineConfig, source fetch.Source, client analyze.Client, store *cache.Store, log zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Pipeline{
		cfg:    cfg,
		source: source,
		client: client,
		store:  store,
		log:    log,
		now:    time.Now,
	}, nil
}

// Running reports whether a run is currently executing. Read-only view
// for schedulers and status surfaces.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Run executes one pipeline pass and returns its result. The result is
// non-nil even on failure so callers can persist what happened. When
// cfg.RunTimeout is set, papers still unanalyzed at the deadline are
// recorded as run-timeout failures and the run proceeds with the rest.
func (p *Pipeline) Run(ctx context.Context) (*types.RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	runID := uuid.NewString()
	log := p.log.With().Str("run", runID).Logger()
	result := &types.RunResult{
		RunID:     runID,
		StartedAt: p.now().UTC(),
	}

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	log.Info().Str("state", string(types.StateFetching)).Msg("run started")
	papers, err := fetch.Fetch(ctx, p.source, p.store, p.cfg.Fetch, p.now(), log)
	if err != nil {
		// A run deadline expiring mid-fetch is a timeout, not an
		// unreachable source; the run carries on with what it has.
		if ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
			return p.fail(result, err, log), err
		}
		log.Warn().Err(err).Msg("discovery cut short by run deadline")
		result.Diagnostics = append(result.Diagnostics,
			fmt.Sprintf("discovery cut short by run deadline: %v", err))
	}
	result.Papers = papers

	log.Info().Str("state", string(types.StateAnalyzing)).
		Int("papers", len(papers)).Msg("analyzing papers")
	analyzed, err := analyze.Analyze(ctx, p.client, p.store, papers, p.cfg.Analysis, log)
	if err != nil {
		return p.fail(result, err, log), err
	}
	result.Analyses = analyzed.Analyses
	result.Failures = analyzed.Failures
	for _, f := range analyzed.Failures {
		result.Diagnostics = append(result.Diagnostics,
			fmt.Sprintf("analysis of %s failed: %s", f.PaperID, f.Detail))
	}

	log.Info().Str("state", string(types.StateAggregating)).Msg("aggregating trends")
	result.Trends = trend.Compute(result.Analyses)

	log.Info().Str("state", string(types.StateSynthesizing)).Msg("synthesizing report")
	report, err := synth.Synthesize(ctx, p.client, result.Trends, result.Analyses,
		result.Failures, p.cfg.Synthesis, runID, p.now(), log)
	if err != nil {
		if !errors.Is(err, synth.ErrDegraded) {
			return p.fail(result, err, log), err
		}
		result.Diagnostics = append(result.Diagnostics, err.Error())
	}
	result.Report = report

	result.State = types.StateComplete
	result.FinishedAt = p.now().UTC()
	log.Info().Str("state", string(types.StateComplete)).
		Int("analyses", len(result.Analyses)).
		Int("failures", len(result.Failures)).
		Msg("run complete")
	return result, nil
}

func (p *Pipeline) fail(result *types.RunResult, err error, log zerolog.Logger) *types.RunResult {
	result.State = types.StateFailed
	result.Error = err.Error()
	result.FinishedAt = p.now().UTC()
	log.Error().Err(err).Str("state", string(types.StateFailed)).Msg("run failed")
	return result
}
