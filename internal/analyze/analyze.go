// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze runs per-paper LLM analysis under a shared rate limit.
// Each paper is independent: a failure is recorded and the batch carries
// on, so one bad paper never costs the run. Results are cached by
// (paper, prompt version), making reruns free.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/pkg/types"
)

// Params are the completion settings passed to a Client call.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client produces an LLM completion for a prompt. Implementations follow
// the Strategy pattern so tests can supply a mock.
type Client interface {
	Complete(ctx context.Context, prompt string, p Params) (string, error)
}

// Result holds the outcome of an analysis batch. Analyses and Failures
// partition the input papers; both are ordered by paper ID.
type Result struct {
	Analyses []types.Analysis
	Failures []types.Failure
}

const (
	defaultConcurrency    = 4
	defaultRPM            = 15
	defaultMaxTokens      = 2048
	defaultMaxRetries     = 3
	defaultRequestTimeout = 60 * time.Second
)

// backoffBase controls the base duration for exponential backoff between
// retry attempts. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Analyze runs LLM analysis for each paper, bounded by cfg.Concurrency
// in-flight requests and a shared token bucket sized to
// cfg.RequestsPerMinute. Cached analyses under cfg.PromptVersion are
// reused without an API call; fresh ones are cached before return.
//
// Analyze only returns an error for cache write failures on a live
// context. LLM failures become Failure entries: transient ones (quota,
// server errors, timeouts, malformed responses) are retried with backoff
// first, permanent ones (authentication, request rejection) are not. When
// ctx expires, papers not yet finished and cached are recorded as
// run-timeout failures.
func Analyze(ctx context.Context, client Client, store *cache.Store, papers []types.Paper, cfg types.AnalysisConfig, log zerolog.Logger) (Result, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	limiter := rate.NewLimiter(rate.Limit(rpm/60.0), 1)

	type outcome struct {
		analysis *types.Analysis
		failure  *types.Failure
		cacheErr error
	}

	sem := make(chan struct{}, concurrency)
	outcomes := make([]outcome, len(papers))
	var wg sync.WaitGroup

	for i, p := range papers {
		wg.Add(1)
		go func(i int, p types.Paper) {
			defer wg.Done()

			cached, err := store.GetAnalysis(ctx, p.ID, cfg.PromptVersion)
			if err != nil {
				log.Warn().Err(err).Str("paper", p.ID).Msg("analysis cache read failed")
			}
			if cached != nil {
				log.Debug().Str("paper", p.ID).Msg("analysis cache hit")
				outcomes[i] = outcome{analysis: cached}
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			analysis, failure := analyzeOne(ctx, client, limiter, p, cfg, log)
			if failure != nil {
				outcomes[i] = outcome{failure: failure}
				return
			}
			if err := store.PutAnalysis(ctx, *analysis); err != nil {
				// A cache write refused because the run deadline expired is
				// a timeout on this paper, not a storage fault.
				if ctx.Err() != nil {
					outcomes[i] = outcome{failure: timeoutFailure(p.ID, err)}
					return
				}
				outcomes[i] = outcome{cacheErr: fmt.Errorf("caching analysis for %s: %w", p.ID, err)}
				return
			}
			outcomes[i] = outcome{analysis: analysis}
		}(i, p)
	}
	wg.Wait()

	var result Result
	for _, o := range outcomes {
		switch {
		case o.cacheErr != nil:
			return Result{}, o.cacheErr
		case o.analysis != nil:
			result.Analyses = append(result.Analyses, *o.analysis)
		case o.failure != nil:
			result.Failures = append(result.Failures, *o.failure)
		}
	}

	sort.Slice(result.Analyses, func(i, j int) bool {
		return result.Analyses[i].PaperID < result.Analyses[j].PaperID
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].PaperID < result.Failures[j].PaperID
	})

	log.Info().Int("analyzed", len(result.Analyses)).
		Int("failed", len(result.Failures)).Msg("analysis complete")
	return result, nil
}

// analyzeOne analyzes a single paper with retry. Exactly one of the
// returned values is non-nil.
func analyzeOne(ctx context.Context, client Client, limiter *rate.Limiter, p types.Paper, cfg types.AnalysisConfig, log zerolog.Logger) (*types.Analysis, *types.Failure) {
	prompt, err := renderPrompt(p)
	if err != nil {
		return nil, &types.Failure{
			PaperID: p.ID,
			Reason:  types.ReasonAnalysisPermanent,
			Detail:  fmt.Sprintf("rendering prompt: %v", err),
		}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	params := Params{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultMaxTokens
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			backoff += time.Duration(rand.Int63n(int64(backoffBase)))
			select {
			case <-ctx.Done():
				return nil, timeoutFailure(p.ID, lastErr)
			case <-time.After(backoff):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, timeoutFailure(p.ID, lastErr)
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		text, err := client.Complete(reqCtx, prompt, params)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, timeoutFailure(p.ID, err)
			}
			if !transient(err) {
				return nil, &types.Failure{
					PaperID: p.ID,
					Reason:  types.ReasonAnalysisPermanent,
					Detail:  err.Error(),
				}
			}
			log.Warn().Err(err).Str("paper", p.ID).Int("attempt", attempt+1).
				Msg("analysis attempt failed, will retry")
			lastErr = err
			continue
		}

		resp, err := parseResponse(text)
		if err == nil {
			err = validateResponse(resp)
		}
		if err != nil {
			// A malformed response is retried: the model may produce
			// valid JSON on another attempt.
			log.Warn().Err(err).Str("paper", p.ID).Int("attempt", attempt+1).
				Msg("unusable analysis response, will retry")
			lastErr = err
			continue
		}

		return &types.Analysis{
			PaperID:         p.ID,
			PromptVersion:   cfg.PromptVersion,
			Model:           cfg.Model,
			Methodology:     resp.Methodology,
			MethodologyTags: resp.MethodologyTags,
			KeyFindings:     resp.KeyFindings,
			Keywords:        resp.Keywords,
			Category:        resp.Category,
			Confidence:      resp.Confidence,
			Published:       p.Published,
			CreatedAt:       time.Now().UTC(),
		}, nil
	}

	return nil, &types.Failure{
		PaperID: p.ID,
		Reason:  types.ReasonAnalysisPermanent,
		Detail:  fmt.Sprintf("after %d retries: %v", maxRetries, lastErr),
	}
}

// transient reports whether an LLM call error is worth retrying. API
// errors carry their own classification; timeouts, network failures, and
// everything else default to retryable.
func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}

func timeoutFailure(paperID string, lastErr error) *types.Failure {
	detail := "run deadline expired before analysis finished"
	if lastErr != nil {
		detail = fmt.Sprintf("%s (last error: %v)", detail, lastErr)
	}
	return &types.Failure{
		PaperID: paperID,
		Reason:  types.ReasonRunTimeout,
		Detail:  detail,
	}
}
