// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/pkg/types"
)

func init() {
	// Use a tiny backoff so retry tests finish quickly.
	backoffBase = 1 * time.Millisecond
}

const validResponse = `{
	"methodology": "contrastive pretraining",
	"methodology_tags": ["contrastive-learning"],
	"key_findings": ["Pretraining improves downstream accuracy."],
	"keywords": ["pretraining", "representation learning"],
	"category": "NLP",
	"confidence": 0.9
}`

// mockClient routes completions through a scripted function. The prompt
// contains the paper title, so scripts can branch per paper.
type mockClient struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, prompt string) (string, error)
}

func (m *mockClient) Complete(_ context.Context, prompt string, _ Params) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	return m.fn(n, prompt)
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func paper(id string) types.Paper {
	return types.Paper{
		ID:        "arxiv:" + id,
		Title:     "Paper " + id,
		Abstract:  "Abstract for " + id,
		Published: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func testConfig() types.AnalysisConfig {
	return types.AnalysisConfig{
		AIConfig: types.AIConfig{
			Model:          "test-model",
			MaxRetries:     2,
			RequestTimeout: time.Second,
		},
		PromptVersion:     "v1",
		Concurrency:       2,
		RequestsPerMinute: 60000,
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	store := openTestStore(t)
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return validResponse, nil
	}}

	result, err := Analyze(context.Background(), client, store,
		[]types.Paper{paper("a"), paper("b")}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Analyses, 2)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "arxiv:a", result.Analyses[0].PaperID)
	assert.Equal(t, "arxiv:b", result.Analyses[1].PaperID)
	assert.Equal(t, "contrastive pretraining", result.Analyses[0].Methodology)
	assert.Equal(t, "v1", result.Analyses[0].PromptVersion)
	// The paper's publication date rides along for trend bucketing.
	assert.Equal(t, paper("a").Published, result.Analyses[0].Published)

	// Results are cached.
	cached, err := store.GetAnalysis(context.Background(), "arxiv:a", "v1")
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestAnalyzeCacheHitSkipsClient(t *testing.T) {
	store := openTestStore(t)
	p := paper("a")

	existing := types.Analysis{
		PaperID:       p.ID,
		PromptVersion: "v1",
		Methodology:   "cached methodology",
		Keywords:      []string{"cached"},
		Confidence:    0.8,
	}
	require.NoError(t, store.PutAnalysis(context.Background(), existing))

	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "", fmt.Errorf("should not be called")
	}}

	result, err := Analyze(context.Background(), client, store,
		[]types.Paper{p}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Analyses, 1)
	assert.Equal(t, "cached methodology", result.Analyses[0].Methodology)
	assert.Equal(t, 0, client.callCount())
}

func TestAnalyzeCacheMissOnNewPromptVersion(t *testing.T) {
	store := openTestStore(t)
	p := paper("a")

	require.NoError(t, store.PutAnalysis(context.Background(), types.Analysis{
		PaperID:       p.ID,
		PromptVersion: "v1",
		Methodology:   "old",
		Keywords:      []string{"old"},
		Confidence:    0.5,
	}))

	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return validResponse, nil
	}}

	cfg := testConfig()
	cfg.PromptVersion = "v2"
	result, err := Analyze(context.Background(), client, store,
		[]types.Paper{p}, cfg, zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Analyses, 1)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, "contrastive pretraining", result.Analyses[0].Methodology)
}

func TestAnalyzeRetriesTransientThenSucceeds(t *testing.T) {
	client := &mockClient{fn: func(call int, _ string) (string, error) {
		if call <= 2 {
			return "", &APIError{Status: 429, Body: "rate limited"}
		}
		return validResponse, nil
	}}

	result, err := Analyze(context.Background(), client, openTestStore(t),
		[]types.Paper{paper("a")}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Analyses, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, client.callCount())
}

func TestAnalyzePermanentFailureNotRetried(t *testing.T) {
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "", &APIError{Status: 401, Body: "invalid api key"}
	}}

	result, err := Analyze(context.Background(), client, openTestStore(t),
		[]types.Paper{paper("a")}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.Empty(t, result.Analyses)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, types.ReasonAnalysisPermanent, result.Failures[0].Reason)
	assert.Equal(t, 1, client.callCount())
}

func TestAnalyzeMalformedResponseExhaustsRetries(t *testing.T) {
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "I cannot produce JSON today.", nil
	}}

	cfg := testConfig()
	result, err := Analyze(context.Background(), client, openTestStore(t),
		[]types.Paper{paper("a")}, cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Empty(t, result.Analyses)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, types.ReasonAnalysisPermanent, result.Failures[0].Reason)
	// 1 initial + MaxRetries attempts.
	assert.Equal(t, cfg.MaxRetries+1, client.callCount())
}

func TestAnalyzePartialFailure(t *testing.T) {
	store := openTestStore(t)
	client := &mockClient{fn: func(_ int, prompt string) (string, error) {
		if strings.Contains(prompt, "Paper bad") {
			return "", &APIError{Status: 403, Body: "content policy"}
		}
		return validResponse, nil
	}}

	result, err := Analyze(context.Background(), client, store,
		[]types.Paper{paper("a"), paper("bad"), paper("c")},
		testConfig(), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Analyses, 2)
	assert.Equal(t, "arxiv:a", result.Analyses[0].PaperID)
	assert.Equal(t, "arxiv:c", result.Analyses[1].PaperID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "arxiv:bad", result.Failures[0].PaperID)
	assert.Equal(t, types.ReasonAnalysisPermanent, result.Failures[0].Reason)

	// Successful analyses were cached despite the failure.
	cached, err := store.GetAnalysis(context.Background(), "arxiv:a", "v1")
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

func TestAnalyzeExpiredContextMarksRunTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return validResponse, nil
	}}

	result, err := Analyze(ctx, client, openTestStore(t),
		[]types.Paper{paper("a"), paper("b")}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.Empty(t, result.Analyses)
	require.Len(t, result.Failures, 2)
	for _, f := range result.Failures {
		assert.Equal(t, types.ReasonRunTimeout, f.Reason)
	}
}

func TestAnalyzeDeadlineDuringCacheWriteMarksRunTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// The response is valid but arrives after the run deadline, so the
	// cache write is refused with the context error.
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		<-ctx.Done()
		return validResponse, nil
	}}

	result, err := Analyze(ctx, client, openTestStore(t),
		[]types.Paper{paper("a")}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.Empty(t, result.Analyses)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "arxiv:a", result.Failures[0].PaperID)
	assert.Equal(t, types.ReasonRunTimeout, result.Failures[0].Reason)
}

func TestAnalyzeBackoffDelaysGrow(t *testing.T) {
	old := backoffBase
	backoffBase = 20 * time.Millisecond
	defer func() { backoffBase = old }()

	var mu sync.Mutex
	var stamps []time.Time
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return "not json", nil
	}}

	cfg := testConfig()
	cfg.MaxRetries = 3
	result, err := Analyze(context.Background(), client, openTestStore(t),
		[]types.Paper{paper("a")}, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	require.Len(t, stamps, cfg.MaxRetries+1)

	// Each retry waits at least the doubling base delay, so the floor of
	// the gap sequence never shrinks between attempts.
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		floor := time.Duration(math.Pow(2, float64(i-1))) * backoffBase
		assert.GreaterOrEqual(t, gap, floor, "attempt %d", i+1)
	}
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "", fmt.Errorf("should not be called")
	}}

	result, err := Analyze(context.Background(), client, openTestStore(t),
		nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, result.Analyses)
	assert.Empty(t, result.Failures)
}
