// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papersynth/papersynth/internal/analyze"
	"github.com/papersynth/papersynth/internal/trend"
	"github.com/papersynth/papersynth/pkg/types"
)

func init() {
	backoffBase = 1 * time.Millisecond
}

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

type mockClient struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, prompt string) (string, error)
}

func (m *mockClient) Complete(_ context.Context, prompt string, _ analyze.Params) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	return m.fn(n, prompt)
}

func sampleAnalyses() []types.Analysis {
	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return []types.Analysis{
		{
			PaperID:         "arxiv:a",
			Keywords:        []string{"llm", "agents"},
			MethodologyTags: []string{"reinforcement-learning"},
			KeyFindings:     []string{"Agents outperform baselines."},
			Category:        "NLP",
			Confidence:      0.9,
			Published:       published,
		},
		{
			PaperID:         "arxiv:b",
			Keywords:        []string{"llm"},
			MethodologyTags: []string{"fine-tuning"},
			KeyFindings:     []string{"Fine-tuning closes the gap."},
			Category:        "NLP",
			Confidence:      0.7,
			Published:       published,
		},
	}
}

func TestSynthesizeBuildsReport(t *testing.T) {
	analyses := sampleAnalyses()
	trends := trend.Compute(analyses)
	client := &mockClient{fn: func(_ int, prompt string) (string, error) {
		// The digest reaches the model.
		assert.Contains(t, prompt, "llm")
		return "A strong week for agent research.", nil
	}}

	report, err := Synthesize(context.Background(), client, trends, analyses,
		nil, types.SynthesisConfig{}, "run-1", testNow, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "A strong week for agent research.", report.ExecutiveSummary)

	titles := sectionTitles(report)
	assert.Contains(t, titles, "Top Keywords")
	assert.Contains(t, titles, "Methodology Trends")
	assert.Contains(t, titles, "Research Categories")
	assert.Contains(t, titles, "Publication Volume")
	assert.Contains(t, titles, "Notable Findings")
	assert.NotContains(t, titles, "Analysis Failures")

	// Highest-confidence finding leads.
	findings := sectionBody(report, "Notable Findings")
	assert.True(t, strings.Index(findings, "Agents outperform") <
		strings.Index(findings, "Fine-tuning closes"))
}

func TestSynthesizeEmptyBatchFallbackSection(t *testing.T) {
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		t.Fatal("LLM should not be called for an empty batch")
		return "", nil
	}}

	report, err := Synthesize(context.Background(), client, trend.Compute(nil),
		nil, nil, types.SynthesisConfig{}, "run-2", testNow, zerolog.Nop())
	require.NoError(t, err)

	assert.Contains(t, report.ExecutiveSummary, "No new papers")
	assert.Contains(t, sectionTitles(report), "Coverage")
}

func TestSynthesizeDegradedOnPermanentError(t *testing.T) {
	analyses := sampleAnalyses()
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "", &analyze.APIError{Status: 401, Body: "invalid api key"}
	}}

	report, err := Synthesize(context.Background(), client, trend.Compute(analyses),
		analyses, nil, types.SynthesisConfig{}, "run-3", testNow, zerolog.Nop())
	require.ErrorIs(t, err, ErrDegraded)

	// The report is still complete with a templated summary.
	require.NotNil(t, report)
	assert.Contains(t, report.ExecutiveSummary, "2 papers")
	assert.NotEmpty(t, report.Sections)
	assert.Equal(t, 1, client.calls)
}

func TestSynthesizeRetriesTransientSummaryFailure(t *testing.T) {
	analyses := sampleAnalyses()
	client := &mockClient{fn: func(call int, _ string) (string, error) {
		if call == 1 {
			return "", &analyze.APIError{Status: 503, Body: "overloaded"}
		}
		return "Recovered summary.", nil
	}}

	report, err := Synthesize(context.Background(), client, trend.Compute(analyses),
		analyses, nil, types.SynthesisConfig{}, "run-4", testNow, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Recovered summary.", report.ExecutiveSummary)
	assert.Equal(t, 2, client.calls)
}

func TestSynthesizeIncludesFailureSection(t *testing.T) {
	analyses := sampleAnalyses()
	failures := []types.Failure{
		{PaperID: "arxiv:x", Reason: types.ReasonAnalysisPermanent, Detail: "content policy"},
	}
	client := &mockClient{fn: func(_ int, _ string) (string, error) {
		return "Summary.", nil
	}}

	report, err := Synthesize(context.Background(), client, trend.Compute(analyses),
		analyses, failures, types.SynthesisConfig{}, "run-5", testNow, zerolog.Nop())
	require.NoError(t, err)

	body := sectionBody(report, "Analysis Failures")
	assert.Contains(t, body, "arxiv:x")
	assert.Contains(t, body, "content policy")
}

func TestFallbackSummary(t *testing.T) {
	trends := trend.Compute(sampleAnalyses())
	s := fallbackSummary(trends)
	assert.Contains(t, s, "2 papers")
	assert.Contains(t, s, "NLP")
	assert.Contains(t, s, "llm")
}

func sectionTitles(r *types.Report) []string {
	var titles []string
	for _, s := range r.Sections {
		titles = append(titles, s.Title)
	}
	return titles
}

func sectionBody(r *types.Report, title string) string {
	for _, s := range r.Sections {
		if s.Title == title {
			return s.Body
		}
	}
	return ""
}
