// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synth turns a trend report and its analyses into a human-readable
// report. The section bodies are assembled locally; only the executive
// summary needs the LLM, and a failed summary degrades to a templated one
// rather than losing the report.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/papersynth/papersynth/internal/analyze"
	"github.com/papersynth/papersynth/pkg/types"
)

// ErrDegraded reports that the executive summary fell back to the
// templated form. The returned report is still complete and usable.
var ErrDegraded = errors.New("synthesis degraded: executive summary used fallback")

const (
	defaultTopKeywords = 10
	defaultTopFindings = 5

	// The summary is a nice-to-have on top of an already-assembled
	// report, so it gets a smaller retry budget than per-paper analysis.
	summaryMaxRetries = 2
)

// backoffBase controls the base duration for summary retry backoff.
// Tests override this to avoid real sleeps.
var backoffBase = time.Second

var summaryPromptTmpl = template.Must(template.New("summary").Parse(`You are a research trend analyst. Write an executive summary (two to three short paragraphs of plain prose, no headings or lists) of this week's research landscape based on the digest below.

Papers analyzed: {{.Count}}
Average analysis confidence: {{printf "%.2f" .AvgConfidence}}
Top keywords: {{.Keywords}}
Top methodologies: {{.Methodologies}}
Categories: {{.Categories}}

Notable findings:
{{range .Findings}}- {{.}}
{{end}}`))

// Synthesize assembles the run report. It always returns a usable report;
// the error is either nil or ErrDegraded (possibly wrapped) when the
// LLM-written executive summary had to be replaced with a templated one.
func Synthesize(ctx context.Context, client analyze.Client, trends *types.TrendReport, analyses []types.Analysis, failures []types.Failure, cfg types.SynthesisConfig, runID string, now time.Time, log zerolog.Logger) (*types.Report, error) {
	report := &types.Report{
		RunID:       runID,
		GeneratedAt: now.UTC(),
	}

	if trends.AnalysisCount == 0 {
		body := "Discovery returned no papers inside the recency window. " +
			"The topic may be quiet this week, or the window may be too narrow."
		if len(failures) > 0 {
			body = fmt.Sprintf("Discovery found papers but none of the %d analyses succeeded; "+
				"see the failure list below.", len(failures))
		}
		report.ExecutiveSummary = "No new papers were analyzed in this run."
		report.Sections = append(report.Sections, types.Section{
			Title:   "Coverage",
			Body:    body,
			DataRef: "coverage",
		})
		appendFailureSection(report, failures)
		return report, nil
	}

	topKeywords := cfg.TopKeywords
	if topKeywords <= 0 {
		topKeywords = defaultTopKeywords
	}
	topFindings := cfg.TopFindings
	if topFindings <= 0 {
		topFindings = defaultTopFindings
	}
	findings := notableFindings(analyses, topFindings)

	report.Sections = append(report.Sections,
		types.Section{
			Title:   "Top Keywords",
			Body:    countList(trends.Keywords, topKeywords),
			DataRef: "keywords",
		},
		types.Section{
			Title:   "Methodology Trends",
			Body:    countList(trends.Methodologies, topKeywords),
			DataRef: "methodologies",
		},
		types.Section{
			Title:   "Research Categories",
			Body:    countList(trends.Categories, topKeywords),
			DataRef: "categories",
		},
		types.Section{
			Title:   "Publication Volume",
			Body:    countList(trends.Weekly, len(trends.Weekly)),
			DataRef: "weekly",
		},
		types.Section{
			Title:   "Notable Findings",
			Body:    bulletList(findings),
			DataRef: "findings",
		},
	)
	appendFailureSection(report, failures)

	summary, err := executiveSummary(ctx, client, trends, findings, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("executive summary generation failed, using fallback")
		report.ExecutiveSummary = fallbackSummary(trends)
		return report, fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	report.ExecutiveSummary = summary
	return report, nil
}

// executiveSummary asks the LLM for the summary prose, retrying transient
// failures with exponential backoff.
func executiveSummary(ctx context.Context, client analyze.Client, trends *types.TrendReport, findings []string, cfg types.SynthesisConfig, log zerolog.Logger) (string, error) {
	prompt, err := renderSummaryPrompt(trends, findings)
	if err != nil {
		return "", fmt.Errorf("rendering summary prompt: %w", err)
	}

	params := analyze.Params{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 1024
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= summaryMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		text, err := client.Complete(reqCtx, prompt, params)
		cancel()
		if err != nil {
			var apiErr *analyze.APIError
			if errors.As(err, &apiErr) && !apiErr.Transient() {
				return "", err
			}
			log.Warn().Err(err).Int("attempt", attempt+1).
				Msg("summary attempt failed, will retry")
			lastErr = err
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = fmt.Errorf("empty summary response")
			continue
		}
		return text, nil
	}
	return "", fmt.Errorf("after %d retries: %w", summaryMaxRetries, lastErr)
}

func renderSummaryPrompt(trends *types.TrendReport, findings []string) (string, error) {
	var buf bytes.Buffer
	err := summaryPromptTmpl.Execute(&buf, struct {
		Count         int
		AvgConfidence float64
		Keywords      string
		Methodologies string
		Categories    string
		Findings      []string
	}{
		Count:         trends.AnalysisCount,
		AvgConfidence: trends.AvgConfidence,
		Keywords:      keyList(trends.Keywords, 10),
		Methodologies: keyList(trends.Methodologies, 10),
		Categories:    keyList(trends.Categories, 10),
		Findings:      findings,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackSummary builds a serviceable summary from the counts alone.
func fallbackSummary(trends *types.TrendReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This run analyzed %d papers", trends.AnalysisCount)
	if cat := trends.DominantCategory(); cat != "" {
		fmt.Fprintf(&b, ", concentrated in %s", cat)
	}
	b.WriteString(".")
	if kws := trends.TopKeywords(5); len(kws) > 0 {
		keys := make([]string, len(kws))
		for i, kw := range kws {
			keys[i] = kw.Key
		}
		fmt.Fprintf(&b, " Recurring topics: %s.", strings.Join(keys, ", "))
	}
	return b.String()
}

// notableFindings returns the first key finding of the n highest-confidence
// analyses, ties broken by paper ID for determinism.
func notableFindings(analyses []types.Analysis, n int) []string {
	sorted := make([]types.Analysis, len(analyses))
	copy(sorted, analyses)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].PaperID < sorted[j].PaperID
	})

	var findings []string
	for _, a := range sorted {
		if len(findings) >= n {
			break
		}
		if len(a.KeyFindings) == 0 {
			continue
		}
		findings = append(findings, fmt.Sprintf("%s (%s)", a.KeyFindings[0], a.PaperID))
	}
	return findings
}

func appendFailureSection(report *types.Report, failures []types.Failure) {
	if len(failures) == 0 {
		return
	}
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = fmt.Sprintf("%s: %s (%s)", f.PaperID, f.Detail, f.Reason)
	}
	report.Sections = append(report.Sections, types.Section{
		Title:   "Analysis Failures",
		Body:    bulletList(lines),
		DataRef: "failures",
	})
}

func countList(counts []types.TrendCount, n int) string {
	if len(counts) == 0 {
		return "None recorded."
	}
	if len(counts) > n {
		counts = counts[:n]
	}
	var b strings.Builder
	for i, c := range counts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %d", c.Key, c.Count)
	}
	return b.String()
}

func keyList(counts []types.TrendCount, n int) string {
	if len(counts) > n {
		counts = counts[:n]
	}
	keys := make([]string, len(counts))
	for i, c := range counts {
		keys[i] = c.Key
	}
	return strings.Join(keys, ", ")
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "None recorded."
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + item)
	}
	return b.String()
}
