// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package trend aggregates a batch of analyses into frequency counts.
// Computation is pure: same analyses in, same report out, regardless of
// input order.
package trend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/papersynth/papersynth/pkg/types"
)

// Compute counts keyword, methodology tag, category, and weekly
// publication frequencies across the batch. Counts are ordered by count
// descending, then key ascending, so the output is deterministic.
func Compute(analyses []types.Analysis) *types.TrendReport {
	keywords := make(map[string]int)
	methodologies := make(map[string]int)
	categories := make(map[string]int)
	weekly := make(map[string]int)

	var confidenceSum float64
	for _, a := range analyses {
		for _, kw := range a.Keywords {
			keywords[kw]++
		}
		for _, tag := range a.MethodologyTags {
			methodologies[tag]++
		}
		if cat := strings.TrimSpace(a.Category); cat != "" {
			categories[cat]++
		}
		if !a.Published.IsZero() {
			weekly[isoWeek(a.Published)]++
		}
		confidenceSum += a.Confidence
	}

	report := &types.TrendReport{
		Keywords:      sortedCounts(keywords),
		Methodologies: sortedCounts(methodologies),
		Categories:    sortedCounts(categories),
		Weekly:        sortedWeeks(weekly),
		AnalysisCount: len(analyses),
	}
	if len(analyses) > 0 {
		report.AvgConfidence = confidenceSum / float64(len(analyses))
	}
	return report
}

// isoWeek formats a timestamp as its ISO week bucket, e.g. "2026-W34".
func isoWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// sortedCounts flattens a frequency map ordered by count descending,
// ties broken by key ascending.
func sortedCounts(m map[string]int) []types.TrendCount {
	out := make([]types.TrendCount, 0, len(m))
	for k, c := range m {
		out = append(out, types.TrendCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// sortedWeeks flattens week buckets in chronological order. The
// "YYYY-Www" format sorts lexically.
func sortedWeeks(m map[string]int) []types.TrendCount {
	out := make([]types.TrendCount, 0, len(m))
	for k, c := range m {
		out = append(out, types.TrendCount{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
