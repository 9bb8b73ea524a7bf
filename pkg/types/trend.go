// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TrendCount is one entry of a frequency mapping, ordered for presentation.
type TrendCount struct {
	Key   string `json:"key" yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

// TrendReport holds aggregate statistics over one batch of Analyses.
// Each mapping is sorted by count descending, ties broken by key ascending.
// It is a derived view recomputed on every run, never authoritative state.
type TrendReport struct {
	// Keywords maps each keyword to the number of analyses mentioning it.
	Keywords []TrendCount `json:"keywords" yaml:"keywords"`

	// Methodologies maps each methodology tag to the number of analyses
	// carrying it.
	Methodologies []TrendCount `json:"methodologies" yaml:"methodologies"`

	// Categories maps each topical category to its analysis count.
	Categories []TrendCount `json:"categories" yaml:"categories"`

	// Weekly maps ISO week buckets (e.g. "2026-W34") to paper counts.
	Weekly []TrendCount `json:"weekly" yaml:"weekly"`

	// AnalysisCount is the number of analyses aggregated.
	AnalysisCount int `json:"analysis_count" yaml:"analysis_count"`

	// AvgConfidence is the mean confidence across the batch, 0 when empty.
	AvgConfidence float64 `json:"avg_confidence" yaml:"avg_confidence"`
}

// TopKeywords returns the first n keyword entries, or all of them when
// fewer exist.
func (t TrendReport) TopKeywords(n int) []TrendCount {
	if n <= 0 || n > len(t.Keywords) {
		n = len(t.Keywords)
	}
	return t.Keywords[:n]
}

// DominantCategory returns the most frequent category, or "" when the
// report is empty.
func (t TrendReport) DominantCategory() string {
	if len(t.Categories) == 0 {
		return ""
	}
	return t.Categories[0].Key
}
