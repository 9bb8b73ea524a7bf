// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Analysis is the structured result of analyzing one Paper with the LLM.
// It references the paper by ID rather than embedding it, and is cached
// keyed by (PaperID, PromptVersion) so a prompt or model change invalidates
// stale analyses without discarding them.
type Analysis struct {
	// PaperID references the analyzed Paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// PromptVersion identifies the exact analysis instructions used.
	PromptVersion string `json:"prompt_version" yaml:"prompt_version"`

	// Model is the LLM model identifier that produced the analysis.
	Model string `json:"model" yaml:"model"`

	// Methodology is the primary methodology the paper uses.
	Methodology string `json:"methodology" yaml:"methodology"`

	// MethodologyTags are additional methodology labels in model order.
	MethodologyTags []string `json:"methodology_tags,omitempty" yaml:"methodology_tags,omitempty"`

	// KeyFindings are the paper's main findings, one sentence each.
	KeyFindings []string `json:"key_findings" yaml:"key_findings"`

	// Keywords are lowercased, deduplicated technical keywords.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Category is the model's topical classification (e.g. "NLP", "CV").
	Category string `json:"category" yaml:"category"`

	// Confidence is the model's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Published carries the analyzed paper's publication date so that
	// trend aggregation can bucket by time without a paper lookup.
	Published time.Time `json:"published" yaml:"published"`

	// CreatedAt records when the analysis was produced.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Validate reports whether the analysis satisfies the record invariants:
// confidence in range and a non-empty keyword list.
func (a Analysis) Validate() error {
	if a.PaperID == "" {
		return fmt.Errorf("analysis has empty paper ID")
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("confidence %f out of range [0,1]", a.Confidence)
	}
	if len(a.Keywords) == 0 {
		return fmt.Errorf("analysis has no keywords")
	}
	if a.Methodology == "" {
		return fmt.Errorf("analysis has no methodology")
	}
	return nil
}
