// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunState is the orchestrator state for one pipeline execution.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateFetching     RunState = "fetching"
	StateAnalyzing    RunState = "analyzing"
	StateAggregating  RunState = "aggregating"
	StateSynthesizing RunState = "synthesizing"
	StateComplete     RunState = "complete"
	StateFailed       RunState = "failed"
)

// FailureReason classifies a per-paper failure recorded in a RunResult.
type FailureReason string

const (
	// ReasonAnalysisPermanent marks an analysis that failed for good:
	// auth or policy rejection, exhausted retries, or an unparseable
	// response after the retry bound.
	ReasonAnalysisPermanent FailureReason = "analysis-permanent"

	// ReasonRunTimeout marks a paper whose analysis never completed
	// because the run-level deadline expired.
	ReasonRunTimeout FailureReason = "run-timeout"
)

// Failure records one paper that could not be analyzed.
type Failure struct {
	PaperID string        `json:"paper_id" yaml:"paper_id"`
	Reason  FailureReason `json:"reason" yaml:"reason"`
	Detail  string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Section is one titled block of the synthesized report.
type Section struct {
	// Title is the section heading.
	Title string `json:"title" yaml:"title"`

	// Body is the section prose or bullet text.
	Body string `json:"body" yaml:"body"`

	// DataRef names the supporting statistic the section derives from
	// (e.g. "trends.keywords"), empty when the section is pure prose.
	DataRef string `json:"data_ref,omitempty" yaml:"data_ref,omitempty"`
}

// Report is the final synthesized document for a run. Immutable once
// produced; serialization to files is the caller's concern.
type Report struct {
	// RunID ties the report to the run that produced it.
	RunID string `json:"run_id" yaml:"run_id"`

	// GeneratedAt is the synthesis timestamp.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// ExecutiveSummary is the run's summary prose. When the summary LLM
	// call fails, this holds templated fallback text instead.
	ExecutiveSummary string `json:"executive_summary" yaml:"executive_summary"`

	// Sections are the report's ordered content blocks.
	Sections []Section `json:"sections" yaml:"sections"`
}

// RunResult is the complete record of one pipeline execution, including
// partial failures. Finalized once at run end and never mutated after.
type RunResult struct {
	// RunID uniquely identifies the execution.
	RunID string `json:"run_id" yaml:"run_id"`

	// State is the terminal state: complete or failed.
	State RunState `json:"state" yaml:"state"`

	// Error holds the fatal reason when State is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Papers lists every paper the run considered.
	Papers []Paper `json:"papers" yaml:"papers"`

	// Analyses lists the successful analyses, cached and new.
	Analyses []Analysis `json:"analyses" yaml:"analyses"`

	// Failures lists papers that could not be analyzed.
	Failures []Failure `json:"failures" yaml:"failures"`

	// Trends is the aggregate view over Analyses.
	Trends *TrendReport `json:"trends,omitempty" yaml:"trends,omitempty"`

	// Report is the synthesized document.
	Report *Report `json:"report,omitempty" yaml:"report,omitempty"`

	// Diagnostics records non-fatal anomalies surfaced to the caller
	// (data-quality skips, degraded synthesis).
	Diagnostics []string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}
