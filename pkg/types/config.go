package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "papersynth/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds settings for the discovery stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Query is the free-text topic filter (e.g. "large language models").
	Query string `json:"query" yaml:"query"`

	// Categories restricts discovery to these source categories
	// (e.g. "cs.AI", "cs.LG"). Empty means no category restriction.
	Categories []string `json:"categories" yaml:"categories"`

	// MaxResults caps the number of papers per run (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Window is the recency window: papers older than now-Window are
	// dropped. Zero disables the window.
	Window time.Duration `json:"window" yaml:"window"`

	// FetchExcerpts controls whether a full-text excerpt is fetched for
	// each paper not already cached.
	FetchExcerpts bool `json:"fetch_excerpts" yaml:"fetch_excerpts"`
}

// AIConfig holds shared settings for stages that call the LLM API.
type AIConfig struct {
	// Model is the LLM model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the LLM API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxTokens bounds the completion length (default 2048).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxRetries bounds retry attempts for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestTimeout is the per-request deadline (default 60s). Exceeding
	// it counts as a transient failure, not a stage abort.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// AnalysisConfig holds settings for the per-paper analysis stage.
type AnalysisConfig struct {
	AIConfig `yaml:",inline"`

	// PromptVersion identifies the analysis prompt; it is part of the
	// cache key, so bumping it re-analyzes every paper.
	PromptVersion string `json:"prompt_version" yaml:"prompt_version"`

	// Concurrency caps in-flight LLM requests (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// RequestsPerMinute sizes the token bucket to the provider quota
	// (default 15). Requests over quota wait rather than fail.
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute"`
}

// SynthesisConfig holds settings for the report synthesis stage.
type SynthesisConfig struct {
	AIConfig `yaml:",inline"`

	// TopKeywords is how many keywords the report sections show (default 10).
	TopKeywords int `json:"top_keywords" yaml:"top_keywords"`

	// TopFindings is how many high-confidence findings the report quotes
	// (default 5).
	TopFindings int `json:"top_findings" yaml:"top_findings"`
}

// CacheConfig holds settings for the paper/analysis cache.
type CacheConfig struct {
	// Path is the SQLite database file (default "data/papersynth.db").
	Path string `json:"path" yaml:"path"`
}

// PipelineConfig groups all stage configurations for one run. It is an
// explicit value threaded into the orchestrator at construction, so
// repeated runs with different settings are safe.
type PipelineConfig struct {
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch"`
	Analysis  AnalysisConfig  `json:"analysis" yaml:"analysis"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`

	// RunTimeout bounds the whole run. When it expires the orchestrator
	// stops launching analyses and proceeds with what completed. Zero
	// disables the deadline.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`

	// OutputDir receives the serialized reports.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Validate rejects configurations that cannot produce a meaningful run.
// It is called before any stage executes; a validation error is fatal.
func (c PipelineConfig) Validate() error {
	if c.Fetch.Query == "" && len(c.Fetch.Categories) == 0 {
		return fmt.Errorf("fetch: query and categories both empty")
	}
	if c.Fetch.MaxResults < 0 {
		return fmt.Errorf("fetch: max_results must not be negative")
	}
	if c.Analysis.Model == "" {
		return fmt.Errorf("analysis: model is required")
	}
	if c.Analysis.PromptVersion == "" {
		return fmt.Errorf("analysis: prompt_version is required")
	}
	if c.Analysis.Concurrency < 0 {
		return fmt.Errorf("analysis: concurrency must not be negative")
	}
	if c.Analysis.RequestsPerMinute < 0 {
		return fmt.Errorf("analysis: requests_per_minute must not be negative")
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 1 {
		return fmt.Errorf("analysis: temperature %f out of range [0,1]", c.Analysis.Temperature)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must not be negative")
	}
	return nil
}
