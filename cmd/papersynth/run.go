// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papersynth/papersynth/internal/analyze"
	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/internal/fetch"
	"github.com/papersynth/papersynth/internal/pipeline"
	"github.com/papersynth/papersynth/internal/schedule"
	"github.com/papersynth/papersynth/internal/synth"
	"github.com/papersynth/papersynth/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the research pipeline",
	Long: `Run discovers papers on the configured topic, analyzes each with the
LLM, aggregates trends, and writes a JSON result and Markdown report to
the output directory.

Without --every the pipeline runs once and exits. With --every it runs
immediately and then repeats on that interval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()
		if key := anthropicKey(); key != "" {
			cfg.Analysis.APIKey = key
			cfg.Synthesis.APIKey = key
		}

		store, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		httpTimeout := cfg.Fetch.Timeout
		if httpTimeout <= 0 {
			httpTimeout = 30 * time.Second
		}
		source := &fetch.ArxivSource{
			Client:    &http.Client{Timeout: httpTimeout},
			UserAgent: cfg.Fetch.UserAgent,
		}
		client := &analyze.AnthropicClient{APIKey: cfg.Analysis.APIKey}

		p, err := pipeline.New(cfg, source, client, store, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		every := viper.GetDuration("every")
		if every <= 0 {
			return executeOnce(ctx, p, cfg.OutputDir)
		}

		runner := &schedule.Runner{Interval: every, Log: logger}
		return runner.Run(ctx, func(ctx context.Context) error {
			return executeOnce(ctx, p, cfg.OutputDir)
		})
	},
}

// executeOnce runs the pipeline once and persists whatever result it
// produced, failed runs included.
func executeOnce(ctx context.Context, p *pipeline.Pipeline, outputDir string) error {
	result, runErr := p.Run(ctx)
	if result == nil {
		return runErr
	}
	if err := writeOutputs(result, outputDir); err != nil {
		return err
	}
	return runErr
}

// writeOutputs serializes the run result as JSON and, when a report
// exists, as Markdown.
func writeOutputs(result *types.RunResult, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	jsonPath := filepath.Join(outputDir, "run-"+result.RunID+".json")
	jsonFile, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", jsonPath, err)
	}
	defer jsonFile.Close()
	if err := synth.WriteJSON(jsonFile, result); err != nil {
		return fmt.Errorf("writing %s: %w", jsonPath, err)
	}
	logger.Info().Str("path", jsonPath).Msg("wrote run result")

	if result.Report == nil {
		return nil
	}
	mdPath := filepath.Join(outputDir, "run-"+result.RunID+".md")
	mdFile, err := os.Create(mdPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", mdPath, err)
	}
	defer mdFile.Close()
	if err := synth.WriteMarkdown(mdFile, result); err != nil {
		return fmt.Errorf("writing %s: %w", mdPath, err)
	}
	logger.Info().Str("path", mdPath).Msg("wrote report")
	return nil
}

// buildConfig assembles the pipeline configuration from viper, which
// layers flags over the config file over environment variables.
func buildConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Fetch: types.FetchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("http_timeout"),
				UserAgent: "papersynth/" + version,
			},
			Query:         viper.GetString("query"),
			Categories:    viper.GetStringSlice("categories"),
			MaxResults:    viper.GetInt("max_results"),
			Window:        viper.GetDuration("window"),
			FetchExcerpts: viper.GetBool("fetch_excerpts"),
		},
		Analysis: types.AnalysisConfig{
			AIConfig: types.AIConfig{
				Model:          viper.GetString("model"),
				MaxTokens:      viper.GetInt("max_tokens"),
				Temperature:    viper.GetFloat64("temperature"),
				MaxRetries:     viper.GetInt("max_retries"),
				RequestTimeout: viper.GetDuration("request_timeout"),
			},
			PromptVersion:     viper.GetString("prompt_version"),
			Concurrency:       viper.GetInt("concurrency"),
			RequestsPerMinute: viper.GetFloat64("requests_per_minute"),
		},
		Synthesis: types.SynthesisConfig{
			AIConfig: types.AIConfig{
				Model:          viper.GetString("model"),
				MaxTokens:      viper.GetInt("max_tokens"),
				Temperature:    viper.GetFloat64("temperature"),
				RequestTimeout: viper.GetDuration("request_timeout"),
			},
			TopKeywords: viper.GetInt("top_keywords"),
			TopFindings: viper.GetInt("top_findings"),
		},
		Cache: types.CacheConfig{
			Path: viper.GetString("cache_path"),
		},
		RunTimeout: viper.GetDuration("run_timeout"),
		OutputDir:  viper.GetString("output_dir"),
	}
}

func init() {
	runCmd.Flags().String("query", "", "free-text topic to track (e.g. \"large language models\")")
	runCmd.Flags().StringSlice("categories", []string{"cs.AI", "cs.LG"}, "arXiv categories to search")
	runCmd.Flags().Int("max-results", 20, "maximum papers per run")
	runCmd.Flags().Duration("window", 7*24*time.Hour, "recency window; older papers are dropped (0 disables)")
	runCmd.Flags().Bool("fetch-excerpts", true, "fetch full-text excerpts for new papers")
	runCmd.Flags().String("model", "claude-sonnet-4-5", "LLM model identifier")
	runCmd.Flags().Int("max-tokens", 2048, "LLM completion token limit")
	runCmd.Flags().Float64("temperature", 0.2, "LLM sampling temperature")
	runCmd.Flags().Int("max-retries", 3, "retry attempts for transient LLM failures")
	runCmd.Flags().Duration("request-timeout", 60*time.Second, "per-request LLM deadline")
	runCmd.Flags().String("prompt-version", "v1", "analysis prompt version (part of the cache key)")
	runCmd.Flags().Int("concurrency", 4, "maximum in-flight LLM requests")
	runCmd.Flags().Float64("requests-per-minute", 15, "LLM request quota")
	runCmd.Flags().Int("top-keywords", 10, "keywords shown in report sections")
	runCmd.Flags().Int("top-findings", 5, "findings quoted in the report")
	runCmd.Flags().String("cache-path", "data/papersynth.db", "SQLite cache file")
	runCmd.Flags().Duration("run-timeout", 0, "overall run deadline (0 disables)")
	runCmd.Flags().String("output-dir", "reports", "directory for run results and reports")
	runCmd.Flags().Duration("every", 0, "rerun interval (0 runs once)")

	for flag, key := range map[string]string{
		"query":               "query",
		"categories":          "categories",
		"max-results":         "max_results",
		"window":              "window",
		"fetch-excerpts":      "fetch_excerpts",
		"model":               "model",
		"max-tokens":          "max_tokens",
		"temperature":         "temperature",
		"max-retries":         "max_retries",
		"request-timeout":     "request_timeout",
		"prompt-version":      "prompt_version",
		"concurrency":         "concurrency",
		"requests-per-minute": "requests_per_minute",
		"top-keywords":        "top_keywords",
		"top-findings":        "top_findings",
		"cache-path":          "cache_path",
		"run-timeout":         "run_timeout",
		"output-dir":          "output_dir",
		"every":               "every",
	} {
		viper.BindPFlag(key, runCmd.Flags().Lookup(flag))
	}

	rootCmd.AddCommand(runCmd)
}
