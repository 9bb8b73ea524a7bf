// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the papersynth CLI. The pipeline
// runs as subcommands: run executes the fetch-analyze-synthesize cycle
// (once or on a schedule), trends recomputes aggregates from the cache,
// and report re-renders a stored run result.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papersynth/papersynth/internal/logging"
	"github.com/papersynth/papersynth/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is the process-wide logger, configured in PersistentPreRunE.
var logger zerolog.Logger

// anthropicKey resolves the LLM API key: explicit config wins, then the
// secrets directory.
func anthropicKey() string {
	if v := viper.GetString("anthropic_api_key"); v != "" {
		return v
	}
	return loadedSecrets[secrets.AnthropicAPIKey]
}

// rootCmd is the base command for the papersynth CLI.
var rootCmd = &cobra.Command{
	Use:   "papersynth",
	Short: "Scheduled research-paper trend analysis",
	Long: `papersynth discovers recently published research papers on a configured
topic, analyzes each with an LLM, aggregates the analyses into trend
statistics, and synthesizes a human-readable report.

Run once with "papersynth run", or continuously with "papersynth run
--every 24h". Paper and analysis caches make repeat runs cheap.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New(logging.Config{
			Level:  viper.GetString("log_level"),
			Format: viper.GetString("log_format"),
		}, os.Stderr)

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./papersynth.yaml or ~/.config/papersynth/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("papersynth")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "papersynth"))
		}
	}

	viper.SetEnvPrefix("PAPERSYNTH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
