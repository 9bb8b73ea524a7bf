// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papersynth/papersynth/internal/synth"
	"github.com/papersynth/papersynth/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report <run-result.json>",
	Short: "Re-render a stored run result as Markdown",
	Long: `Report reads a run result JSON file produced by "papersynth run" and
renders its report as Markdown, to stdout or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading run result: %w", err)
		}

		var result types.RunResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("parsing run result %s: %w", args[0], err)
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			defer f.Close()
			out = f
		}
		return synth.WriteMarkdown(out, &result)
	},
}

func init() {
	reportCmd.Flags().StringP("output", "o", "", "write Markdown to this file instead of stdout")

	rootCmd.AddCommand(reportCmd)
}
