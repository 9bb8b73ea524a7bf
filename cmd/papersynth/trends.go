// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papersynth/papersynth/internal/cache"
	"github.com/papersynth/papersynth/internal/trend"
	"github.com/papersynth/papersynth/pkg/types"
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Recompute trend statistics from cached analyses",
	Long: `Trends aggregates every cached analysis under one prompt version into
keyword, methodology, category, and weekly counts, without touching the
network. Useful for inspecting the accumulated corpus between runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath, _ := cmd.Flags().GetString("cache-path")
		promptVersion, _ := cmd.Flags().GetString("prompt-version")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := cache.Open(cachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		analyses, err := store.Analyses(context.Background(), promptVersion)
		if err != nil {
			return err
		}
		report := trend.Compute(analyses)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printTrends(report, promptVersion)
		return nil
	},
}

func printTrends(report *types.TrendReport, promptVersion string) {
	fmt.Printf("%d analyses cached under prompt version %s (avg confidence %.2f)\n",
		report.AnalysisCount, promptVersion, report.AvgConfidence)

	printCounts := func(title string, counts []types.TrendCount, n int) {
		if len(counts) == 0 {
			return
		}
		if len(counts) > n {
			counts = counts[:n]
		}
		fmt.Printf("\n%s:\n", title)
		for _, c := range counts {
			fmt.Printf("  %-40s %d\n", c.Key, c.Count)
		}
	}

	printCounts("Top keywords", report.Keywords, 15)
	printCounts("Methodologies", report.Methodologies, 15)
	printCounts("Categories", report.Categories, 15)
	printCounts("Weekly volume", report.Weekly, len(report.Weekly))
}

func init() {
	trendsCmd.Flags().String("cache-path", "data/papersynth.db", "SQLite cache file")
	trendsCmd.Flags().String("prompt-version", "v1", "prompt version to aggregate")
	trendsCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(trendsCmd)
}
