// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/papersynth/papersynth/pkg/types"
)

// WriteJSON writes the full run result as indented JSON.
func WriteJSON(w io.Writer, result *types.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// WriteMarkdown renders the run's report as a Markdown document.
func WriteMarkdown(w io.Writer, result *types.RunResult) error {
	if result.Report == nil {
		return fmt.Errorf("run %s has no report to render", result.RunID)
	}
	r := result.Report

	fmt.Fprintf(w, "# Research Trend Report\n\n")
	fmt.Fprintf(w, "Run `%s`, generated %s.\n\n", r.RunID,
		r.GeneratedAt.Format("2006-01-02 15:04 UTC"))

	fmt.Fprintf(w, "## Executive Summary\n\n%s\n", r.ExecutiveSummary)

	for _, sec := range r.Sections {
		fmt.Fprintf(w, "\n## %s\n\n%s\n", sec.Title, sec.Body)
	}

	if len(result.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n## Diagnostics\n\n")
		for _, d := range result.Diagnostics {
			fmt.Fprintf(w, "- %s\n", d)
		}
	}
	return nil
}
