// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective pipeline configuration as YAML",
	Long: `Config resolves flags, environment variables, and the config file into
the pipeline configuration a run would use, and prints it as YAML. The
output is a valid papersynth.yaml starting point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig()

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling configuration: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
