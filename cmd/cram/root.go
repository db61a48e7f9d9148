package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cram",
	Short: "Course document to study artifacts pipeline",
	Long: `Cram turns course documents (PDF or text) into study artifacts
using LLM-powered structure detection and multi-pass generation.

The pipeline includes:
  - Heuristic document structure detection (chapters and sections)
  - Per-section quiz question, flashcard and note generation
  - Completeness verification with gap supplements
  - Graphics extraction and low-confidence reanalysis`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.cram/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "cram home directory (default: ~/.cram)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
