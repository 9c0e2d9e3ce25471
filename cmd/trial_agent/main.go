// Package main provides the entry point for the trial explainer CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trial_agent",
	Short: "Clinical trial explainer video pipeline",
	Long: `trial_agent turns a clinical-trial summary into a short patient-facing explainer video.

The pipeline runs seven stages (script, assets, images, background removal,
slide layout, slide rendering, video) and keeps every intermediate artifact in
a run directory so any stage can be inspected or re-run.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
