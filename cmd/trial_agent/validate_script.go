package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/planning"
)

var validateScriptCommand = &cobra.Command{
	Use:   "validate-script FILE",
	Short: "Validate a script JSON file against the script schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateScriptCmd,
}

func init() {
	rootCmd.AddCommand(validateScriptCommand)
}

func runValidateScriptCmd(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	script, err := planning.DecodeScript(raw)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Validation passed: %q with %d segments\n", script.Title, len(script.Segments))
	return nil
}
