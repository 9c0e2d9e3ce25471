package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/pipeline"
	"github.com/jonathan/trial-explainer/internal/pipeline/steps"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

var stageCommand = &cobra.Command{
	Use:   "stage N",
	Short: "Re-run a single pipeline stage against an existing run directory",
	Long: `Runs stage N (1-7) reading its inputs from --run-dir. Stage 1 reads the summary
from --summary/--summary-url, or from the summary already saved in the run directory.

With --list, prints which stages are complete, runnable, or blocked instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStageCmd,
}

var (
	stageFlags pipelineFlags
	stageList  bool
)

func init() {
	stageFlags.register(stageCommand, true)
	stageCommand.Flags().BoolVar(&stageList, "list", false, "List stage status for the run directory")
	_ = stageCommand.MarkFlagRequired("run-dir")

	rootCmd.AddCommand(stageCommand)
}

// parseStage converts a CLI argument to a stage number.
func parseStage(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("stage must be a number, got %q", arg)
	}
	if _, err := steps.Lookup(n); err != nil {
		return 0, err
	}
	return n, nil
}

func runStageCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := stageFlags.resolve(cmd)
	if err != nil {
		return err
	}
	dir, err := runstore.Open(cfg.RunDir)
	if err != nil {
		return err
	}

	if stageList {
		return printStageStatus(cmd, dir)
	}
	if len(args) != 1 {
		return errors.New("stage number is required (or use --list)")
	}
	n, err := parseStage(args[0])
	if err != nil {
		return err
	}

	logger, err := newRunLogger(cfg, dir, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	clients, err := pipeline.NewClients(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = clients.Close() }()

	var input *summaryInput
	if n == 1 {
		if input, err = loadSummary(ctx, cfg, dir, clients.LLM, logger); err != nil {
			return err
		}
	}

	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	_, err = executeRun(ctx, runJob{Config: cfg, Dir: dir, Summary: input, From: n, To: n},
		clients, store, logger, printerFor(cmd.OutOrStdout(), false))
	return err
}

func printStageStatus(cmd *cobra.Command, dir *runstore.Dir) error {
	state, err := dir.LoadState()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for n, status := range stageStatuses(dir, state) {
		def, _ := steps.Lookup(n + 1)
		_, _ = fmt.Fprintf(out, "%d. %-18s %s\n", def.Number, def.Name, status)
	}
	return nil
}

// stageStatuses reports each stage, in order, as complete, failed, ready or blocked.
func stageStatuses(dir *runstore.Dir, state *runstore.State) []string {
	statuses := make([]string, 0, steps.StageCount)
	for n := 1; n <= steps.StageCount; n++ {
		status := "blocked"
		switch {
		case state.FailedStage == n:
			status = "failed"
		case steps.Satisfied(dir, state, n):
			status = "complete"
		case steps.ValidateDependencies(dir, state, n) == nil:
			status = "ready"
		}
		statuses = append(statuses, status)
	}
	return statuses
}
