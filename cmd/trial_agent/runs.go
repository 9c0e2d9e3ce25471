package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

var runsCommand = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs recorded in the database",
}

var runsListCommand = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsListCmd,
}

var runsShowCommand = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show a run with its stage history and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShowCmd,
}

var runsDeleteCommand = &cobra.Command{
	Use:   "delete RUN_ID",
	Short: "Delete a run and its artifacts from the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDeleteCmd,
}

var runsRestoreCommand = &cobra.Command{
	Use:   "restore RUN_ID",
	Short: "Rebuild a run directory from artifacts stored in the database",
	Long: `Writes the stored summary, script, assets and slide specs into a new run directory
under --output-root so later stages can be re-run with "stage N --run-dir".`,
	Args: cobra.ExactArgs(1),
	RunE: runRunsRestoreCmd,
}

var (
	runsDBURL      string
	runsStatus     string
	runsTitle      string
	runsLimit      int
	runsOutputRoot string
)

func init() {
	runsCommand.PersistentFlags().StringVar(&runsDBURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	runsListCommand.Flags().StringVar(&runsStatus, "status", "", "Filter by status (running, completed, failed)")
	runsListCommand.Flags().StringVar(&runsTitle, "title", "", "Filter by video title substring")
	runsListCommand.Flags().IntVar(&runsLimit, "limit", db.DefaultListLimit, "Maximum runs to list")
	runsRestoreCommand.Flags().StringVarP(&runsOutputRoot, "output-root", "o", config.DefaultOutputRoot, "Parent directory for the restored run")

	runsCommand.AddCommand(runsListCommand, runsShowCommand, runsDeleteCommand, runsRestoreCommand)
	rootCmd.AddCommand(runsCommand)
}

func connectRuns(ctx context.Context) (*db.DB, error) {
	url := runsDBURL
	if url == "" {
		url = config.FromEnv().DatabaseURL
	}
	if url == "" {
		return nil, errors.New("--db-url or DATABASE_URL is required")
	}
	return db.Connect(ctx, url)
}

func parseRunID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run ID %q: %w", arg, err)
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runRunsListCmd(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	store, err := connectRuns(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, db.RunFilters{Title: runsTitle, Status: runsStatus, Limit: runsLimit})
	if err != nil {
		return err
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

func printRuns(out io.Writer, runs []db.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs found.")
		return err
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		title := r.VideoTitle
		if title == "" {
			title = "-"
		}
		rows = append(rows, []string{r.ID.String(), r.Status, r.CreatedAt.Local().Format(time.DateTime), title})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"ID", "Status", "Created", "Title"}, rows, nil))
	return err
}

func runRunsShowCmd(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := connectRuns(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	runSteps, err := store.ListRunSteps(ctx, id, "")
	if err != nil {
		return err
	}
	artifacts, err := store.ListArtifacts(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printRunDetail(out, run, runSteps, artifacts)
	if rendered, err := store.GetRenderedSlidesByRunID(ctx, id); err == nil && rendered != nil {
		_, _ = fmt.Fprintf(out, "Rendered slides: %d\n", len(rendered))
	}
	return nil
}

func printRunDetail(out io.Writer, run *db.Run, runSteps []db.RunStep, artifacts []db.ArtifactSummary) {
	_, _ = fmt.Fprintf(out, "Run:     %s (%s)\n", run.ID, run.RunKey)
	_, _ = fmt.Fprintf(out, "Status:  %s\n", run.Status)
	if run.VideoTitle != "" {
		_, _ = fmt.Fprintf(out, "Title:   %s\n", run.VideoTitle)
	}
	_, _ = fmt.Fprintf(out, "Dir:     %s\n", run.RunDir)
	_, _ = fmt.Fprintf(out, "Source:  %s\n", run.SummarySource)
	if run.ErrorMessage != "" {
		_, _ = fmt.Fprintf(out, "Error:   %s\n", run.ErrorMessage)
	}

	steps := make([][]string, 0, len(runSteps))
	for _, s := range runSteps {
		duration, errMsg := "-", ""
		if s.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *s.DurationMs)
		}
		if s.ErrorMessage != nil {
			errMsg = *s.ErrorMessage
		}
		steps = append(steps, []string{s.Step, s.Status, duration, errMsg})
	}
	_, _ = fmt.Fprintln(out, "\nSteps:")
	_, _ = fmt.Fprintln(out, renderTable([]string{"Step", "Status", "Duration", "Error"}, steps,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))

	files := make([][]string, 0, len(artifacts))
	for _, a := range artifacts {
		kind := "json"
		if a.HasText {
			kind = "text"
		}
		files = append(files, []string{a.Step, kind})
	}
	_, _ = fmt.Fprintln(out, "\nArtifacts:")
	_, _ = fmt.Fprintln(out, renderTable([]string{"Step", "Kind"}, files, nil))
}

func runRunsDeleteCmd(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := connectRuns(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRun(ctx, id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
	return nil
}

func runRunsRestoreCmd(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := connectRuns(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	dir, err := runstore.New(runsOutputRoot, "")
	if err != nil {
		return err
	}
	restored, err := restoreRun(ctx, store, id, dir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %s into %s\n", strings.Join(restored, ", "), dir.Root)
	return nil
}

// restoreRun copies the stored text artifacts of run id into dir and returns
// the names of those written. Image and video files are not stored and must
// be regenerated.
func restoreRun(ctx context.Context, store *db.DB, id uuid.UUID, dir *runstore.Dir) ([]string, error) {
	var restored []string

	summary, err := store.GetTextArtifact(ctx, id, db.StepSummary)
	if err != nil {
		return nil, err
	}
	if summary != "" {
		if err := runstore.WriteText(dir.SummaryPath(), summary); err != nil {
			return nil, err
		}
		restored = append(restored, db.StepSummary)
	}

	script, err := store.GetScriptByRunID(ctx, id)
	if err != nil {
		return nil, err
	}
	if script != nil {
		if err := runstore.SaveJSON(dir.ScriptPath(), script); err != nil {
			return nil, err
		}
		restored = append(restored, db.StepScript)
	}

	assets, err := store.GetAssetsByRunID(ctx, id)
	if err != nil {
		return nil, err
	}
	if assets != nil {
		if err := runstore.SaveJSON(dir.AssetsPath(), assets); err != nil {
			return nil, err
		}
		restored = append(restored, db.StepAssets)
	}

	slides, err := store.GetSlidesByRunID(ctx, id)
	if err != nil {
		return nil, err
	}
	if slides != nil {
		if err := runstore.SaveJSON(dir.SlidesPath(), slides); err != nil {
			return nil, err
		}
		restored = append(restored, db.StepSlides)
	}

	if len(restored) == 0 {
		_ = os.Remove(dir.Root)
		return nil, fmt.Errorf("run %s has no stored artifacts", id)
	}
	return restored, nil
}
