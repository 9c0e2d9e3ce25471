package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/ingestion"
	"github.com/jonathan/trial-explainer/internal/observability"
	"github.com/jonathan/trial-explainer/internal/pipeline"
	"github.com/jonathan/trial-explainer/internal/pipeline/steps"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the trial video pipeline end-to-end",
	Long: `Runs the pipeline stages in order: script -> assets -> images -> background removal -> layout -> slides -> video.

Use --from/--to to run part of the pipeline, and --run-dir to continue an existing run.
Configuration can be loaded from a JSON or YAML file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runFlags pipelineFlags
	runFrom  int
	runTo    int
	runQuiet bool
)

func init() {
	runFlags.register(runCommand, true)
	runCommand.Flags().IntVar(&runFrom, "from", 1, "First stage to run")
	runCommand.Flags().IntVar(&runTo, "to", steps.StageCount, "Last stage to run")
	runCommand.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output (logs still go to stderr and run.log)")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := pipeline.ValidateRange(runFrom, runTo); err != nil {
		return err
	}

	cfg, err := runFlags.resolve(cmd)
	if err != nil {
		return err
	}
	dir, err := openRunDir(cfg)
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
	if runFrom == 1 {
		if input, err = loadSummary(ctx, cfg, dir, clients.LLM, logger); err != nil {
			return err
		}
	}

	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run directory: %s\n", dir.Root)
	_, err = executeRun(ctx, runJob{
		Config:  cfg,
		Dir:     dir,
		Summary: input,
		From:    runFrom,
		To:      runTo,
	}, clients, store, logger, printerFor(out, runQuiet))
	return err
}

var _ pipeline.Recorder = (*db.DB)(nil)

// runJob is one pipeline invocation against a run directory.
type runJob struct {
	Config  config.Config
	Dir     *runstore.Dir
	Summary *summaryInput
	From    int
	To      int
}

// executeRun runs job.From..job.To, mirroring progress to store when set.
func executeRun(ctx context.Context, job runJob, clients pipeline.Clients, store *db.DB, logger *slog.Logger, printer *observability.Printer) (*pipeline.Report, error) {
	opts := pipeline.OptionsFromConfig(job.Config)
	opts.OnProgress = func(e pipeline.ProgressEvent) {
		logger.Debug("progress", "stage", e.Stage, "step", e.Step, "status", e.Status, "message", e.Message)
	}
	p := pipeline.New(job.Dir, clients, opts, logger, printer)

	summary, source := "", job.Dir.SummaryPath()
	if job.Summary != nil {
		summary, source = job.Summary.Text, job.Summary.Source
		if job.Summary.Metadata != nil {
			if err := ingestion.WriteMetadata(job.Dir.Root, job.Summary.Metadata); err != nil {
				logger.Warn("failed to write summary metadata", "error", err)
			}
		}
		if job.Summary.Distilled != nil {
			if err := ingestion.WriteDistillation(job.Dir.Root, job.Summary.Distilled); err != nil {
				logger.Warn("failed to write distilled protocol", "error", err)
			}
		}
	}

	complete := func(error) {}
	if store != nil {
		runID, err := store.CreateRun(ctx, job.Dir.RunID, job.Dir.Root, source)
		if err != nil {
			logger.Warn("failed to register run in database", "error", err)
		} else {
			p.WithRecorder(store, runID)
			logger.Info("run registered", "run_id", runID)
			complete = func(runErr error) {
				status, msg := db.RunStatusCompleted, ""
				if runErr != nil {
					status, msg = db.RunStatusFailed, runErr.Error()
				}
				// The run context may already be cancelled.
				if err := store.CompleteRun(context.Background(), runID, status, msg); err != nil {
					logger.Warn("failed to complete run in database", "error", err)
				}
			}
		}
	}

	report, err := p.Run(ctx, summary, job.From, job.To)
	complete(err)
	return report, err
}

// printerFor returns a printer on out, or a silent one when quiet.
func printerFor(out io.Writer, quiet bool) *observability.Printer {
	if quiet {
		return observability.NewPrinter(nil)
	}
	return observability.NewPrinter(out)
}
