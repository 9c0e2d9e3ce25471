package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/pipeline"
	"github.com/jonathan/trial-explainer/internal/pipeline/steps"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

var batchCommand = &cobra.Command{
	Use:   "batch",
	Short: "Run the pipeline for several trial summaries",
	Long: `Runs the full pipeline once per summary, each in its own run directory under --output-root.
Summaries may be files (--summary, repeatable), URLs (--summary-url, repeatable)
or raw protocols distilled first (--protocol, repeatable).
A failed run does not stop the others; the command fails if any run failed.`,
	RunE: runBatchCmd,
}

var (
	batchFlags     pipelineFlags
	batchSummaries []string
	batchURLs      []string
	batchProtocols []string
	batchParallel  int
)

// DefaultBatchParallel bounds concurrent runs; image synthesis and speech
// are rate limited upstream.
const DefaultBatchParallel = 2

func init() {
	batchFlags.register(batchCommand, false)
	batchCommand.Flags().StringArrayVarP(&batchSummaries, "summary", "s", nil, "Trial summary text file (repeatable)")
	batchCommand.Flags().StringArrayVar(&batchURLs, "summary-url", nil, "Trial summary URL (repeatable)")
	batchCommand.Flags().StringArrayVar(&batchProtocols, "protocol", nil, "Raw protocol text file to distill (repeatable)")
	batchCommand.Flags().IntVarP(&batchParallel, "parallel", "p", DefaultBatchParallel, "Maximum runs in flight")

	rootCmd.AddCommand(batchCommand)
}

// batchResult is the outcome of one run in a batch.
type batchResult struct {
	Source string
	RunDir string
	Report *pipeline.Report
	Err    error
}

// batchSources lists files first, then URLs, then protocols, dropping blanks.
func batchSources(files, urls, protocols []string) []config.Config {
	var sources []config.Config
	for _, f := range files {
		if f = strings.TrimSpace(f); f != "" {
			sources = append(sources, config.Config{Summary: f})
		}
	}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			sources = append(sources, config.Config{SummaryURL: u})
		}
	}
	for _, p := range protocols {
		if p = strings.TrimSpace(p); p != "" {
			sources = append(sources, config.Config{Protocol: p})
		}
	}
	return sources
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sources := batchSources(batchSummaries, batchURLs, batchProtocols)
	if len(sources) == 0 {
		return errors.New("at least one --summary, --summary-url or --protocol is required")
	}
	if batchParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", batchParallel)
	}

	cfg, err := batchFlags.resolve(cmd)
	if err != nil {
		return err
	}
	logger, err := newRunLogger(cfg, nil, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	clients, err := pipeline.NewClients(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = clients.Close() }()

	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	results := runBatch(ctx, sources, batchParallel, func(ctx context.Context, src config.Config) batchResult {
		return runOne(ctx, cfg, src, clients, store, cmd.ErrOrStderr())
	})
	return printBatchResults(cmd.OutOrStdout(), results)
}

// runBatch runs fn for every source with at most parallel in flight and
// returns the results in source order.
func runBatch(ctx context.Context, sources []config.Config, parallel int, fn func(context.Context, config.Config) batchResult) []batchResult {
	results := make([]batchResult, len(sources))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = fn(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runOne ingests src into a fresh run directory and runs every stage.
func runOne(ctx context.Context, cfg config.Config, src config.Config, clients pipeline.Clients, store *db.DB, stderr io.Writer) batchResult {
	result := batchResult{Source: src.Summary + src.SummaryURL + src.Protocol}

	dir, err := runstore.New(cfg.OutputRoot, "")
	if err != nil {
		result.Err = err
		return result
	}
	result.RunDir = dir.Root

	logger, err := newRunLogger(cfg, dir, stderr)
	if err != nil {
		result.Err = err
		return result
	}
	logger = logger.With("source", result.Source)

	input, err := ingestSource(ctx, src, clients.LLM, logger)
	if err != nil {
		result.Err = err
		return result
	}

	result.Report, result.Err = executeRun(ctx, runJob{
		Config:  cfg,
		Dir:     dir,
		Summary: input,
		From:    1,
		To:      steps.StageCount,
	}, clients, store, logger, printerFor(nil, true))
	return result
}

// printBatchResults writes one line per run and fails when any run failed.
func printBatchResults(out io.Writer, results []batchResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %s: %v\n", r.Source, r.Err)
			continue
		}
		video := ""
		if r.Report != nil {
			video = r.Report.Video
		}
		_, _ = fmt.Fprintf(out, "OK    %s -> %s\n", r.Source, video)
	}
	_, _ = fmt.Fprintf(out, "%d/%d runs succeeded\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}
