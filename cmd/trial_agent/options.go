package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/ingestion"
	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

// pipelineFlags holds the flags shared by commands that run pipeline stages.
type pipelineFlags struct {
	configPath string
	summary    string
	summaryURL string
	protocol   string
	music      string
	runDir     string
	outputRoot string
	apiKey     string
	dbURL      string
	logFormat  string
	verbose    bool
}

// register adds the shared flags to cmd. Without inputs the summary and
// run directory flags are left for the command to define.
func (f *pipelineFlags) register(cmd *cobra.Command, inputs bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")
	if inputs {
		flags.StringVarP(&f.summary, "summary", "s", "", "Path to trial summary text file (mutually exclusive with --summary-url)")
		flags.StringVar(&f.summaryURL, "summary-url", "", "URL to fetch the trial summary from (mutually exclusive with --summary)")
		flags.StringVar(&f.protocol, "protocol", "", "Raw protocol text file, distilled into a summary before stage 1")
		flags.StringVar(&f.runDir, "run-dir", "", "Existing run directory to resume")
	}
	flags.StringVar(&f.music, "music", "", "Background music track mixed under the narration")
	flags.StringVarP(&f.outputRoot, "output-root", "o", "", "Parent directory for new run directories")
	flags.StringVar(&f.apiKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	flags.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	flags.StringVar(&f.logFormat, "log-format", "", "Log format: console or json")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print detailed debug information")
}

// resolve merges flags over the config file over the environment over the
// built-in defaults. Only explicitly set flags override.
func (f *pipelineFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	changed := cmd.Flags().Changed
	if changed("summary") {
		cfg.Summary = f.summary
	}
	if changed("summary-url") {
		cfg.SummaryURL = f.summaryURL
	}
	if changed("protocol") {
		cfg.Protocol = f.protocol
	}
	if changed("music") {
		cfg.Music = f.music
	}
	if changed("run-dir") {
		cfg.RunDir = f.runDir
	}
	if changed("output-root") {
		cfg.OutputRoot = f.outputRoot
	}
	if changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if changed("db-url") {
		cfg.DatabaseURL = f.dbURL
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}

	cfg = cfg.MergeWithDefaults(config.FromEnv())
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openRunDir attaches to cfg.RunDir or creates a fresh run under cfg.OutputRoot.
func openRunDir(cfg config.Config) (*runstore.Dir, error) {
	if cfg.RunDir != "" {
		return runstore.Open(cfg.RunDir)
	}
	return runstore.New(cfg.OutputRoot, "")
}

// newRunLogger logs to stderr and to the run's log file.
func newRunLogger(cfg config.Config, dir *runstore.Dir, stderr io.Writer) (*slog.Logger, error) {
	opts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr}
	if dir != nil {
		opts.File = dir.LogPath()
	}
	return logging.New(opts)
}

// summaryInput is a loaded trial summary and where it came from.
type summaryInput struct {
	Text     string
	Source   string
	Metadata *ingestion.Metadata
	// Distilled is set when the summary was distilled from a protocol.
	Distilled *ingestion.Distillation
}

// loadSummary ingests the summary named by cfg. With no file, URL or
// protocol it falls back to the summary already saved in dir. client is
// only used to distill a protocol.
func loadSummary(ctx context.Context, cfg config.Config, dir *runstore.Dir, client llm.Client, logger *slog.Logger) (*summaryInput, error) {
	inputs := 0
	for _, v := range []string{cfg.Summary, cfg.SummaryURL, cfg.Protocol} {
		if v != "" {
			inputs++
		}
	}
	switch {
	case inputs > 1:
		return nil, errors.New("--summary, --summary-url and --protocol are mutually exclusive; provide only one")
	case inputs == 1:
		return ingestSource(ctx, cfg, client, logger)
	}

	if dir != nil {
		data, err := os.ReadFile(dir.SummaryPath())
		if err == nil && strings.TrimSpace(string(data)) != "" {
			return &summaryInput{Text: string(data), Source: dir.SummaryPath()}, nil
		}
	}
	return nil, errors.New("one of --summary, --summary-url or --protocol must be provided (via flag or config)")
}

// ingestSource reads the summary from cfg.SummaryURL when set, distills it
// from cfg.Protocol when set, otherwise reads the cfg.Summary file.
func ingestSource(ctx context.Context, cfg config.Config, client llm.Client, logger *slog.Logger) (*summaryInput, error) {
	if cfg.SummaryURL != "" {
		text, meta, err := ingestion.IngestFromURL(ctx, cfg.SummaryURL, nil, logger)
		if err != nil {
			return nil, err
		}
		return &summaryInput{Text: text, Source: cfg.SummaryURL, Metadata: meta}, nil
	}
	if cfg.Protocol != "" {
		if client == nil {
			return nil, errors.New("--protocol needs a language model client")
		}
		logging.OrNop(logger).Info("distilling protocol", "path", cfg.Protocol)
		text, distilled, meta, err := ingestion.DistillFromFile(ctx, client, cfg.Protocol)
		if err != nil {
			return nil, err
		}
		return &summaryInput{Text: text, Source: cfg.Protocol, Metadata: meta, Distilled: distilled}, nil
	}
	text, meta, err := ingestion.IngestFromFile(cfg.Summary)
	if err != nil {
		return nil, err
	}
	return &summaryInput{Text: text, Source: cfg.Summary, Metadata: meta}, nil
}

// openStore connects to the database when one is configured. A nil store
// means runs are tracked on disk only.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) *db.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}
	logger = logging.OrNop(logger)
	store, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database unavailable, continuing without run tracking", "error", err)
		return nil
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Warn("database migration failed, continuing without run tracking", "error", err)
		store.Close()
		return nil
	}
	return store
}
