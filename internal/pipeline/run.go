// Package pipeline provides the high-level orchestration of the seven-stage
// trial video pipeline. Stages run strictly in order and hand off through
// files in a run directory, so any stage can be re-run on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/trial-explainer/internal/bgremoval"
	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/imagegen"
	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/observability"
	"github.com/jonathan/trial-explainer/internal/pipeline/steps"
	"github.com/jonathan/trial-explainer/internal/runstore"
	"github.com/jonathan/trial-explainer/internal/tts"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage    int    `json:"stage"`
	Step     string `json:"step"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Clients bundles the external collaborators each stage talks to. Nil
// Remover or Simplifier degrade gracefully; a nil TTS fails stage 7.
type Clients struct {
	LLM        llm.Client
	Images     imagegen.Endpoint
	Simplifier imagegen.Simplifier
	Remover    bgremoval.Remover
	TTS        tts.Provider
	Tools      *media.Tools
}

// Options holds the tunables for a pipeline run.
type Options struct {
	Images         imagegen.Options
	MatchThreshold float64
	Music          string
	MusicVolume    float64
	OnProgress     ProgressCallback
	// Sleep replaces the stage 3 retry pause; nil waits for real.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Recorder persists run progress outside the run directory. *db.DB satisfies it.
type Recorder interface {
	SaveArtifact(ctx context.Context, runID uuid.UUID, step, category string, content any) error
	SaveTextArtifact(ctx context.Context, runID uuid.UUID, step, category, text string) error
	CreateRunStep(ctx context.Context, runID uuid.UUID, input *db.RunStepInput) (*db.RunStep, error)
	UpdateRunStepStatus(ctx context.Context, runID uuid.UUID, stepName, status string, errorMsg *string) error
	SetVideoTitle(ctx context.Context, runID uuid.UUID, title string) error
}

// StageError wraps the error that stopped a stage.
type StageError struct {
	Stage int
	Name  string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Stage, e.Name, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Report summarizes what a Run produced.
type Report struct {
	RunDir        string
	Title         string
	Stages        []int
	Slides        int
	SkippedSlides int
	Video         string
	Duration      float64
}

// Pipeline runs stages against one run directory.
type Pipeline struct {
	dir      *runstore.Dir
	clients  Clients
	opts     Options
	log      *slog.Logger
	printer  *observability.Printer
	recorder Recorder
	runID    uuid.UUID
	report   Report
}

// New creates a Pipeline for dir. A nil printer prints nothing.
func New(dir *runstore.Dir, clients Clients, opts Options, logger *slog.Logger, printer *observability.Printer) *Pipeline {
	if printer == nil {
		printer = observability.NewPrinter(nil)
	}
	return &Pipeline{
		dir:     dir,
		clients: clients,
		opts:    opts,
		log:     logging.OrNop(logger).With("run", dir.RunID),
		printer: printer,
		report:  Report{RunDir: dir.Root},
	}
}

// WithRecorder mirrors stage status and artifacts to rec under runID.
func (p *Pipeline) WithRecorder(rec Recorder, runID uuid.UUID) *Pipeline {
	p.recorder = rec
	p.runID = runID
	return p
}

// Dir returns the run directory.
func (p *Pipeline) Dir() *runstore.Dir {
	return p.dir
}

// emitProgress calls the progress callback if configured
func (p *Pipeline) emitProgress(def steps.StageDefinition, status, message string, content any) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(ProgressEvent{
			Stage:    def.Number,
			Step:     def.Name,
			Category: def.Category,
			Status:   status,
			Message:  message,
			RunID:    p.dir.RunID,
			Content:  content,
		})
	}
}

// ValidateRange checks a from..to stage range.
func ValidateRange(from, to int) error {
	if from < 1 || to > steps.StageCount || from > to {
		return fmt.Errorf("invalid stage range %d..%d (stages are 1-%d)", from, to, steps.StageCount)
	}
	return nil
}

// Run executes stages from..to in order. When the range starts at stage 1
// the summary is saved into the run directory first. The first fatal stage
// error stops the run.
func (p *Pipeline) Run(ctx context.Context, summary string, from, to int) (*Report, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	if from == 1 {
		if strings.TrimSpace(summary) == "" {
			return nil, errors.New("trial summary is empty")
		}
		if err := runstore.WriteText(p.dir.SummaryPath(), summary); err != nil {
			return nil, fmt.Errorf("save summary: %w", err)
		}
		p.record(func(ctx context.Context) error {
			return p.recorder.SaveTextArtifact(ctx, p.runID, db.StepSummary, db.StepCategoryIngestion, summary)
		})
	}

	for n := from; n <= to; n++ {
		if err := p.RunStage(ctx, n); err != nil {
			return &p.report, err
		}
	}
	p.printer.PrintRunSummary(observability.RunSummary(p.report))
	return &p.report, nil
}

// RunStage executes stage n, reading its inputs from the run directory.
func (p *Pipeline) RunStage(ctx context.Context, n int) error {
	def, err := steps.Lookup(n)
	if err != nil {
		return err
	}
	state, err := p.dir.LoadState()
	if err != nil {
		return err
	}
	if err := steps.ValidateDependencies(p.dir, state, n); err != nil {
		return &StageError{Stage: n, Name: def.Name, Cause: err}
	}

	p.printer.Stepf(n, steps.StageCount, "%s...", def.Title)
	p.emitProgress(def, db.StepStatusInProgress, def.Title, nil)
	p.recordStepStart(def)
	log := p.log.With("stage", n, "step", def.Name)
	log.Info("stage started")
	start := time.Now()

	artifact, err := p.execute(ctx, n)
	if err != nil {
		stageErr := &StageError{Stage: n, Name: def.Name, Cause: err}
		log.Error("stage failed", "error", err)
		if markErr := p.dir.MarkFailed(n, err); markErr != nil {
			log.Warn("failed to record stage failure", "error", markErr)
		}
		p.recordStepEnd(def, db.StepStatusFailed, nil, err)
		p.emitProgress(def, db.StepStatusFailed, err.Error(), nil)
		return stageErr
	}

	if err := p.dir.MarkStage(n); err != nil {
		return &StageError{Stage: n, Name: def.Name, Cause: err}
	}
	p.report.Stages = append(p.report.Stages, n)
	p.recordStepEnd(def, db.StepStatusCompleted, artifact, nil)
	log.Info("stage completed", "elapsed", time.Since(start).Round(time.Millisecond))
	p.emitProgress(def, db.StepStatusCompleted, def.Title+" complete", artifact)
	return nil
}

func (p *Pipeline) execute(ctx context.Context, n int) (any, error) {
	switch n {
	case 1:
		return p.runScript(ctx)
	case 2:
		return p.runAssets(ctx)
	case 3:
		return p.runImages(ctx)
	case 4:
		return p.runBackgroundRemoval(ctx)
	case 5:
		return p.runLayout(ctx)
	case 6:
		return p.runRendering(ctx)
	case 7:
		return p.runVideo(ctx)
	}
	return nil, fmt.Errorf("unknown stage: %d", n)
}

// record runs fn against the recorder when one is attached. Persistence
// failures never fail the run.
func (p *Pipeline) record(fn func(ctx context.Context) error) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.log.Warn("failed to persist run progress", "error", err)
	}
}

func (p *Pipeline) recordStepStart(def steps.StageDefinition) {
	p.record(func(ctx context.Context) error {
		if _, err := p.recorder.CreateRunStep(ctx, p.runID, &db.RunStepInput{
			Step:       def.Name,
			Category:   def.Category,
			Status:     db.StepStatusPending,
			Parameters: map[string]any{"stage": def.Number},
		}); err != nil {
			return err
		}
		return p.recorder.UpdateRunStepStatus(ctx, p.runID, def.Name, db.StepStatusInProgress, nil)
	})
}

func (p *Pipeline) recordStepEnd(def steps.StageDefinition, status string, artifact any, cause error) {
	p.record(func(ctx context.Context) error {
		if artifact != nil {
			if err := p.recorder.SaveArtifact(ctx, p.runID, def.Name, def.Category, artifact); err != nil {
				return err
			}
		}
		var msg *string
		if cause != nil {
			s := cause.Error()
			msg = &s
		}
		return p.recorder.UpdateRunStepStatus(ctx, p.runID, def.Name, status, msg)
	})
}
