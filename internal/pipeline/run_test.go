package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/db"
	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/llm/llmtest"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/media/mediatest"
	"github.com/jonathan/trial-explainer/internal/pipeline/steps"
	"github.com/jonathan/trial-explainer/internal/runstore"
	"github.com/jonathan/trial-explainer/internal/types"
)

const testSummary = "A phase 3 study of drug X in adults with heart failure."

const scriptJSON = `{
  "video_title": "Inside the HEART Trial",
  "video_intro": "Let's see what joining this study involves.",
  "segments": [
    {"section_title": "Why This Study", "narration": "Doctors want to learn if a new pill helps weak hearts.", "image_description": "A cartoon heart", "educational_goal": "Explain purpose"},
    {"section_title": "Your Visits", "narration": "You visit the clinic once a month.", "image_description": "A calendar", "educational_goal": "Describe visits"}
  ]
}`

func fakeLLM() *llmtest.Scripted {
	return llmtest.NewFunc(func(prompt string, tier llm.ModelTier) (string, error) {
		switch {
		case tier == llm.TierAdvanced:
			return scriptJSON, nil
		case strings.Contains(prompt, "Design one 1920x1080 slide"):
			return `{"slide_title": "Slide", "caption": "A short caption.", "slide_duration": 6,
				"images": [{"name": "heart_icon", "position": "left", "size_ratio": 0.4}]}`, nil
		case strings.Contains(prompt, "Segment 1:"):
			return `[{"name": "heart_icon", "style": "flat", "purpose": "show the heart", "prompt": "a cartoon heart"}]`, nil
		case strings.Contains(prompt, "Segment 2:"):
			return `[{"name": "calendar", "style": "flat", "purpose": "show visits", "prompt": "a calendar"}]`, nil
		}
		return "", errors.New("unexpected prompt")
	})
}

type fakeEndpoint struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeEndpoint) Fetch(_ context.Context, prompt string, _, _ int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[prompt] {
		return nil, errors.New("endpoint down")
	}
	return bytes.Repeat([]byte{0x42}, 2048), nil
}

type copyRemover struct{}

func (copyRemover) Remove(_ context.Context, img []byte) ([]byte, error) {
	return img, nil
}

type fakeTTS struct {
	err   error
	texts []string
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) Ext() string { return ".wav" }

func (f *fakeTTS) Synthesize(_ context.Context, text, outPath string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("wav"), 0o644)
}

// mediaRunner answers ffprobe with a duration and writes a decodable PNG for
// single-frame slide composites.
func mediaRunner(t *testing.T) *mediatest.Runner {
	return &mediatest.Runner{Handle: func(cmd media.Command) ([]byte, error) {
		if strings.Contains(cmd.Name, "ffprobe") {
			return []byte("7.5\n"), nil
		}
		out := cmd.Args[len(cmd.Args)-1]
		if strings.HasSuffix(out, ".png") {
			var buf bytes.Buffer
			require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 320, 180))))
			return nil, os.WriteFile(out, buf.Bytes(), 0o644)
		}
		return nil, mediatest.TouchOutput(cmd)
	}}
}

type recordedStep struct {
	step, status string
}

type fakeRecorder struct {
	mu        sync.Mutex
	artifacts map[string]any
	texts     map[string]string
	statuses  []recordedStep
	title     string
	err       error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{artifacts: map[string]any{}, texts: map[string]string{}}
}

func (f *fakeRecorder) SaveArtifact(_ context.Context, _ uuid.UUID, step, _ string, content any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[step] = content
	return f.err
}

func (f *fakeRecorder) SaveTextArtifact(_ context.Context, _ uuid.UUID, step, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[step] = text
	return f.err
}

func (f *fakeRecorder) CreateRunStep(_ context.Context, _ uuid.UUID, input *db.RunStepInput) (*db.RunStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, recordedStep{input.Step, input.Status})
	return &db.RunStep{Step: input.Step, Status: input.Status}, f.err
}

func (f *fakeRecorder) UpdateRunStepStatus(_ context.Context, _ uuid.UUID, stepName, status string, _ *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, recordedStep{stepName, status})
	return f.err
}

func (f *fakeRecorder) SetVideoTitle(_ context.Context, _ uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	return f.err
}

func noSleep(context.Context, time.Duration) error { return nil }

type harness struct {
	dir      *runstore.Dir
	llm      *llmtest.Scripted
	endpoint *fakeEndpoint
	runner   *mediatest.Runner
	tts      *fakeTTS
	events   []ProgressEvent
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir, err := runstore.New(t.TempDir(), "run1")
	require.NoError(t, err)

	h := &harness{
		dir:      dir,
		llm:      fakeLLM(),
		endpoint: &fakeEndpoint{fail: map[string]bool{}},
		runner:   mediaRunner(t),
		tts:      &fakeTTS{},
	}
	clients := Clients{
		LLM:     h.llm,
		Images:  h.endpoint,
		Remover: copyRemover{},
		TTS:     h.tts,
		Tools:   media.NewTools("ffmpeg", "ffprobe", h.runner),
	}
	opts := Options{
		Sleep:      noSleep,
		OnProgress: func(e ProgressEvent) { h.events = append(h.events, e) },
	}
	h.pipeline = New(dir, clients, opts, nil, nil)
	return h
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t)
	rec := newFakeRecorder()
	h.pipeline.WithRecorder(rec, uuid.New())

	report, err := h.pipeline.Run(context.Background(), testSummary, 1, 7)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, report.Stages)
	assert.Equal(t, "Inside the HEART Trial", report.Title)
	assert.Equal(t, 2, report.Slides)
	assert.Equal(t, h.dir.FinalVideoPath(), report.Video)
	assert.InDelta(t, 15.0, report.Duration, 0.001)

	for _, path := range []string{
		h.dir.SummaryPath(), h.dir.ScriptPath(), h.dir.AssetsPath(), h.dir.SegmentRawPath(0),
		h.dir.SegmentRawPath(1), h.dir.ImagesIndexPath(), h.dir.NoBGIndexPath(), h.dir.SlidesPath(),
		h.dir.SlideImagePath(0), h.dir.SlideImagePath(1), h.dir.RenderedIndexPath(), h.dir.FinalVideoPath(),
	} {
		assert.FileExists(t, path)
	}

	var images []types.ImageResult
	require.NoError(t, runstore.LoadJSON(h.dir.NoBGIndexPath(), &images))
	require.Len(t, images, 2)
	assert.True(t, images[0].BackgroundRemoved)
	assert.Equal(t, filepath.Join(h.dir.NoBGDir(), "heart_icon_nobg.png"), images[0].Path)

	state, err := h.dir.LoadState()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, state.CompletedStages)
	assert.Empty(t, state.Error)

	// Narration comes from the script, in segment order.
	assert.Equal(t, []string{
		"Doctors want to learn if a new pill helps weak hearts.",
		"You visit the clinic once a month.",
	}, h.tts.texts)

	require.Len(t, h.events, 14)
	assert.Equal(t, db.StepStatusInProgress, h.events[0].Status)
	assert.Equal(t, db.StepScript, h.events[0].Step)
	assert.Equal(t, db.StepStatusCompleted, h.events[13].Status)
	assert.Equal(t, 7, h.events[13].Stage)

	assert.Equal(t, testSummary, rec.texts[db.StepSummary])
	assert.Equal(t, "Inside the HEART Trial", rec.title)
	assert.Len(t, rec.artifacts, 7)
	assert.Contains(t, rec.statuses, recordedStep{db.StepFinalVideo, db.StepStatusCompleted})
}

func TestRun_ImageFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.endpoint.fail["a calendar"] = true

	report, err := h.pipeline.Run(context.Background(), testSummary, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, report.Stages)

	var images []types.ImageResult
	require.NoError(t, runstore.LoadJSON(h.dir.ImagesIndexPath(), &images))
	require.Len(t, images, 1)
	assert.Equal(t, "heart_icon", images[0].Name)
}

func TestRun_SpeechFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.tts.err = errors.New("voice service unavailable")

	_, err := h.pipeline.Run(context.Background(), testSummary, 1, 7)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 7, stageErr.Stage)
	assert.Contains(t, err.Error(), "voice service unavailable")
	assert.NoFileExists(t, h.dir.FinalVideoPath())

	state, err := h.dir.LoadState()
	require.NoError(t, err)
	assert.Equal(t, 7, state.FailedStage)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, state.CompletedStages)
}

func TestRun_EmptySummary(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Run(context.Background(), "  ", 1, 1)
	require.Error(t, err)
	assert.Zero(t, h.llm.Calls())
}

func TestRun_InvalidRange(t *testing.T) {
	h := newHarness(t)
	for _, r := range [][2]int{{0, 3}, {3, 8}, {5, 2}} {
		_, err := h.pipeline.Run(context.Background(), testSummary, r[0], r[1])
		assert.Error(t, err, "range %v", r)
	}
}

func TestRunStage_MissingDependencies(t *testing.T) {
	h := newHarness(t)

	err := h.pipeline.RunStage(context.Background(), 5)

	var depErr *steps.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []int{1, 2}, depErr.MissingDependencies)
	assert.Zero(t, h.llm.Calls())
}

func TestRunStage_ResumeFromImageDirectory(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Run(context.Background(), testSummary, 1, 2)
	require.NoError(t, err)

	// Images placed by hand, without a stage 3 index.
	require.NoError(t, runstore.WriteText(filepath.Join(h.dir.ImagesDir(), "heart_icon.png"), "png"))

	require.NoError(t, h.pipeline.RunStage(context.Background(), 4))

	var images []types.ImageResult
	require.NoError(t, runstore.LoadJSON(h.dir.NoBGIndexPath(), &images))
	require.Len(t, images, 1)
	assert.Equal(t, "heart_icon", images[0].Name)
	assert.Zero(t, h.endpoint.calls)
}

func TestRunStage_RerunIsByteIdentical(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Run(context.Background(), testSummary, 1, 1)
	require.NoError(t, err)
	first, err := os.ReadFile(h.dir.ScriptPath())
	require.NoError(t, err)

	require.NoError(t, h.pipeline.RunStage(context.Background(), 1))
	second, err := os.ReadFile(h.dir.ScriptPath())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRun_RecorderFailuresOnlyWarn(t *testing.T) {
	h := newHarness(t)
	rec := newFakeRecorder()
	rec.err = errors.New("database unreachable")
	h.pipeline.WithRecorder(rec, uuid.New())

	_, err := h.pipeline.Run(context.Background(), testSummary, 1, 2)
	assert.NoError(t, err)
}

func TestRunStage_NoTools(t *testing.T) {
	h := newHarness(t)
	h.pipeline.clients.Tools = nil
	_, err := h.pipeline.Run(context.Background(), testSummary, 1, 5)
	require.NoError(t, err)

	err = h.pipeline.RunStage(context.Background(), 6)
	assert.ErrorIs(t, err, errNoTools)
}

func TestStageError(t *testing.T) {
	cause := errors.New("boom")
	err := &StageError{Stage: 3, Name: db.StepImages, Cause: cause}
	assert.EqualError(t, err, "stage 3 (images) failed: boom")
	assert.ErrorIs(t, err, cause)
}
