// Package runstore owns the on-disk layout of a pipeline run.
//
// Every stage reads its inputs from and writes its artifact to a single
// run-scoped directory, so a run can be inspected or resumed at any stage
// boundary. Slide-level files are positionally indexed (slide_001.png, ...)
// so ordering survives without any sidecar metadata.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/trial-explainer/internal/types"
)

// Artifact file names, relative to the run directory.
const (
	ScriptFile        = "step1_script.json"
	AssetsFile        = "step2_assets.json"
	ImagesFile        = "step3_images.json"
	NoBGFile          = "step4_images_nobg.json"
	SlidesFile        = "step5_slides.json"
	RenderedFile      = "step6_rendered_slides.json"
	FinalVideoFile    = "final_video.mp4"
	StateFile         = "pipeline_state.json"
	SummaryFile       = "summary.txt"
	ImagesDirName     = "images"
	NoBGDirName       = "no_bg"
	SlidesDirName     = "slides"
	AudioDirName      = "audio"
	ClipsDirName      = "clips"
	LogFile           = "run.log"
	segmentRawPattern = "step2_segment%d_raw.json"
)

// ErrNotFound is returned by LoadJSON when an artifact has not been written yet.
var ErrNotFound = errors.New("artifact not found")

// Dir is a run-scoped output directory.
type Dir struct {
	Root  string
	RunID string
}

// NewRunID returns a short random identifier for a new run.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// New creates a fresh run directory under parent. An empty runID is generated.
func New(parent, runID string) (*Dir, error) {
	if runID == "" {
		runID = NewRunID()
	}
	d := &Dir{Root: filepath.Join(parent, runID), RunID: runID}
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return d, nil
}

// Open attaches to an existing run directory.
func Open(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open run directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open run directory: %s is not a directory", path)
	}
	return &Dir{Root: path, RunID: filepath.Base(path)}, nil
}

// Path joins elem onto the run root.
func (d *Dir) Path(elem ...string) string {
	return filepath.Join(append([]string{d.Root}, elem...)...)
}

func (d *Dir) ScriptPath() string        { return d.Path(ScriptFile) }
func (d *Dir) AssetsPath() string        { return d.Path(AssetsFile) }
func (d *Dir) ImagesIndexPath() string   { return d.Path(ImagesFile) }
func (d *Dir) NoBGIndexPath() string     { return d.Path(NoBGFile) }
func (d *Dir) SlidesPath() string        { return d.Path(SlidesFile) }
func (d *Dir) RenderedIndexPath() string { return d.Path(RenderedFile) }
func (d *Dir) FinalVideoPath() string    { return d.Path(FinalVideoFile) }
func (d *Dir) StatePath() string         { return d.Path(StateFile) }
func (d *Dir) SummaryPath() string       { return d.Path(SummaryFile) }
func (d *Dir) LogPath() string           { return d.Path(LogFile) }
func (d *Dir) ImagesDir() string         { return d.Path(ImagesDirName) }
func (d *Dir) NoBGDir() string           { return d.Path(ImagesDirName, NoBGDirName) }
func (d *Dir) SlidesDir() string         { return d.Path(SlidesDirName) }
func (d *Dir) AudioDir() string          { return d.Path(AudioDirName) }
func (d *Dir) ClipsDir() string          { return d.Path(ClipsDirName) }

// SegmentRawPath is where the raw stage 2 response for segment i is kept for debugging.
func (d *Dir) SegmentRawPath(i int) string {
	return d.Path(fmt.Sprintf(segmentRawPattern, i))
}

// SlideImagePath returns the rasterized slide path for a zero-based slide index.
func (d *Dir) SlideImagePath(i int) string {
	return filepath.Join(d.SlidesDir(), SlideFileName(i))
}

// SlideFileName is the positional file name of slide i (zero-based).
func SlideFileName(i int) string {
	return fmt.Sprintf("slide_%03d.png", i+1)
}

// SaveJSON writes v as indented JSON, creating parent directories.
// Output is deterministic for a given value.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadJSON decodes the JSON file at path into v.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteText writes a plain text artifact such as the ingested summary.
func WriteText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// ScanImages lists the PNG files in dir as image results, sorted by name.
// It rebuilds a stage index when only the image files survived.
func ScanImages(dir string) ([]types.ImageResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var results []types.ImageResult
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		results = append(results, types.ImageResult{
			Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// State is the append-only progress record kept in pipeline_state.json.
type State struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	CompletedStages []int     `json:"completed_stages"`
	Error           string    `json:"error,omitempty"`
	FailedStage     int       `json:"failed_stage,omitempty"`
}

// LoadState reads the run state, starting a new one if none exists.
func (d *Dir) LoadState() (*State, error) {
	var st State
	err := LoadJSON(d.StatePath(), &st)
	if errors.Is(err, ErrNotFound) {
		now := time.Now().UTC()
		return &State{RunID: d.RunID, StartedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// MarkStage records a stage as complete and clears any earlier error.
func (d *Dir) MarkStage(stage int) error {
	st, err := d.LoadState()
	if err != nil {
		return err
	}
	if !st.Completed(stage) {
		st.CompletedStages = append(st.CompletedStages, stage)
	}
	st.Error = ""
	st.FailedStage = 0
	st.UpdatedAt = time.Now().UTC()
	return SaveJSON(d.StatePath(), st)
}

// MarkFailed records the error that stopped the run.
func (d *Dir) MarkFailed(stage int, cause error) error {
	st, err := d.LoadState()
	if err != nil {
		return err
	}
	st.FailedStage = stage
	if cause != nil {
		st.Error = cause.Error()
	}
	st.UpdatedAt = time.Now().UTC()
	return SaveJSON(d.StatePath(), st)
}

// Completed reports whether stage has finished in this run.
func (s *State) Completed(stage int) bool {
	for _, c := range s.CompletedStages {
		if c == stage {
			return true
		}
	}
	return false
}
