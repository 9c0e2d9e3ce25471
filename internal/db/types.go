package db

import (
	"time"

	"github.com/google/uuid"
)

// Run represents a pipeline run record
type Run struct {
	ID            uuid.UUID  `json:"id"`
	RunKey        string     `json:"run_key"`
	RunDir        string     `json:"run_dir"`
	SummarySource string     `json:"summary_source"`
	VideoTitle    string     `json:"video_title,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Artifact step names, one per stage output plus the source summary.
const (
	StepSummary        = "summary"
	StepScript         = "script"
	StepAssets         = "assets"
	StepImages         = "images"
	StepImagesNoBG     = "images_nobg"
	StepSlides         = "slides"
	StepRenderedSlides = "rendered_slides"
	StepFinalVideo     = "final_video"
)

// StageSteps maps a stage number (1-7) to its step name.
var StageSteps = map[int]string{
	1: StepScript,
	2: StepAssets,
	3: StepImages,
	4: StepImagesNoBG,
	5: StepSlides,
	6: StepRenderedSlides,
	7: StepFinalVideo,
}
