package db

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus constants
const (
	StepStatusPending    = "pending"
	StepStatusInProgress = "in_progress"
	StepStatusCompleted  = "completed"
	StepStatusFailed     = "failed"
	StepStatusSkipped    = "skipped"
)

// StepCategory constants
const (
	StepCategoryIngestion   = "ingestion"
	StepCategoryPlanning    = "planning"
	StepCategoryMedia       = "media"
	StepCategoryComposition = "composition"
)

// StepCategories maps each step name to its category.
var StepCategories = map[string]string{
	StepSummary:        StepCategoryIngestion,
	StepScript:         StepCategoryPlanning,
	StepAssets:         StepCategoryPlanning,
	StepImages:         StepCategoryMedia,
	StepImagesNoBG:     StepCategoryMedia,
	StepSlides:         StepCategoryPlanning,
	StepRenderedSlides: StepCategoryComposition,
	StepFinalVideo:     StepCategoryComposition,
}

// RunStep represents a single stage execution for a pipeline run
type RunStep struct {
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	Step         string         `json:"step"`
	Category     string         `json:"category"`
	Status       string         `json:"status"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   *int           `json:"duration_ms,omitempty"`
	ArtifactID   *uuid.UUID     `json:"artifact_id,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RunStepInput represents input for creating a run step
type RunStepInput struct {
	Step       string
	Category   string
	Status     string
	Parameters map[string]any
}

// Terminal reports whether status ends a step.
func Terminal(status string) bool {
	switch status {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}
