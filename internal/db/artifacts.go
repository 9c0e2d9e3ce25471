package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/trial-explainer/internal/types"
)

// loadArtifact decodes the JSON artifact stored for step, or returns nil when
// none was saved.
func loadArtifact[T any](ctx context.Context, db *DB, runID uuid.UUID, step string) (*T, error) {
	content, err := db.GetArtifact(ctx, runID, step)
	if err != nil {
		return nil, err
	}
	return decodeArtifact[T](step, content)
}

func decodeArtifact[T any](step string, content []byte) (*T, error) {
	if content == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", step, err)
	}
	return &v, nil
}

// GetScriptByRunID loads the stage 1 script for a run
func (db *DB) GetScriptByRunID(ctx context.Context, runID uuid.UUID) (*types.Script, error) {
	return loadArtifact[types.Script](ctx, db, runID, StepScript)
}

// GetAssetsByRunID loads the stage 2 asset plan for a run
func (db *DB) GetAssetsByRunID(ctx context.Context, runID uuid.UUID) ([]types.Asset, error) {
	assets, err := loadArtifact[[]types.Asset](ctx, db, runID, StepAssets)
	if err != nil || assets == nil {
		return nil, err
	}
	return *assets, nil
}

// GetSlidesByRunID loads the stage 5 slide layouts for a run
func (db *DB) GetSlidesByRunID(ctx context.Context, runID uuid.UUID) ([]types.SlideSpec, error) {
	slides, err := loadArtifact[[]types.SlideSpec](ctx, db, runID, StepSlides)
	if err != nil || slides == nil {
		return nil, err
	}
	return *slides, nil
}

// GetRenderedSlidesByRunID loads the stage 6 rendered slide index for a run
func (db *DB) GetRenderedSlidesByRunID(ctx context.Context, runID uuid.UUID) ([]types.RenderedSlide, error) {
	slides, err := loadArtifact[[]types.RenderedSlide](ctx, db, runID, StepRenderedSlides)
	if err != nil || slides == nil {
		return nil, err
	}
	return *slides, nil
}
