package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runStepColumns = `id, run_id, step, category, status, started_at, completed_at,
	duration_ms, artifact_id, error_message, parameters, created_at, updated_at`

func scanRunStep(row rowScanner) (*RunStep, error) {
	var step RunStep
	var parametersJSON []byte
	if err := row.Scan(&step.ID, &step.RunID, &step.Step, &step.Category, &step.Status,
		&step.StartedAt, &step.CompletedAt, &step.DurationMs, &step.ArtifactID,
		&step.ErrorMessage, &parametersJSON, &step.CreatedAt, &step.UpdatedAt); err != nil {
		return nil, err
	}
	if parametersJSON != nil {
		_ = json.Unmarshal(parametersJSON, &step.Parameters)
	}
	return &step, nil
}

// CreateRunStep creates a run step record. Re-running a stage resets the
// existing row to the new status.
func (db *DB) CreateRunStep(ctx context.Context, runID uuid.UUID, input *RunStepInput) (*RunStep, error) {
	var parametersJSON []byte
	if input.Parameters != nil {
		var err error
		parametersJSON, err = json.Marshal(input.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameters: %w", err)
		}
	}

	step, err := scanRunStep(db.pool.QueryRow(ctx,
		`INSERT INTO run_steps (run_id, step, category, status, parameters)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id, step) DO UPDATE
		 SET status = EXCLUDED.status, parameters = EXCLUDED.parameters,
		     started_at = NULL, completed_at = NULL, duration_ms = NULL,
		     error_message = NULL, updated_at = NOW()
		 RETURNING `+runStepColumns,
		runID, input.Step, input.Category, input.Status, parametersJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create run step: %w", err)
	}
	return step, nil
}

// GetRunStep retrieves a run step by run_id and step name
func (db *DB) GetRunStep(ctx context.Context, runID uuid.UUID, stepName string) (*RunStep, error) {
	step, err := scanRunStep(db.pool.QueryRow(ctx,
		`SELECT `+runStepColumns+` FROM run_steps WHERE run_id = $1 AND step = $2`,
		runID, stepName,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run step: %w", err)
	}
	return step, nil
}

// ListRunSteps retrieves all steps for a run, optionally filtered by status
func (db *DB) ListRunSteps(ctx context.Context, runID uuid.UUID, status string) ([]RunStep, error) {
	query := `SELECT ` + runStepColumns + ` FROM run_steps WHERE run_id = $1`
	args := []any{runID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		step, err := scanRunStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// StepTiming holds the timestamp columns written by a status transition.
type StepTiming struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMs  *int
}

// TransitionTiming computes the timing columns for moving current to status at now.
func TransitionTiming(current *RunStep, status string, now time.Time) StepTiming {
	var t StepTiming
	if status == StepStatusInProgress && current.StartedAt == nil {
		t.StartedAt = &now
	}
	if Terminal(status) {
		t.CompletedAt = &now
	}
	if status == StepStatusCompleted && current.StartedAt != nil {
		dur := int(now.Sub(*current.StartedAt).Milliseconds())
		t.DurationMs = &dur
	}
	return t
}

// UpdateRunStepStatus moves a run step to status, recording timing and any error
func (db *DB) UpdateRunStepStatus(ctx context.Context, runID uuid.UUID, stepName, status string, errorMsg *string) error {
	current, err := db.GetRunStep(ctx, runID, stepName)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("step not found: %s", stepName)
	}

	t := TransitionTiming(current, status, time.Now())
	_, err = db.pool.Exec(ctx,
		`UPDATE run_steps
		 SET status = $1, started_at = COALESCE($2, started_at), completed_at = $3,
		     duration_ms = $4, error_message = $5,
		     artifact_id = (SELECT id FROM artifacts WHERE run_id = $6 AND step = $7),
		     updated_at = NOW()
		 WHERE run_id = $6 AND step = $7`,
		status, t.StartedAt, t.CompletedAt, t.DurationMs, errorMsg, runID, stepName,
	)
	if err != nil {
		return fmt.Errorf("failed to update run step status: %w", err)
	}
	return nil
}
