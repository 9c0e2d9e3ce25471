package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStatusConstants(t *testing.T) {
	assert.Equal(t, "pending", StepStatusPending)
	assert.Equal(t, "in_progress", StepStatusInProgress)
	assert.Equal(t, "completed", StepStatusCompleted)
	assert.Equal(t, "failed", StepStatusFailed)
	assert.Equal(t, "skipped", StepStatusSkipped)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(StepStatusCompleted))
	assert.True(t, Terminal(StepStatusFailed))
	assert.True(t, Terminal(StepStatusSkipped))
	assert.False(t, Terminal(StepStatusPending))
	assert.False(t, Terminal(StepStatusInProgress))
}

func TestTransitionTiming(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("start sets started_at", func(t *testing.T) {
		timing := TransitionTiming(&RunStep{}, StepStatusInProgress, now)
		require.NotNil(t, timing.StartedAt)
		assert.Equal(t, now, *timing.StartedAt)
		assert.Nil(t, timing.CompletedAt)
		assert.Nil(t, timing.DurationMs)
	})

	t.Run("restart keeps original start", func(t *testing.T) {
		started := now.Add(-time.Minute)
		timing := TransitionTiming(&RunStep{StartedAt: &started}, StepStatusInProgress, now)
		assert.Nil(t, timing.StartedAt)
	})

	t.Run("completion records duration", func(t *testing.T) {
		started := now.Add(-1500 * time.Millisecond)
		timing := TransitionTiming(&RunStep{StartedAt: &started}, StepStatusCompleted, now)
		require.NotNil(t, timing.CompletedAt)
		require.NotNil(t, timing.DurationMs)
		assert.Equal(t, 1500, *timing.DurationMs)
	})

	t.Run("failure has no duration", func(t *testing.T) {
		started := now.Add(-time.Second)
		timing := TransitionTiming(&RunStep{StartedAt: &started}, StepStatusFailed, now)
		assert.NotNil(t, timing.CompletedAt)
		assert.Nil(t, timing.DurationMs)
	})
}
