package db

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/types"
)

func TestDecodeArtifact_Script(t *testing.T) {
	script := types.Script{
		Title: "Inside the HEART Trial",
		Intro: "Welcome.",
		Segments: []types.Segment{
			{SectionTitle: "Why", Narration: "n", ImageDescription: "d", EducationalGoal: "g"},
		},
	}
	content, err := json.Marshal(script)
	require.NoError(t, err)

	got, err := decodeArtifact[types.Script](StepScript, content)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, script, *got)
}

func TestDecodeArtifact_Slides(t *testing.T) {
	content := []byte(`[{"slide_title": "Why", "caption": "c", "slide_duration": 6, "images": ["heart_icon"]}]`)

	got, err := decodeArtifact[[]types.SlideSpec](StepSlides, content)
	require.NoError(t, err)
	require.Len(t, *got, 1)
	require.Len(t, (*got)[0].Images, 1)
	assert.Equal(t, "heart_icon", (*got)[0].Images[0].Name)
}

func TestDecodeArtifact_Missing(t *testing.T) {
	got, err := decodeArtifact[types.Script](StepScript, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeArtifact_Invalid(t *testing.T) {
	_, err := decodeArtifact[types.Script](StepScript, []byte(`{"video_title": 5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal script")
}
