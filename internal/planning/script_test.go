package planning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/llm/llmtest"
	"github.com/jonathan/trial-explainer/internal/runstore"
)

const scriptResponse = `Here is your script:
{
  "video_title": "Inside the HEART Trial",
  "video_intro": "Let's see what joining this study involves.",
  "segments": [
    {
      "section_title": "Why This Study",
      "narration": "Doctors want to learn if a new pill helps weak hearts pump better.",
      "image_description": "A cartoon heart getting a gentle boost",
      "educational_goal": "Explain the study purpose"
    },
    {
      "section_title": "What You Will Do",
      "narration": "You will visit the clinic once a month for a quick check-up.",
      "image_description": "A calendar with clinic visits circled",
      "educational_goal": "Describe participant commitments"
    }
  ]
}
Let me know if you need changes.`

func TestGenerateScript_RecoversAndValidates(t *testing.T) {
	client := llmtest.NewScripted(scriptResponse)
	planner := NewPlanner(client, nil)

	script, err := planner.GenerateScript(context.Background(), "A phase 3 study of drug X in heart failure.")
	require.NoError(t, err)

	assert.Equal(t, "Inside the HEART Trial", script.Title)
	require.Len(t, script.Segments, 2)
	assert.Equal(t, "Why This Study", script.Segments[0].SectionTitle)
	assert.Equal(t, "What You Will Do", script.Segments[1].SectionTitle)

	require.Equal(t, 1, client.Calls())
	assert.Contains(t, client.Prompts[0], "A phase 3 study of drug X in heart failure.")
	assert.Equal(t, llm.TierAdvanced, client.Tiers[0])
}

func TestGenerateScript_EmptySummary(t *testing.T) {
	client := llmtest.NewScripted()
	_, err := NewPlanner(client, nil).GenerateScript(context.Background(), "  \n")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "summary", ve.Field)
	assert.Zero(t, client.Calls())
}

func TestGenerateScript_ClientError(t *testing.T) {
	client := &llmtest.Scripted{}
	client.Push(llmtest.Reply{Err: errors.New("quota exceeded")})

	_, err := NewPlanner(client, nil).GenerateScript(context.Background(), "summary")
	var apiErr *llm.APICallError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateScript_Unparseable(t *testing.T) {
	client := llmtest.NewScripted("I cannot help with that.")
	_, err := NewPlanner(client, nil).GenerateScript(context.Background(), "summary")

	var parseErr *llm.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestGenerateScript_InvalidShapeFailsStage(t *testing.T) {
	client := llmtest.NewScripted(`{"video_title": "T", "video_intro": "I", "segments": []}`)
	_, err := NewPlanner(client, nil).GenerateScript(context.Background(), "summary")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Stage)
}

func TestGenerateScript_ByteIdenticalArtifact(t *testing.T) {
	dir := t.TempDir()
	var artifacts [][]byte

	for i := 0; i < 2; i++ {
		client := llmtest.NewScripted(scriptResponse)
		script, err := NewPlanner(client, nil).GenerateScript(context.Background(), "same summary")
		require.NoError(t, err)

		path := filepath.Join(dir, fmt.Sprintf("run%d", i), runstore.ScriptFile)
		require.NoError(t, runstore.SaveJSON(path, script))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		artifacts = append(artifacts, data)
	}

	assert.Equal(t, artifacts[0], artifacts[1])
}

func TestDecodeScript(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid",
			doc: `{"video_title": "T", "video_intro": "I", "segments": [
				{"section_title": "A", "narration": "B", "image_description": "C", "educational_goal": "D"}]}`,
		},
		{name: "missing segments", doc: `{"video_title": "T", "video_intro": "I"}`, wantErr: true},
		{name: "empty segments", doc: `{"video_title": "T", "video_intro": "I", "segments": []}`, wantErr: true},
		{
			name: "segment missing goal",
			doc: `{"video_title": "T", "video_intro": "I", "segments": [
				{"section_title": "A", "narration": "B", "image_description": "C"}]}`,
			wantErr: true,
		},
		{
			name: "segment blank narration",
			doc: `{"video_title": "T", "video_intro": "I", "segments": [
				{"section_title": "A", "narration": " ", "image_description": "C", "educational_goal": "D"}]}`,
			wantErr: true,
		},
		{name: "top-level list", doc: `[1, 2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := DecodeScript([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, script)
				return
			}
			require.NoError(t, err)
			assert.Len(t, script.Segments, 1)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Stage: 2, Field: "segments[1].assets", Message: "bad", Cause: errors.New("missing prompt")}
	assert.Equal(t, "stage 2 validation error in segments[1].assets: bad: missing prompt", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "missing prompt")
}
