// Package planning turns a trial summary into a narrated script (stage 1) and
// a flat list of visual assets (stage 2).
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/prompts"
	"github.com/jonathan/trial-explainer/internal/schemas"
	"github.com/jonathan/trial-explainer/internal/types"
)

// longTitleWords is the section title length that earns a warning.
const longTitleWords = 10

// Planner runs the two planning stages against a text generation client.
type Planner struct {
	client llm.Client
	log    *slog.Logger

	// RawSink, if set, receives every stage 2 response before it is validated.
	RawSink func(SegmentRaw)
}

// SegmentRaw is the debug record of one stage 2 model call.
type SegmentRaw struct {
	SegmentIndex int    `json:"segment_index"`
	RawResponse  string `json:"raw_response"`
	Parsed       any    `json:"parsed_response"`
	Extractor    string `json:"extractor,omitempty"`
}

// NewPlanner creates a Planner. A nil logger discards output.
func NewPlanner(client llm.Client, logger *slog.Logger) *Planner {
	return &Planner{client: client, log: logging.OrNop(logger)}
}

// GenerateScript asks the model for a script and validates it before returning.
// Any parse or validation failure fails the stage; there is no partial acceptance.
func (p *Planner) GenerateScript(ctx context.Context, summary string) (*types.Script, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, &ValidationError{Stage: 1, Field: "summary", Message: "trial summary is empty"}
	}

	prompt, err := prompts.Render("script", map[string]string{"Summary": summary})
	if err != nil {
		return nil, fmt.Errorf("build script prompt: %w", err)
	}

	text, err := p.client.GenerateContent(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, &llm.APICallError{Message: "script generation failed", Cause: err}
	}

	raw, err := llm.RecoverRaw(text)
	if err != nil {
		return nil, err
	}

	script, err := DecodeScript(raw)
	if err != nil {
		return nil, err
	}

	for i, seg := range script.Segments {
		if n := len(strings.Fields(seg.SectionTitle)); n > longTitleWords {
			p.log.Warn("section title is long", "segment", i, "words", n)
		}
	}
	p.log.Info("script validated", "title", script.Title, "segments", len(script.Segments))
	return script, nil
}

// DecodeScript validates raw script JSON and decodes it.
// Rejection happens exactly when a required key is missing, has the wrong
// type, or holds a blank string, or when segments is empty.
func DecodeScript(raw []byte) (*types.Script, error) {
	if err := schemas.ValidateScript(raw); err != nil {
		return nil, &ValidationError{Stage: 1, Field: "script", Message: "script does not match schema", Cause: err}
	}

	var script types.Script
	if err := json.Unmarshal(raw, &script); err != nil {
		return nil, &llm.ParseError{Message: "decode script", Cause: err}
	}
	if err := script.Validate(); err != nil {
		return nil, &ValidationError{Stage: 1, Field: "script", Message: "script failed validation", Cause: err}
	}
	return &script, nil
}
