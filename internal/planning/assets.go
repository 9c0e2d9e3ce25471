package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/prompts"
	"github.com/jonathan/trial-explainer/internal/schemas"
	"github.com/jonathan/trial-explainer/internal/types"
)

// Extractor pulls an asset list out of one known response shape.
type Extractor struct {
	Name    string
	Extract func(parsed any) ([]any, bool)
}

// AssetExtractors lists the accepted response shapes in priority order.
// The first extractor that yields a list wins.
var AssetExtractors = []Extractor{
	{Name: "segments[0].visual_assets", Extract: extractSegmentsVisualAssets},
	{Name: "visual_assets", Extract: keyExtractor("visual_assets")},
	{Name: "assets", Extract: keyExtractor("assets")},
	{Name: "list", Extract: extractBareList},
}

// ExtractAssetList runs AssetExtractors over a parsed response and reports
// which one matched.
func ExtractAssetList(parsed any) ([]any, string, bool) {
	for _, ex := range AssetExtractors {
		if list, ok := ex.Extract(parsed); ok {
			return list, ex.Name, true
		}
	}
	return nil, "", false
}

func extractSegmentsVisualAssets(parsed any) ([]any, bool) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	segments, ok := obj["segments"].([]any)
	if !ok || len(segments) == 0 {
		return nil, false
	}
	first, ok := segments[0].(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := first["visual_assets"].([]any)
	return list, ok
}

func keyExtractor(key string) func(any) ([]any, bool) {
	return func(parsed any) ([]any, bool) {
		obj, ok := parsed.(map[string]any)
		if !ok {
			return nil, false
		}
		list, ok := obj[key].([]any)
		return list, ok
	}
}

func extractBareList(parsed any) ([]any, bool) {
	list, ok := parsed.([]any)
	return list, ok
}

// GenerateAssets plans the visual assets for every segment of script, one
// model call per segment, and returns them as one flat list in segment order.
// A segment whose response cannot be unwrapped or validated fails the stage.
func (p *Planner) GenerateAssets(ctx context.Context, script *types.Script) ([]types.Asset, error) {
	if err := script.Validate(); err != nil {
		return nil, &ValidationError{Stage: 2, Field: "script", Message: "input script is invalid", Cause: err}
	}

	scriptJSON, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal script context: %w", err)
	}
	scriptContext, err := prompts.Render("assets-context", map[string]string{"Script": string(scriptJSON)})
	if err != nil {
		return nil, fmt.Errorf("build assets context: %w", err)
	}

	var all []types.Asset
	for idx, seg := range script.Segments {
		prompt, err := prompts.Render("assets", map[string]string{
			"Context":          scriptContext,
			"Index":            strconv.Itoa(idx + 1),
			"SectionTitle":     seg.SectionTitle,
			"ImageDescription": seg.ImageDescription,
		})
		if err != nil {
			return nil, fmt.Errorf("build assets prompt: %w", err)
		}

		text, err := p.client.GenerateContent(ctx, prompt, llm.TierStandard)
		if err != nil {
			return nil, &llm.APICallError{Message: fmt.Sprintf("asset generation failed for segment %d", idx), Cause: err}
		}

		assets, err := p.decodeSegmentAssets(idx, text)
		if err != nil {
			return nil, err
		}
		all = append(all, assets...)
	}

	p.log.Info("assets planned", "segments", len(script.Segments), "assets", len(all))
	return all, nil
}

func (p *Planner) decodeSegmentAssets(idx int, text string) ([]types.Asset, error) {
	record := SegmentRaw{SegmentIndex: idx, RawResponse: text}
	parsed, parseErr := llm.RecoverJSON(text)
	record.Parsed = parsed

	var list []any
	if parseErr == nil {
		var ok bool
		list, record.Extractor, ok = ExtractAssetList(parsed)
		if !ok {
			list = nil
		}
	}
	if p.RawSink != nil {
		p.RawSink(record)
	}

	if parseErr != nil {
		return nil, parseErr
	}
	if list == nil {
		return nil, &ValidationError{Stage: 2, Field: fmt.Sprintf("segments[%d]", idx), Message: "response holds no asset list"}
	}
	p.log.Debug("assets extracted", "segment", idx, "extractor", record.Extractor, "count", len(list))

	return DecodeAssets(idx, list)
}

// DecodeAssets validates an extracted asset list and tags each asset with its segment.
func DecodeAssets(segmentIndex int, list []any) ([]types.Asset, error) {
	// The owning segment is assigned here, whatever the model claimed.
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			delete(obj, "segment_index")
		}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("re-encode asset list: %w", err)
	}
	field := fmt.Sprintf("segments[%d].assets", segmentIndex)
	if err := schemas.ValidateAssets(raw); err != nil {
		return nil, &ValidationError{Stage: 2, Field: field, Message: "assets do not match schema", Cause: err}
	}

	var assets []types.Asset
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, &llm.ParseError{Message: "decode assets", Cause: err}
	}
	for i := range assets {
		assets[i].SegmentIndex = segmentIndex
		if err := assets[i].Validate(); err != nil {
			return nil, &ValidationError{Stage: 2, Field: field, Message: fmt.Sprintf("asset %d failed validation", i), Cause: err}
		}
	}
	return assets, nil
}
