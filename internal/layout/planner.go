// Package layout asks the model for one slide layout per script segment (stage 5).
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/prompts"
	"github.com/jonathan/trial-explainer/internal/types"
)

// Duration bounds for slides whose layout omits slide_duration.
const (
	MinDuration = 5
	MaxDuration = 12
)

// Planner produces SlideSpecs. It never fails because of a model response.
type Planner struct {
	client llm.Client
	log    *slog.Logger
}

// NewPlanner creates a Planner. A nil logger discards output.
func NewPlanner(client llm.Client, logger *slog.Logger) *Planner {
	return &Planner{client: client, log: logging.OrNop(logger)}
}

// DefaultDuration is half the narration word count, clamped to [MinDuration, MaxDuration].
func DefaultDuration(narration string) float64 {
	d := len(strings.Fields(narration)) / 2
	if d < MinDuration {
		d = MinDuration
	}
	if d > MaxDuration {
		d = MaxDuration
	}
	return float64(d)
}

// DefaultSlide is the deterministic layout used when the model gives nothing usable.
func DefaultSlide(seg types.Segment) types.SlideSpec {
	return types.SlideSpec{
		SlideTitle:    seg.SectionTitle,
		Caption:       seg.EducationalGoal,
		SlideDuration: DefaultDuration(seg.Narration),
		Images:        []types.SlideImage{},
	}
}

// ImageNames returns the file stems of images, in order.
func ImageNames(images []types.ImageResult) []string {
	names := make([]string, 0, len(images))
	for _, img := range images {
		stem := strings.TrimSuffix(filepath.Base(img.Path), filepath.Ext(img.Path))
		if stem == "" || stem == "." {
			stem = img.Name
		}
		names = append(names, stem)
	}
	return names
}

// PlanSlides returns one SlideSpec per segment, index-aligned with script.Segments.
// Only context cancellation and prompt construction failures are returned as errors.
func (p *Planner) PlanSlides(ctx context.Context, script *types.Script, assets []types.Asset, images []types.ImageResult) ([]types.SlideSpec, error) {
	if script == nil {
		return nil, fmt.Errorf("layout: script is nil")
	}
	names := ImageNames(images)
	layoutContext, err := buildContext(script, assets, names)
	if err != nil {
		return nil, err
	}

	slides := make([]types.SlideSpec, 0, len(script.Segments))
	for idx, seg := range script.Segments {
		if err := ctx.Err(); err != nil {
			return slides, err
		}
		segJSON, err := json.Marshal(seg)
		if err != nil {
			return nil, fmt.Errorf("marshal segment %d: %w", idx, err)
		}
		prompt, err := prompts.Render("layout", map[string]string{
			"Context":   layoutContext,
			"Segment":   string(segJSON),
			"Available": strings.Join(names, ", "),
		})
		if err != nil {
			return nil, fmt.Errorf("build layout prompt: %w", err)
		}

		text, err := p.client.GenerateContent(ctx, prompt, llm.TierStandard)
		if err != nil {
			if ctx.Err() != nil {
				return slides, ctx.Err()
			}
			p.log.Warn("layout call failed; using default slide", "segment", idx, "error", err)
			slides = append(slides, DefaultSlide(seg))
			continue
		}
		slide, ok := DecodeSlide(text, seg)
		if !ok {
			p.log.Warn("layout response unusable; using default slide", "segment", idx)
		}
		slides = append(slides, slide)
	}

	p.log.Info("slides planned", "slides", len(slides))
	return slides, nil
}

func buildContext(script *types.Script, assets []types.Asset, names []string) (string, error) {
	scriptJSON, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal script context: %w", err)
	}
	if assets == nil {
		assets = []types.Asset{}
	}
	assetsJSON, err := json.MarshalIndent(assets, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal assets context: %w", err)
	}
	namesJSON, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal image names: %w", err)
	}
	return prompts.Render("layout-context", map[string]string{
		"Script": string(scriptJSON),
		"Assets": string(assetsJSON),
		"Images": string(namesJSON),
	})
}

// DecodeSlide recovers a slide object from a model response and fills any
// missing field from seg. The bool is false when the default slide was used.
func DecodeSlide(text string, seg types.Segment) (types.SlideSpec, bool) {
	parsed, err := llm.RecoverJSON(text)
	if err != nil {
		return DefaultSlide(seg), false
	}
	obj, ok := unwrapSlide(parsed)
	if !ok {
		return DefaultSlide(seg), false
	}

	slide := types.SlideSpec{}
	if s, ok := obj["slide_title"].(string); ok {
		slide.SlideTitle = strings.TrimSpace(s)
	}
	if s, ok := obj["caption"].(string); ok {
		slide.Caption = strings.TrimSpace(s)
	}
	if d, ok := obj["slide_duration"].(float64); ok && d > 0 {
		slide.SlideDuration = d
	}
	slide.Images = decodeImages(obj["images"])

	if slide.SlideTitle == "" {
		slide.SlideTitle = seg.SectionTitle
	}
	if _, present := obj["caption"]; !present {
		slide.Caption = seg.EducationalGoal
	}
	if slide.SlideDuration == 0 {
		slide.SlideDuration = DefaultDuration(seg.Narration)
	}
	return slide, true
}

// unwrapSlide accepts a slide object or a {"slides": [slide, ...]} wrapper.
func unwrapSlide(parsed any) (map[string]any, bool) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	if list, ok := obj["slides"].([]any); ok {
		if _, hasTitle := obj["slide_title"]; !hasTitle {
			if len(list) == 0 {
				return nil, false
			}
			first, ok := list[0].(map[string]any)
			return first, ok
		}
	}
	return obj, true
}

// decodeImages keeps every entry that names an image, bare strings included.
func decodeImages(raw any) []types.SlideImage {
	images := []types.SlideImage{}
	list, ok := raw.([]any)
	if !ok {
		return images
	}
	for _, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var img types.SlideImage
		if err := json.Unmarshal(data, &img); err != nil {
			continue
		}
		img.Name = strings.TrimSpace(img.Name)
		if img.Name == "" {
			continue
		}
		img.Position = strings.ToLower(strings.TrimSpace(img.Position))
		img.Normalize()
		images = append(images, img)
	}
	return images
}
