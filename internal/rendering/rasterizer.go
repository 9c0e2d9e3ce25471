package rendering

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/types"
)

// Placement is one resolved image on the canvas.
type Placement struct {
	Name   string
	Path   string
	Method string
	X, Y   int
	Width  int
	Height int
}

// Rasterizer composites slides with ffmpeg and draws text in Go. It owns its
// font faces and renders one slide at a time.
type Rasterizer struct {
	tools  *media.Tools
	faces  *Faces
	log    *slog.Logger
	Width  int
	Height int
}

// NewRasterizer creates a Rasterizer for a 1920x1080 canvas.
func NewRasterizer(tools *media.Tools, logger *slog.Logger) (*Rasterizer, error) {
	faces, err := NewFaces()
	if err != nil {
		return nil, &RenderError{Message: "failed to load fonts", Cause: err}
	}
	return &Rasterizer{
		tools:  tools,
		faces:  faces,
		log:    logging.OrNop(logger),
		Width:  CanvasWidth,
		Height: CanvasHeight,
	}, nil
}

// Place resolves every image reference of spec against pool. Unresolved
// references are logged and dropped.
func (r *Rasterizer) Place(spec types.SlideSpec, pool *ImagePool) []Placement {
	var placements []Placement
	for _, ref := range spec.Images {
		path, method, ok := pool.Resolve(ref.Name)
		if !ok {
			r.log.Warn("image not found, skipping", "image", ref.Name)
			continue
		}
		ratio := ref.SizeRatio
		if ratio <= 0 || ratio > 1 {
			ratio = types.DefaultSizeRatio
		}
		w, h := ScaledSize(ratio, r.Width, r.Height)
		x, y := Position(ref.Position, r.Width, r.Height, w, h)
		if method != MatchExact {
			r.log.Info("fuzzy matched image", "image", ref.Name, "file", filepath.Base(path), "method", method)
		}
		placements = append(placements, Placement{Name: ref.Name, Path: path, Method: method, X: x, Y: y, Width: w, Height: h})
	}
	return placements
}

// CompositeArgs builds the ffmpeg arguments that draw placements over a solid
// background and write a single frame to out.
func (r *Rasterizer) CompositeArgs(placements []Placement, out string) []string {
	args := []string{"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%dx%d:d=1", BackgroundColor, r.Width, r.Height)}
	if len(placements) == 0 {
		return append(args, "-frames:v", "1", out)
	}

	parts := make([]string, 0, 2*len(placements))
	for i, p := range placements {
		args = append(args, "-i", p.Path)
		parts = append(parts, fmt.Sprintf("[%d:v]scale=%d:%d[img%d]", i+1, p.Width, p.Height, i))
	}
	prev := "[0:v]"
	for i, p := range placements {
		step := fmt.Sprintf("%s[img%d]overlay=%d:%d", prev, i, p.X, p.Y)
		if i < len(placements)-1 {
			prev = fmt.Sprintf("[tmp%d]", i)
			step += prev
		}
		parts = append(parts, step)
	}
	return append(args, "-filter_complex", strings.Join(parts, ";"), "-frames:v", "1", out)
}

// Render writes slide idx to out and returns its record.
func (r *Rasterizer) Render(ctx context.Context, idx int, spec types.SlideSpec, pool *ImagePool, out string) (*types.RenderedSlide, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, &RenderError{Message: "failed to create slides directory", Cause: err}
	}

	placements := r.Place(spec, pool)
	if err := r.tools.FFmpeg(ctx, r.CompositeArgs(placements, out)...); err != nil {
		return nil, &RenderError{Message: fmt.Sprintf("failed to composite slide %d", idx), Cause: err}
	}

	if strings.TrimSpace(spec.SlideTitle) != "" || strings.TrimSpace(spec.Caption) != "" {
		if err := r.drawText(out, spec); err != nil {
			// An untitled frame must not pass for a rendered slide.
			_ = os.Remove(out)
			return nil, err
		}
	}

	return &types.RenderedSlide{
		Index:    idx,
		Title:    spec.SlideTitle,
		Caption:  spec.Caption,
		Path:     out,
		Duration: spec.SlideDuration,
	}, nil
}

func (r *Rasterizer) drawText(path string, spec types.SlideSpec) error {
	f, err := os.Open(path)
	if err != nil {
		return &RenderError{Message: "failed to open composited slide", Cause: err}
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return &RenderError{Message: "failed to decode composited slide", Cause: err}
	}

	result := Overlay(img, spec.SlideTitle, spec.Caption, r.faces)

	tmp := path + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return &RenderError{Message: "failed to write slide", Cause: err}
	}
	if err := png.Encode(w, result); err != nil {
		_ = w.Close()
		_ = os.Remove(tmp)
		return &RenderError{Message: "failed to encode slide", Cause: err}
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(tmp)
		return &RenderError{Message: "failed to write slide", Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &RenderError{Message: "failed to replace slide", Cause: err}
	}
	return nil
}

// Stage renders every slide in order (stage 6).
type Stage struct {
	rasterizer *Rasterizer
	log        *slog.Logger
}

// NewStage creates a Stage.
func NewStage(rasterizer *Rasterizer, logger *slog.Logger) *Stage {
	return &Stage{rasterizer: rasterizer, log: logging.OrNop(logger)}
}

// Run renders specs into dir as slide_001.png, slide_002.png, ... A slide that
// fails to render is logged and reported as skipped; the rest continue.
func (s *Stage) Run(ctx context.Context, specs []types.SlideSpec, pool *ImagePool, dir string, fileName func(int) string) ([]types.Outcome[types.RenderedSlide], error) {
	outcomes := make([]types.Outcome[types.RenderedSlide], 0, len(specs))
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := filepath.Join(dir, fileName(i))
		slide, err := s.rasterizer.Render(ctx, i, spec, pool, out)
		if err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			s.log.Error("failed to create slide", "index", i, "error", err)
			outcomes = append(outcomes, types.Skip[types.RenderedSlide](err.Error()))
			continue
		}
		s.log.Info("slide created", "index", i, "path", out)
		outcomes = append(outcomes, types.Ok(*slide))
	}
	s.log.Info("slide creation complete", "created", len(specs)-types.SkipCount(outcomes), "total", len(specs))
	return outcomes, nil
}
