// Package bgremoval strips backgrounds from synthesized images (stage 4).
package bgremoval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/types"
)

// ErrUnavailable means no background removal capability is installed.
var ErrUnavailable = errors.New("background removal unavailable")

// Suffix is appended to the stem of every processed image.
const Suffix = "_nobg"

// Remover turns encoded image bytes into a transparent-background PNG.
type Remover interface {
	Remove(ctx context.Context, image []byte) ([]byte, error)
}

// CommandRemover pipes images through the rembg CLI.
type CommandRemover struct {
	Command string
	Runner  media.Runner
}

// NewCommandRemover probes PATH for command and returns ErrUnavailable when
// it is missing.
func NewCommandRemover(command string, runner media.Runner) (*CommandRemover, error) {
	if strings.TrimSpace(command) == "" {
		command = "rembg"
	}
	if _, err := media.LookupTool(command); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if runner == nil {
		runner = media.ExecRunner{}
	}
	return &CommandRemover{Command: command, Runner: runner}, nil
}

// Remove implements Remover.
func (r *CommandRemover) Remove(ctx context.Context, image []byte) ([]byte, error) {
	out, err := r.Runner.Run(ctx, media.Command{Name: r.Command, Args: []string{"i", "-", "-"}, Stdin: image})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s produced no output", r.Command)
	}
	return out, nil
}

// Stage applies a Remover to every image. A nil remover passes images through.
type Stage struct {
	remover Remover
	log     *slog.Logger
}

// NewStage creates a Stage.
func NewStage(remover Remover, logger *slog.Logger) *Stage {
	return &Stage{remover: remover, log: logging.OrNop(logger)}
}

// Run returns one entry per input, in order. Entries whose removal succeeded
// point at the file written under dir; all others are returned unchanged.
// Only context cancellation is reported as an error.
func (s *Stage) Run(ctx context.Context, images []types.ImageResult, dir string) ([]types.ImageResult, error) {
	out := make([]types.ImageResult, len(images))
	copy(out, images)

	if s.remover == nil {
		s.log.Warn("skipping background removal; images keep their backgrounds")
		return out, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("cannot create background removal directory; keeping originals", "error", err)
		return out, nil
	}

	removed := 0
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		updated, err := s.removeOne(ctx, img, i, dir)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.log.Warn("background removal failed; using original", "image", img.Name, "error", err)
			continue
		}
		out[i] = updated
		removed++
	}
	s.log.Info("background removal complete", "removed", removed, "total", len(images))
	return out, nil
}

func (s *Stage) removeOne(ctx context.Context, img types.ImageResult, idx int, dir string) (types.ImageResult, error) {
	if img.Path == "" {
		return img, errors.New("image has no path")
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return img, fmt.Errorf("read image: %w", err)
	}

	result, err := s.remover.Remove(ctx, data)
	if err != nil {
		return img, err
	}

	name := img.Name
	if name == "" {
		name = fmt.Sprintf("image_%d", idx)
	}
	path := filepath.Join(dir, name+Suffix+".png")
	if err := os.WriteFile(path, result, 0o644); err != nil {
		return img, fmt.Errorf("write image: %w", err)
	}

	img.OriginalPath = img.Path
	img.Path = path
	img.BackgroundRemoved = true
	return img, nil
}
