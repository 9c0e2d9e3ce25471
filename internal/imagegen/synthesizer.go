package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/types"
)

// Default tunables. Only AttemptsPerPrompt falls back when left at zero.
const (
	DefaultAttemptsPerPrompt = 3
	DefaultMinBytes          = 1000
	DefaultPause             = time.Second
	DefaultSuccessPause      = 500 * time.Millisecond
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Options tunes the retry loop.
type Options struct {
	Width  int
	Height int
	// MinBytes is the smallest payload accepted as a real image. Zero
	// accepts any non-empty payload.
	MinBytes          int
	AttemptsPerPrompt int
	// Pause separates failed attempts; SuccessPause follows a saved image.
	Pause        time.Duration
	SuccessPause time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinBytes < 0 {
		o.MinBytes = 0
	}
	if o.AttemptsPerPrompt <= 0 {
		o.AttemptsPerPrompt = DefaultAttemptsPerPrompt
	}
	return o
}

// Synthesizer renders assets to image files.
type Synthesizer struct {
	endpoint   Endpoint
	simplifier Simplifier
	opts       Options
	log        *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSynthesizer creates a Synthesizer. A nil simplifier truncates prompts
// instead of asking a model.
func NewSynthesizer(endpoint Endpoint, simplifier Simplifier, opts Options, logger *slog.Logger) *Synthesizer {
	if simplifier == nil {
		simplifier = TruncateSimplifier{}
	}
	return &Synthesizer{
		endpoint:   endpoint,
		simplifier: simplifier,
		opts:       opts.withDefaults(),
		log:        logging.OrNop(logger),
		sleep:      sleepContext,
	}
}

// WithSleep replaces the pause function. Tests use it to skip real waits.
func (s *Synthesizer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Synthesizer {
	s.sleep = fn
	return s
}

// Generate renders every asset into dir, in order. An asset that fails every
// attempt is reported as skipped; the returned error is set only when ctx is
// done or dir cannot be created.
func (s *Synthesizer) Generate(ctx context.Context, assets []types.Asset, dir string) ([]types.Outcome[types.ImageResult], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}

	names := NewNamer()
	outcomes := make([]types.Outcome[types.ImageResult], 0, len(assets))
	for i, asset := range assets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		name := names.Next(asset.Name)
		path := filepath.Join(dir, name+".png")

		result, err := s.generateOne(ctx, asset, name, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcomes, ctxErr
			}
			s.log.Warn("image skipped", "asset", asset.Name, "index", i, "error", err)
			outcomes = append(outcomes, types.Skip[types.ImageResult](err.Error()))
			continue
		}
		s.log.Info("image saved", "asset", asset.Name, "path", path, "simplified", result.Simplified)
		outcomes = append(outcomes, types.Ok(*result))
	}
	return outcomes, nil
}

func (s *Synthesizer) generateOne(ctx context.Context, asset types.Asset, name, path string) (*types.ImageResult, error) {
	prompt := asset.Prompt
	if prompt == "" {
		prompt = asset.Name
	}

	data, lastErr := s.attempt(ctx, prompt)
	simplified := false
	if data == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		short := s.simplifier.Simplify(ctx, prompt)
		s.log.Debug("retrying with simplified prompt", "asset", asset.Name, "prompt", short)
		prompt = short
		simplified = true
		data, lastErr = s.attempt(ctx, prompt)
	}
	if data == nil {
		return nil, fmt.Errorf("all %d attempts failed: %w", 2*s.opts.AttemptsPerPrompt, lastErr)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := s.sleep(ctx, s.opts.SuccessPause); err != nil {
		return nil, err
	}
	return &types.ImageResult{Name: name, Path: path, Prompt: prompt, Simplified: simplified}, nil
}

// attempt calls the endpoint up to AttemptsPerPrompt times with one prompt and
// returns the first acceptable payload.
func (s *Synthesizer) attempt(ctx context.Context, prompt string) ([]byte, error) {
	var lastErr error
	for n := 1; n <= s.opts.AttemptsPerPrompt; n++ {
		data, err := s.endpoint.Fetch(ctx, prompt, s.opts.Width, s.opts.Height)
		switch {
		case err != nil:
			lastErr = err
		case len(data) == 0:
			lastErr = fmt.Errorf("empty payload")
		case len(data) < s.opts.MinBytes:
			lastErr = fmt.Errorf("payload too small: %d bytes", len(data))
		default:
			return data, nil
		}
		s.log.Debug("image attempt failed", "attempt", n, "error", lastErr)
		if n < s.opts.AttemptsPerPrompt {
			if err := s.sleep(ctx, s.opts.Pause); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// Namer turns asset names into unique file-safe stems.
type Namer struct {
	seen map[string]int
}

// NewNamer returns an empty Namer.
func NewNamer() *Namer {
	return &Namer{seen: make(map[string]int)}
}

// Next sanitizes name and appends _2, _3... on collision.
func (n *Namer) Next(name string) string {
	base := SanitizeName(name)
	n.seen[base]++
	if c := n.seen[base]; c > 1 {
		candidate := fmt.Sprintf("%s_%d", base, c)
		for n.seen[candidate] > 0 {
			c++
			candidate = fmt.Sprintf("%s_%d", base, c)
		}
		n.seen[candidate]++
		return candidate
	}
	return base
}

// SanitizeName replaces every character outside [A-Za-z0-9_-] with '_'.
func SanitizeName(name string) string {
	out := unsafeName.ReplaceAllString(name, "_")
	if out == "" {
		return "image"
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
