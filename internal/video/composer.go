// Package video turns rendered slides into a narrated MP4 (stage 7).
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/runstore"
	"github.com/jonathan/trial-explainer/internal/tts"
	"github.com/jonathan/trial-explainer/internal/types"
)

// ErrNoClips is returned when no slide produced a clip.
var ErrNoClips = errors.New("no slide clips were rendered")

const (
	fadeSeconds        = 0.5
	DefaultMusicVolume = 0.15
)

// NarrationError reports that audio could not be produced for a slide.
// It always aborts the stage.
type NarrationError struct {
	Slide int
	Cause error
}

func (e *NarrationError) Error() string {
	return fmt.Sprintf("failed to generate audio for slide %d: %v", e.Slide, e.Cause)
}

func (e *NarrationError) Unwrap() error {
	return e.Cause
}

// Input describes one composition.
type Input struct {
	Slides []types.SlideSpec
	// Script supplies narration; nil falls back to slide captions.
	Script *types.Script
	// SlidesDir holds slide_001.png...; ImageDirs are searched when a slide file is missing.
	SlidesDir string
	ImageDirs []string
	AudioDir  string
	ClipsDir  string
	Music     string
	Output    string
}

// Result summarizes a composition.
type Result struct {
	Output  string
	Clips   int
	Skipped []int
	// Durations holds the reconciled length of each rendered clip, by slide index.
	Durations map[int]float64
}

// Composer renders per-slide clips and joins them.
type Composer struct {
	tools       *media.Tools
	tts         tts.Provider
	log         *slog.Logger
	MusicVolume float64
}

// NewComposer creates a Composer.
func NewComposer(tools *media.Tools, provider tts.Provider, logger *slog.Logger) *Composer {
	return &Composer{tools: tools, tts: provider, log: logging.OrNop(logger), MusicVolume: DefaultMusicVolume}
}

// Reconcile returns the longer of the planned and measured durations so
// narration is never cut off.
func Reconcile(planned, measured float64) float64 {
	if measured > planned {
		return measured
	}
	return planned
}

// Narration picks the spoken text for slide i: the script segment at the same
// index, then the slide caption, then its title.
func Narration(i int, script *types.Script, slide types.SlideSpec) string {
	if script != nil {
		if seg, ok := script.Segment(i); ok && strings.TrimSpace(seg.Narration) != "" {
			return seg.Narration
		}
	}
	if strings.TrimSpace(slide.Caption) != "" {
		return slide.Caption
	}
	return slide.SlideTitle
}

// Compose produces in.Output. Any narration failure aborts; a slide whose
// image is missing or whose clip fails to render is skipped.
func (c *Composer) Compose(ctx context.Context, in Input) (*Result, error) {
	if c.tts == nil {
		return nil, tts.ErrNoProvider
	}
	for _, dir := range []string{in.AudioDir, in.ClipsDir, filepath.Dir(in.Output)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	res := &Result{Output: in.Output, Durations: make(map[int]float64)}
	var clips []string
	for i, slide := range in.Slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := Narration(i, in.Script, slide)
		if strings.TrimSpace(text) == "" {
			return nil, &NarrationError{Slide: i, Cause: errors.New("slide has no narration text")}
		}
		audio := filepath.Join(in.AudioDir, fmt.Sprintf("slide_%03d", i+1)+c.tts.Ext())
		if err := c.tts.Synthesize(ctx, text, audio); err != nil {
			return nil, &NarrationError{Slide: i, Cause: err}
		}

		duration := slide.SlideDuration
		if measured, err := c.tools.ProbeDuration(ctx, audio); err != nil {
			c.log.Warn("could not measure narration", "slide", i, "error", err)
		} else {
			duration = Reconcile(duration, measured)
		}
		if duration <= 0 {
			duration = fadeSeconds * 2
		}

		image := c.slideImage(i, slide, in)
		if image == "" {
			c.log.Error("no image found for slide, skipping", "slide", i)
			res.Skipped = append(res.Skipped, i)
			continue
		}

		clip := filepath.Join(in.ClipsDir, fmt.Sprintf("slide_%03d.mp4", i+1))
		if err := c.tools.FFmpeg(ctx, ClipArgs(image, audio, duration, clip)...); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error("clip render failed, skipping slide", "slide", i, "error", err)
			res.Skipped = append(res.Skipped, i)
			continue
		}
		c.log.Info("slide clip rendered", "slide", i, "duration", duration)
		res.Durations[i] = duration
		clips = append(clips, clip)
	}

	if len(clips) == 0 {
		return nil, ErrNoClips
	}
	res.Clips = len(clips)

	joined := filepath.Join(in.ClipsDir, "joined.mp4")
	if err := c.concat(ctx, clips, in.ClipsDir, joined); err != nil {
		return nil, err
	}

	if in.Music != "" {
		if _, err := os.Stat(in.Music); err != nil {
			c.log.Warn("music track not found, skipping", "music", in.Music)
		} else {
			if err := c.tools.FFmpeg(ctx, MusicArgs(joined, in.Music, c.MusicVolume, in.Output)...); err != nil {
				return nil, fmt.Errorf("mix background music: %w", err)
			}
			c.log.Info("final video saved", "path", in.Output, "clips", res.Clips, "music", true)
			return res, nil
		}
	}

	if err := os.Rename(joined, in.Output); err != nil {
		return nil, fmt.Errorf("move final video: %w", err)
	}
	c.log.Info("final video saved", "path", in.Output, "clips", res.Clips, "music", false)
	return res, nil
}

func (c *Composer) concat(ctx context.Context, clips []string, dir, out string) error {
	list := filepath.Join(dir, "concat.txt")
	if err := os.WriteFile(list, []byte(ConcatList(clips)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	if err := c.tools.FFmpeg(ctx, ConcatArgs(list, out)...); err != nil {
		return fmt.Errorf("concatenate clips: %w", err)
	}
	return nil
}

// slideImage finds the still for slide i: the rendered slide, else the first
// named layout image in ImageDirs, else any PNG in the slides or first image dir.
func (c *Composer) slideImage(i int, slide types.SlideSpec, in Input) string {
	rendered := filepath.Join(in.SlidesDir, runstore.SlideFileName(i))
	if fileExists(rendered) {
		return rendered
	}
	if len(slide.Images) > 0 {
		name := slide.Images[0].Name
		for _, dir := range append([]string{in.SlidesDir}, in.ImageDirs...) {
			for _, candidate := range []string{name + ".png", name + "_nobg.png"} {
				if p := filepath.Join(dir, candidate); fileExists(p) {
					return p
				}
			}
		}
	}
	search := []string{in.SlidesDir}
	if len(in.ImageDirs) > 0 {
		search = append(search, in.ImageDirs[0])
	}
	for _, dir := range search {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.png"))
		sort.Strings(matches)
		if len(matches) > 0 {
			c.log.Warn("using fallback image for slide", "slide", i, "image", matches[0])
			return matches[0]
		}
	}
	return ""
}

// ClipArgs holds image for duration seconds with fades, muxed with audio.
func ClipArgs(image, audio string, duration float64, out string) []string {
	d := formatSeconds(duration)
	fadeOut := formatSeconds(duration - fadeSeconds)
	return []string{
		"-loop", "1", "-i", image, "-i", audio,
		"-vf", fmt.Sprintf("fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s", formatSeconds(fadeSeconds), fadeOut, formatSeconds(fadeSeconds)),
		"-c:v", "libx264", "-t", d, "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k", "-ar", "44100", "-ac", "2",
		out,
	}
}

// ConcatArgs joins the clips named in list without re-encoding video.
func ConcatArgs(list, out string) []string {
	return []string{
		"-f", "concat", "-safe", "0", "-i", list,
		"-c:v", "copy", "-c:a", "aac", "-b:a", "192k", "-ar", "44100",
		out,
	}
}

// MusicArgs mixes a looped music track under the narration, ending with the shorter input.
func MusicArgs(video, music string, volume float64, out string) []string {
	if volume <= 0 {
		volume = DefaultMusicVolume
	}
	filter := fmt.Sprintf("[1:a]volume=%s[a1];[0:a][a1]amix=inputs=2:duration=shortest[aout]", formatSeconds(volume))
	return []string{
		"-i", video, "-stream_loop", "-1", "-i", music,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "192k",
		out,
	}
}

// ConcatList renders a concat demuxer list in clip order.
func ConcatList(clips []string) string {
	var sb strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return sb.String()
}

func formatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
