package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Tools bundles the ffmpeg and ffprobe binaries with the runner that executes them.
type Tools struct {
	FFmpegPath  string
	FFprobePath string
	Runner      Runner
}

// NewTools returns Tools with "ffmpeg"/"ffprobe" and an ExecRunner filling empty values.
func NewTools(ffmpeg, ffprobe string, runner Runner) *Tools {
	if strings.TrimSpace(ffmpeg) == "" {
		ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(ffprobe) == "" {
		ffprobe = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tools{FFmpegPath: ffmpeg, FFprobePath: ffprobe, Runner: runner}
}

// FFmpeg runs ffmpeg with -y prepended so outputs are overwritten.
func (t *Tools) FFmpeg(ctx context.Context, args ...string) error {
	_, err := t.Runner.Run(ctx, Command{Name: t.FFmpegPath, Args: append([]string{"-y"}, args...)})
	return err
}

// ProbeDuration returns the container duration of path in seconds.
func (t *Tools) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := t.Runner.Run(ctx, Command{Name: t.FFprobePath, Args: []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}})
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(out))
	d, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe parse duration %q: %w", value, err)
	}
	return d, nil
}
