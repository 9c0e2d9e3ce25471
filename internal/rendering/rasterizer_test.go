package rendering

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/media/mediatest"
	"github.com/jonathan/trial-explainer/internal/types"
)

// pngRunner writes a small solid PNG wherever ffmpeg is told to write.
func pngRunner(t *testing.T, fail func(out string) bool) *mediatest.Runner {
	return &mediatest.Runner{Handle: func(cmd media.Command) ([]byte, error) {
		out := cmd.Args[len(cmd.Args)-1]
		if fail != nil && fail(out) {
			return nil, &media.CommandError{Tool: cmd.Name, Args: cmd.Args, Stderr: "Invalid filter graph"}
		}
		img := image.NewRGBA(image.Rect(0, 0, 320, 180))
		for i := range img.Pix {
			img.Pix[i] = 0x40
		}
		f, err := os.Create(out)
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, png.Encode(f, img))
		return nil, nil
	}}
}

func newTestRasterizer(t *testing.T, runner media.Runner) *Rasterizer {
	r, err := NewRasterizer(media.NewTools("ffmpeg", "ffprobe", runner), nil)
	require.NoError(t, err)
	return r
}

func TestCompositeArgs_NoImages(t *testing.T) {
	r := newTestRasterizer(t, &mediatest.Runner{})
	args := r.CompositeArgs(nil, "out.png")
	assert.Equal(t, []string{"-f", "lavfi", "-i", "color=c=0x2d3436:s=1920x1080:d=1", "-frames:v", "1", "out.png"}, args)
}

func TestCompositeArgs_OverlayChain(t *testing.T) {
	r := newTestRasterizer(t, &mediatest.Runner{})
	args := r.CompositeArgs([]Placement{
		{Path: "a.png", X: 50, Y: 324, Width: 768, Height: 432},
		{Path: "b.png", X: 1102, Y: 100, Width: 384, Height: 216},
	}, "out.png")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i a.png -i b.png")
	assert.Contains(t, joined, "[1:v]scale=768:432[img0];[2:v]scale=384:216[img1];[0:v][img0]overlay=50:324[tmp0];[tmp0][img1]overlay=1102:100 -frames:v 1 out.png")
}

func TestRender_WritesSlide(t *testing.T) {
	pool, _ := poolOf(t, "heart_icon_nobg")
	runner := pngRunner(t, nil)
	r := newTestRasterizer(t, runner)
	out := filepath.Join(t.TempDir(), "slides", "slide_001.png")

	spec := types.SlideSpec{
		SlideTitle:    "Why This Study",
		Caption:       "A new pill for weak hearts.",
		SlideDuration: 7,
		Images: []types.SlideImage{
			{Name: "Heart Icon", Position: "left", SizeRatio: 0.5},
			{Name: "missing_thing", Position: "right", SizeRatio: 0.3},
		},
	}
	slide, err := r.Render(context.Background(), 0, spec, pool, out)
	require.NoError(t, err)

	assert.Equal(t, types.RenderedSlide{Index: 0, Title: "Why This Study", Caption: "A new pill for weak hearts.", Path: out, Duration: 7}, *slide)
	require.Len(t, runner.Commands, 1)
	assert.Equal(t, "-y", runner.Commands[0].Args[0])
	assert.Equal(t, 1, strings.Count(strings.Join(runner.Commands[0].Args, " "), "scale="))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 180), img.Bounds())
	assert.NoFileExists(t, out+".tmp")
}

func TestRender_ToolFailure(t *testing.T) {
	r := newTestRasterizer(t, pngRunner(t, func(string) bool { return true }))
	_, err := r.Render(context.Background(), 2, types.SlideSpec{SlideTitle: "T", SlideDuration: 5}, NewImagePool(nil), filepath.Join(t.TempDir(), "s.png"))

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	var cmdErr *media.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, err.Error(), "Invalid filter graph")
}

func TestStage_SkipsFailedSlides(t *testing.T) {
	runner := pngRunner(t, func(out string) bool { return strings.HasSuffix(out, "slide_002.png") })
	stage := NewStage(newTestRasterizer(t, runner), nil)
	dir := t.TempDir()
	specs := []types.SlideSpec{
		{SlideTitle: "One", SlideDuration: 5},
		{SlideTitle: "Two", SlideDuration: 5},
		{SlideTitle: "Three", SlideDuration: 5},
	}

	outcomes, err := stage.Run(context.Background(), specs, NewImagePool(nil), dir, func(i int) string {
		return fmt.Sprintf("slide_%03d.png", i+1)
	})
	require.NoError(t, err)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[1].Skipped)
	slides := types.Items(outcomes)
	require.Len(t, slides, 2)
	assert.Equal(t, 0, slides[0].Index)
	assert.Equal(t, 2, slides[1].Index)
	assert.Equal(t, filepath.Join(dir, "slide_003.png"), slides[1].Path)
}

func TestRender_TextFailureRemovesFrame(t *testing.T) {
	runner := &mediatest.Runner{Handle: func(cmd media.Command) ([]byte, error) {
		return nil, os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte("not a png"), 0o644)
	}}
	r := newTestRasterizer(t, runner)
	out := filepath.Join(t.TempDir(), "slide_001.png")

	_, err := r.Render(context.Background(), 0, types.SlideSpec{SlideTitle: "Why This Study", SlideDuration: 5}, NewImagePool(nil), out)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Contains(t, err.Error(), "decode")
	assert.NoFileExists(t, out)
}
