package video

import (
	"context"
	"errors"
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

type fakeTTS struct {
	texts  []string
	paths  []string
	failOn int
	ext    string
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) Ext() string {
	if f.ext == "" {
		return ".wav"
	}
	return f.ext
}

func (f *fakeTTS) Synthesize(_ context.Context, text, out string) error {
	f.texts = append(f.texts, text)
	f.paths = append(f.paths, out)
	if f.failOn > 0 && len(f.texts) == f.failOn {
		return errors.New("voice service down")
	}
	return os.WriteFile(out, []byte("wav"), 0o644)
}

type fixture struct {
	root   string
	in     Input
	runner *mediatest.Runner
}

func newFixture(t *testing.T, slides int) *fixture {
	t.Helper()
	root := t.TempDir()
	in := Input{
		SlidesDir: filepath.Join(root, "slides"),
		ImageDirs: []string{filepath.Join(root, "images")},
		AudioDir:  filepath.Join(root, "audio"),
		ClipsDir:  filepath.Join(root, "clips"),
		Output:    filepath.Join(root, "final_video.mp4"),
	}
	require.NoError(t, os.MkdirAll(in.SlidesDir, 0o755))
	for i := 0; i < slides; i++ {
		in.Slides = append(in.Slides, types.SlideSpec{SlideTitle: "Slide", Caption: "Caption", SlideDuration: 6})
		name := filepath.Join(in.SlidesDir, "slide_00"+string(rune('1'+i))+".png")
		require.NoError(t, os.WriteFile(name, []byte("png"), 0o644))
	}
	return &fixture{root: root, in: in, runner: &mediatest.Runner{Duration: "9.2"}}
}

func (f *fixture) composer(provider *fakeTTS) *Composer {
	return NewComposer(media.NewTools("ffmpeg", "ffprobe", f.runner), provider, nil)
}

func TestReconcile(t *testing.T) {
	assert.Equal(t, 9.2, Reconcile(6, 9.2))
	assert.Equal(t, 8.0, Reconcile(8, 3.1))
}

func TestNarration_Priority(t *testing.T) {
	script := &types.Script{Segments: []types.Segment{{Narration: "From the script."}, {Narration: "  "}}}
	slide := types.SlideSpec{SlideTitle: "Title", Caption: "Caption"}

	assert.Equal(t, "From the script.", Narration(0, script, slide))
	assert.Equal(t, "Caption", Narration(1, script, slide))
	assert.Equal(t, "Caption", Narration(5, script, slide))
	assert.Equal(t, "Title", Narration(0, nil, types.SlideSpec{SlideTitle: "Title"}))
}

func TestCompose_ClipsInOrder(t *testing.T) {
	f := newFixture(t, 3)
	f.in.Script = &types.Script{Segments: []types.Segment{{Narration: "one"}, {Narration: "two"}, {Narration: "three"}}}
	provider := &fakeTTS{}

	res, err := f.composer(provider).Compose(context.Background(), f.in)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, provider.texts)
	assert.Equal(t, 3, res.Clips)
	assert.Equal(t, 9.2, res.Durations[0])
	assert.FileExists(t, f.in.Output)

	ffmpeg := f.runner.Named("ffmpeg")
	require.Len(t, ffmpeg, 4)
	clip := strings.Join(ffmpeg[0].Args, " ")
	assert.Contains(t, clip, "-loop 1 -i "+filepath.Join(f.in.SlidesDir, "slide_001.png"))
	assert.Contains(t, clip, "fade=t=in:st=0:d=0.5,fade=t=out:st=8.7:d=0.5")
	assert.Contains(t, clip, "-t 9.2")
	assert.Contains(t, strings.Join(ffmpeg[3].Args, " "), "-f concat -safe 0")

	list, err := os.ReadFile(filepath.Join(f.in.ClipsDir, "concat.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(list)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "slide_001.mp4")
	assert.Contains(t, lines[2], "slide_003.mp4")
}

func TestCompose_AudioNamedByProviderFormat(t *testing.T) {
	f := newFixture(t, 2)
	provider := &fakeTTS{ext: ".mp3"}

	_, err := f.composer(provider).Compose(context.Background(), f.in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(f.in.AudioDir, "slide_001.mp3"),
		filepath.Join(f.in.AudioDir, "slide_002.mp3"),
	}, provider.paths)
	assert.FileExists(t, filepath.Join(f.in.AudioDir, "slide_001.mp3"))
	assert.NoFileExists(t, filepath.Join(f.in.AudioDir, "slide_001.wav"))

	probes := f.runner.Named("ffprobe")
	require.NotEmpty(t, probes)
	assert.Contains(t, strings.Join(probes[0].Args, " "), "slide_001.mp3")
}

func TestCompose_TTSFailureAborts(t *testing.T) {
	f := newFixture(t, 3)
	provider := &fakeTTS{failOn: 2}

	_, err := f.composer(provider).Compose(context.Background(), f.in)

	var narrationErr *NarrationError
	require.ErrorAs(t, err, &narrationErr)
	assert.Equal(t, 1, narrationErr.Slide)
	assert.NoFileExists(t, f.in.Output)
}

func TestCompose_ClipFailureSkipsSlide(t *testing.T) {
	f := newFixture(t, 3)
	f.runner.Handle = func(cmd media.Command) ([]byte, error) {
		if cmd.Name == "ffprobe" {
			return []byte("2.0"), nil
		}
		if strings.HasSuffix(cmd.Args[len(cmd.Args)-1], "slide_002.mp4") {
			return nil, &media.CommandError{Tool: "ffmpeg", Stderr: "encoder error"}
		}
		return nil, mediatest.TouchOutput(cmd)
	}

	res, err := f.composer(&fakeTTS{}).Compose(context.Background(), f.in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Clips)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, 6.0, res.Durations[0])
}

func TestCompose_NoClips(t *testing.T) {
	f := newFixture(t, 0)
	f.in.Slides = []types.SlideSpec{{SlideTitle: "Orphan", SlideDuration: 5}}

	_, err := f.composer(&fakeTTS{}).Compose(context.Background(), f.in)
	assert.ErrorIs(t, err, ErrNoClips)
}

func TestCompose_ConcatFailureIsFatal(t *testing.T) {
	f := newFixture(t, 1)
	f.runner.Handle = func(cmd media.Command) ([]byte, error) {
		if cmd.Name == "ffprobe" {
			return []byte("1.0"), nil
		}
		if strings.Contains(strings.Join(cmd.Args, " "), "-f concat") {
			return nil, &media.CommandError{Tool: "ffmpeg", Stderr: "bad list"}
		}
		return nil, mediatest.TouchOutput(cmd)
	}

	_, err := f.composer(&fakeTTS{}).Compose(context.Background(), f.in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad list")
}

func TestCompose_WithMusic(t *testing.T) {
	f := newFixture(t, 1)
	f.in.Music = filepath.Join(f.root, "music.mp3")
	require.NoError(t, os.WriteFile(f.in.Music, []byte("mp3"), 0o644))

	_, err := f.composer(&fakeTTS{}).Compose(context.Background(), f.in)
	require.NoError(t, err)

	ffmpeg := f.runner.Named("ffmpeg")
	last := strings.Join(ffmpeg[len(ffmpeg)-1].Args, " ")
	assert.Contains(t, last, "-stream_loop -1 -i "+f.in.Music)
	assert.Contains(t, last, "[1:a]volume=0.15[a1];[0:a][a1]amix=inputs=2:duration=shortest[aout]")
	assert.FileExists(t, f.in.Output)
}

func TestCompose_FallbackImage(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, os.MkdirAll(f.in.ImageDirs[0], 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.in.ImageDirs[0], "heart.png"), []byte("png"), 0o644))
	f.in.Slides = []types.SlideSpec{{SlideTitle: "T", SlideDuration: 5, Images: []types.SlideImage{{Name: "heart"}}}}

	res, err := f.composer(&fakeTTS{}).Compose(context.Background(), f.in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Clips)
	assert.Contains(t, strings.Join(f.runner.Named("ffmpeg")[0].Args, " "), filepath.Join(f.in.ImageDirs[0], "heart.png"))
}

func TestConcatList_EscapesQuotes(t *testing.T) {
	list := ConcatList([]string{"/tmp/it's/a.mp4"})
	assert.Equal(t, "file '/tmp/it'\\''s/a.mp4'\n", list)
}
