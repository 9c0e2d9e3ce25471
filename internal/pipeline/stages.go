package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonathan/trial-explainer/internal/bgremoval"
	"github.com/jonathan/trial-explainer/internal/imagegen"
	"github.com/jonathan/trial-explainer/internal/layout"
	"github.com/jonathan/trial-explainer/internal/planning"
	"github.com/jonathan/trial-explainer/internal/rendering"
	"github.com/jonathan/trial-explainer/internal/runstore"
	"github.com/jonathan/trial-explainer/internal/types"
	"github.com/jonathan/trial-explainer/internal/video"
)

var (
	errNoLLM   = errors.New("no text generation client configured")
	errNoTools = errors.New("no media tools configured")
)

func (p *Pipeline) runScript(ctx context.Context) (any, error) {
	if p.clients.LLM == nil {
		return nil, errNoLLM
	}
	summary, err := os.ReadFile(p.dir.SummaryPath())
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}

	script, err := planning.NewPlanner(p.clients.LLM, p.log).GenerateScript(ctx, string(summary))
	if err != nil {
		return nil, err
	}
	if err := runstore.SaveJSON(p.dir.ScriptPath(), script); err != nil {
		return nil, err
	}

	p.report.Title = script.Title
	p.printer.PrintScript(script)
	p.record(func(ctx context.Context) error {
		return p.recorder.SetVideoTitle(ctx, p.runID, script.Title)
	})
	return script, nil
}

func (p *Pipeline) runAssets(ctx context.Context) (any, error) {
	if p.clients.LLM == nil {
		return nil, errNoLLM
	}
	script, err := p.loadScript()
	if err != nil {
		return nil, err
	}

	planner := planning.NewPlanner(p.clients.LLM, p.log)
	planner.RawSink = func(raw planning.SegmentRaw) {
		if err := runstore.SaveJSON(p.dir.SegmentRawPath(raw.SegmentIndex), raw); err != nil {
			p.log.Warn("failed to save raw asset response", "segment", raw.SegmentIndex, "error", err)
		}
	}
	assets, err := planner.GenerateAssets(ctx, script)
	if err != nil {
		return nil, err
	}
	if err := runstore.SaveJSON(p.dir.AssetsPath(), assets); err != nil {
		return nil, err
	}

	p.printer.PrintAssets(assets)
	return assets, nil
}

func (p *Pipeline) runImages(ctx context.Context) (any, error) {
	if p.clients.Images == nil {
		return nil, errors.New("no image endpoint configured")
	}
	var assets []types.Asset
	if err := runstore.LoadJSON(p.dir.AssetsPath(), &assets); err != nil {
		return nil, err
	}

	synth := imagegen.NewSynthesizer(p.clients.Images, p.clients.Simplifier, p.opts.Images, p.log)
	if p.opts.Sleep != nil {
		synth.WithSleep(p.opts.Sleep)
	}
	outcomes, err := synth.Generate(ctx, assets, p.dir.ImagesDir())
	if err != nil {
		return nil, err
	}

	images := types.Items(outcomes)
	if err := runstore.SaveJSON(p.dir.ImagesIndexPath(), images); err != nil {
		return nil, err
	}
	p.log.Info("images generated", "saved", len(images), "skipped", types.SkipCount(outcomes))
	p.printer.PrintImages("GENERATED IMAGES", images, types.SkipCount(outcomes))
	return images, nil
}

func (p *Pipeline) runBackgroundRemoval(ctx context.Context) (any, error) {
	images, err := p.loadImages(p.dir.ImagesIndexPath(), p.dir.ImagesDir())
	if err != nil {
		return nil, err
	}
	if p.clients.Remover == nil {
		p.log.Warn("background removal unavailable, passing images through")
	}

	results, err := bgremoval.NewStage(p.clients.Remover, p.log).Run(ctx, images, p.dir.NoBGDir())
	if err != nil {
		return nil, err
	}
	if err := runstore.SaveJSON(p.dir.NoBGIndexPath(), results); err != nil {
		return nil, err
	}

	removed := 0
	for _, r := range results {
		if r.BackgroundRemoved {
			removed++
		}
	}
	p.printer.PrintImages("BACKGROUND REMOVAL", results, len(results)-removed)
	return results, nil
}

func (p *Pipeline) runLayout(ctx context.Context) (any, error) {
	if p.clients.LLM == nil {
		return nil, errNoLLM
	}
	script, err := p.loadScript()
	if err != nil {
		return nil, err
	}
	var assets []types.Asset
	if err := runstore.LoadJSON(p.dir.AssetsPath(), &assets); err != nil {
		return nil, err
	}
	images, err := p.bestImages()
	if err != nil {
		return nil, err
	}

	slides, err := layout.NewPlanner(p.clients.LLM, p.log).PlanSlides(ctx, script, assets, images)
	if err != nil {
		return nil, err
	}
	if err := runstore.SaveJSON(p.dir.SlidesPath(), slides); err != nil {
		return nil, err
	}

	p.printer.PrintSlides(slides)
	return slides, nil
}

func (p *Pipeline) runRendering(ctx context.Context) (any, error) {
	if p.clients.Tools == nil {
		return nil, errNoTools
	}
	slides, err := p.loadSlides()
	if err != nil {
		return nil, err
	}
	images, err := p.bestImages()
	if err != nil {
		return nil, err
	}

	rasterizer, err := rendering.NewRasterizer(p.clients.Tools, p.log)
	if err != nil {
		return nil, err
	}
	pool := rendering.NewImagePool(images)
	if p.opts.MatchThreshold > 0 {
		pool.Threshold = p.opts.MatchThreshold
	}
	p.log.Debug("image pool built", "images", pool.Len())

	outcomes, err := rendering.NewStage(rasterizer, p.log).Run(ctx, slides, pool, p.dir.SlidesDir(), runstore.SlideFileName)
	if err != nil {
		return nil, err
	}

	rendered := types.Items(outcomes)
	if err := runstore.SaveJSON(p.dir.RenderedIndexPath(), rendered); err != nil {
		return nil, err
	}
	p.report.Slides = len(rendered)
	p.report.SkippedSlides = types.SkipCount(outcomes)
	return rendered, nil
}

func (p *Pipeline) runVideo(ctx context.Context) (any, error) {
	if p.clients.Tools == nil {
		return nil, errNoTools
	}
	slides, err := p.loadSlides()
	if err != nil {
		return nil, err
	}
	script, err := p.loadScript()
	if err != nil {
		return nil, err
	}

	composer := video.NewComposer(p.clients.Tools, p.clients.TTS, p.log)
	if p.opts.MusicVolume > 0 {
		composer.MusicVolume = p.opts.MusicVolume
	}
	result, err := composer.Compose(ctx, video.Input{
		Slides:    slides,
		Script:    script,
		SlidesDir: p.dir.SlidesDir(),
		ImageDirs: []string{p.dir.NoBGDir(), p.dir.ImagesDir()},
		AudioDir:  p.dir.AudioDir(),
		ClipsDir:  p.dir.ClipsDir(),
		Music:     p.opts.Music,
		Output:    p.dir.FinalVideoPath(),
	})
	if err != nil {
		return nil, err
	}

	p.report.Video = result.Output
	p.report.Duration = 0
	for _, d := range result.Durations {
		p.report.Duration += d
	}
	return result, nil
}

func (p *Pipeline) loadScript() (*types.Script, error) {
	var script types.Script
	if err := runstore.LoadJSON(p.dir.ScriptPath(), &script); err != nil {
		return nil, err
	}
	if p.report.Title == "" {
		p.report.Title = script.Title
	}
	return &script, nil
}

func (p *Pipeline) loadSlides() ([]types.SlideSpec, error) {
	var slides []types.SlideSpec
	if err := runstore.LoadJSON(p.dir.SlidesPath(), &slides); err != nil {
		return nil, err
	}
	return slides, nil
}

// loadImages reads an image index, rebuilding it from dir when the index
// file is missing.
func (p *Pipeline) loadImages(index, dir string) ([]types.ImageResult, error) {
	var images []types.ImageResult
	err := runstore.LoadJSON(index, &images)
	if err == nil {
		return images, nil
	}
	if !errors.Is(err, runstore.ErrNotFound) {
		return nil, err
	}
	p.log.Warn("image index missing, scanning directory", "dir", dir)
	return runstore.ScanImages(dir)
}

// bestImages prefers the background-removed set and falls back to the raw images.
func (p *Pipeline) bestImages() ([]types.ImageResult, error) {
	images, err := p.loadImages(p.dir.NoBGIndexPath(), p.dir.NoBGDir())
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		return images, nil
	}
	return p.loadImages(p.dir.ImagesIndexPath(), p.dir.ImagesDir())
}
