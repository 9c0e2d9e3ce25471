// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/trial-explainer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer. A nil
// writer discards output.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{out: out}
}

// Stepf prints a progress line such as "Step 3/7: Generating images...".
func (p *Printer) Stepf(stage, total int, format string, args ...any) {
	fmt.Fprintf(p.out, "Step %d/%d: %s\n", stage, total, fmt.Sprintf(format, args...)) //nolint:errcheck
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintScript outputs the video title and the section titles of a script.
func (p *Printer) PrintScript(script *types.Script) {
	if script == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:    %s\n", script.Title))
	sb.WriteString(fmt.Sprintf("Segments: %d\n\n", len(script.Segments)))
	for i, seg := range script.Segments {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, seg.SectionTitle))
		sb.WriteString(fmt.Sprintf("   %d words of narration\n", len(strings.Fields(seg.Narration))))
	}

	p.printBox("VIDEO SCRIPT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAssets outputs the planned assets grouped by segment.
func (p *Printer) PrintAssets(assets []types.Asset) {
	if len(assets) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total assets: %d\n\n", len(assets)))

	count := min(len(assets), maxItemsToShow)
	for i := 0; i < count; i++ {
		a := assets[i]
		sb.WriteString(fmt.Sprintf("[seg %d] %s (%s)\n", a.SegmentIndex+1, a.Name, a.Style))
	}
	if len(assets) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(assets)-maxItemsToShow))
	}

	p.printBox("VISUAL ASSETS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintImages outputs the images produced by synthesis or background removal.
func (p *Printer) PrintImages(title string, images []types.ImageResult, skipped int) {
	if len(images) == 0 && skipped == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Produced: %d   Skipped: %d\n\n", len(images), skipped))

	count := min(len(images), maxItemsToShow)
	for i := 0; i < count; i++ {
		img := images[i]
		sb.WriteString(fmt.Sprintf("• %s", filepath.Base(img.Path)))
		switch {
		case img.BackgroundRemoved:
			sb.WriteString(" (background removed)")
		case img.Simplified:
			sb.WriteString(" (simplified prompt)")
		}
		sb.WriteString("\n")
	}
	if len(images) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(images)-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSlides outputs the planned slide layouts with durations.
func (p *Printer) PrintSlides(slides []types.SlideSpec) {
	if len(slides) == 0 {
		return
	}

	var sb strings.Builder
	var total float64
	for i, s := range slides {
		total += s.SlideDuration
		names := make([]string, len(s.Images))
		for j, img := range s.Images {
			names[j] = img.Name
		}
		sb.WriteString(fmt.Sprintf("%d. %s (%.0fs)\n", i+1, s.SlideTitle, s.SlideDuration))
		if len(names) > 0 {
			sb.WriteString(fmt.Sprintf("   images: %s\n", strings.Join(names, ", ")))
		}
	}
	sb.WriteString(fmt.Sprintf("\nPlanned length: %.0fs", total))

	p.printBox("SLIDE LAYOUT", sb.String())
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	RunDir        string
	Title         string
	Stages        []int
	Slides        int
	SkippedSlides int
	Video         string
	Duration      float64
}

// PrintRunSummary outputs where the run's artifacts ended up.
func (p *Printer) PrintRunSummary(s RunSummary) {
	var sb strings.Builder
	if s.Title != "" {
		sb.WriteString(fmt.Sprintf("Title:    %s\n", s.Title))
	}
	sb.WriteString(fmt.Sprintf("Run dir:  %s\n", s.RunDir))
	if len(s.Stages) > 0 {
		stages := make([]string, len(s.Stages))
		for i, n := range s.Stages {
			stages[i] = fmt.Sprint(n)
		}
		sb.WriteString(fmt.Sprintf("Stages:   %s\n", strings.Join(stages, ", ")))
	}
	if s.Slides > 0 || s.SkippedSlides > 0 {
		sb.WriteString(fmt.Sprintf("Slides:   %d (%d skipped)\n", s.Slides, s.SkippedSlides))
	}
	if s.Video != "" {
		sb.WriteString(fmt.Sprintf("Video:    %s\n", s.Video))
	}
	if s.Duration > 0 {
		sb.WriteString(fmt.Sprintf("Length:   %.1fs\n", s.Duration))
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}
