package rendering

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Text overlay geometry.
const (
	TitleSize      = 64
	CaptionSize    = 42
	titleTop       = 40
	shadowOffset   = 2
	captionLineH   = 50
	captionPadding = 20
	captionBottom  = 30
	captionMargin  = 50
	panelAlpha     = 180
)

// Faces holds the title and caption typefaces. A font.Face keeps glyph
// buffers, so a Faces value must not be shared between goroutines.
type Faces struct {
	Title   font.Face
	Caption font.Face
}

type parsedFonts struct {
	bold, regular *opentype.Font
}

var (
	fonts      parsedFonts
	fontsErr   error
	parseFonts sync.Once
)

// NewFaces returns fresh faces for the bundled Go fonts at the overlay sizes.
// The fonts are parsed once per process; each call gets its own faces.
func NewFaces() (*Faces, error) {
	parseFonts.Do(func() {
		if fonts.bold, fontsErr = opentype.Parse(gobold.TTF); fontsErr != nil {
			fontsErr = fmt.Errorf("parse font: %w", fontsErr)
			return
		}
		if fonts.regular, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			fontsErr = fmt.Errorf("parse font: %w", fontsErr)
		}
	})
	if fontsErr != nil {
		return nil, fontsErr
	}
	title, err := newFace(fonts.bold, TitleSize)
	if err != nil {
		return nil, err
	}
	caption, err := newFace(fonts.regular, CaptionSize)
	if err != nil {
		return nil, err
	}
	return &Faces{Title: title, Caption: caption}, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// Overlay draws title and caption onto a copy of src. The title is centered
// near the top over a black drop shadow. The caption is word-wrapped to the
// canvas width less 100px and drawn over a translucent panel at the bottom.
func Overlay(src image.Image, title, caption string, faces *Faces) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	width, height := bounds.Dx(), bounds.Dy()

	if title = strings.TrimSpace(title); title != "" {
		x := (width - measure(faces.Title, title)) / 2
		drawText(dst, faces.Title, title, x+shadowOffset, titleTop+shadowOffset, color.Black)
		drawText(dst, faces.Title, title, x, titleTop, color.White)
	}

	if caption = strings.TrimSpace(caption); caption != "" {
		lines := WrapText(caption, width-2*captionMargin, func(s string) int { return measure(faces.Caption, s) })
		panelH := len(lines)*captionLineH + 2*captionPadding
		panelY := height - panelH - captionBottom
		panel := image.Rect(captionMargin, panelY, width-captionMargin, height-captionBottom).Add(bounds.Min)
		draw.Draw(dst, panel, image.NewUniform(color.NRGBA{A: panelAlpha}), image.Point{}, draw.Over)
		for i, line := range lines {
			x := (width - measure(faces.Caption, line)) / 2
			drawText(dst, faces.Caption, line, x, panelY+captionPadding+i*captionLineH, color.White)
		}
	}
	return dst
}

// WrapText greedily packs words into lines no wider than maxWidth. A single
// word wider than maxWidth gets a line of its own.
func WrapText(text string, maxWidth int, width func(string) int) []string {
	var lines, current []string
	for _, word := range strings.Fields(text) {
		current = append(current, word)
		candidate := strings.Join(current, " ")
		if width(candidate) <= maxWidth {
			continue
		}
		if len(current) > 1 {
			lines = append(lines, strings.Join(current[:len(current)-1], " "))
			current = []string{word}
		} else {
			lines = append(lines, candidate)
			current = nil
		}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawText draws s with its top edge at y.
func drawText(dst draw.Image, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}
