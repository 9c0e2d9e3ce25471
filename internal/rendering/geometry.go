package rendering

import "strings"

// Canvas defaults for rendered slides.
const (
	CanvasWidth     = 1920
	CanvasHeight    = 1080
	BackgroundColor = "0x2d3436"

	marginX = 50
	marginY = 100
)

// Position places a w×h image on a canvasW×canvasH canvas from a keyword
// string. Edge keywords pin the image to that edge with a fixed margin; any
// axis without an edge keyword is centered.
func Position(keyword string, canvasW, canvasH, w, h int) (x, y int) {
	k := strings.ToLower(keyword)
	switch {
	case strings.Contains(k, "left"):
		x = marginX
	case strings.Contains(k, "right"):
		x = canvasW - w - marginX
	default:
		x = (canvasW - w) / 2
	}
	switch {
	case strings.Contains(k, "top"):
		y = marginY
	case strings.Contains(k, "bottom"):
		y = canvasH - h - marginY
	default:
		y = (canvasH - h) / 2
	}
	return x, y
}

// ScaledSize is ratio applied to each canvas dimension.
func ScaledSize(ratio float64, canvasW, canvasH int) (w, h int) {
	return int(float64(canvasW) * ratio), int(float64(canvasH) * ratio)
}
