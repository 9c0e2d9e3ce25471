package rendering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition(t *testing.T) {
	w, h := ScaledSize(0.4, CanvasWidth, CanvasHeight)
	assert.Equal(t, 768, w)
	assert.Equal(t, 432, h)

	tests := []struct {
		keyword string
		x, y    int
	}{
		{"left", 50, 324},
		{"right", 1920 - 768 - 50, 324},
		{"top", 576, 100},
		{"bottom", 576, 1080 - 432 - 100},
		{"center", 576, 324},
		{"", 576, 324},
		{"Top-Left", 50, 100},
		{"bottom right", 1102, 548},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			x, y := Position(tt.keyword, CanvasWidth, CanvasHeight, w, h)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}
