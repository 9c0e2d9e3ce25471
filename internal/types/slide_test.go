package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlideImageUnmarshal_BareName(t *testing.T) {
	var imgs []SlideImage
	err := json.Unmarshal([]byte(`["heart_icon", {"name": "pill", "position": "left", "size_ratio": 0.3}]`), &imgs)
	require.NoError(t, err)
	require.Len(t, imgs, 2)

	assert.Equal(t, SlideImage{Name: "heart_icon", Position: "center", SizeRatio: 0.4}, imgs[0])
	assert.Equal(t, SlideImage{Name: "pill", Position: "left", SizeRatio: 0.3}, imgs[1])
}

func TestSlideImageUnmarshal_FillsDefaults(t *testing.T) {
	var img SlideImage
	require.NoError(t, json.Unmarshal([]byte(`{"name": "doctor", "size_ratio": 4}`), &img))

	assert.Equal(t, "center", img.Position)
	assert.Equal(t, 0.4, img.SizeRatio)
}

func TestSlideImageUnmarshal_Invalid(t *testing.T) {
	var img SlideImage
	assert.Error(t, json.Unmarshal([]byte(`42`), &img))
}

func TestSlideSpecValidate(t *testing.T) {
	spec := SlideSpec{SlideTitle: "Who Can Join", Caption: "Adults 18-65", SlideDuration: 6}
	assert.NoError(t, spec.Validate())

	spec.SlideDuration = 0
	assert.Error(t, spec.Validate())
}
