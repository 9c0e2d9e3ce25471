package types

import (
	"encoding/json"
	"fmt"
)

// Image placement defaults.
const (
	DefaultPosition  = "center"
	DefaultSizeRatio = 0.4
)

// SlideSpec is the stage 5 layout for a single segment.
type SlideSpec struct {
	SlideTitle    string       `json:"slide_title" validate:"notblank"`
	Caption       string       `json:"caption"`
	SlideDuration float64      `json:"slide_duration" validate:"gt=0"`
	Images        []SlideImage `json:"images" validate:"dive"`
}

// SlideImage references an asset by name and says where to draw it.
type SlideImage struct {
	Name      string  `json:"name" validate:"notblank"`
	Position  string  `json:"position"`
	SizeRatio float64 `json:"size_ratio" validate:"gte=0,lte=1"`
}

// UnmarshalJSON accepts either a bare asset name or a full object.
func (si *SlideImage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*si = SlideImage{Name: name, Position: DefaultPosition, SizeRatio: DefaultSizeRatio}
		return nil
	}

	type plain SlideImage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("slide image: %w", err)
	}
	*si = SlideImage(p)
	si.Normalize()
	return nil
}

// Normalize fills in a missing position or size ratio.
func (si *SlideImage) Normalize() {
	if si.Position == "" {
		si.Position = DefaultPosition
	}
	if si.SizeRatio <= 0 || si.SizeRatio > 1 {
		si.SizeRatio = DefaultSizeRatio
	}
}

// Validate checks the slide's required fields.
func (s *SlideSpec) Validate() error {
	return describe(validate.Struct(s))
}
