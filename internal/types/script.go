// Package types provides type definitions for the artifacts passed between pipeline stages.
package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Script is the stage 1 output: a titled, ordered list of narrated segments.
type Script struct {
	Title    string    `json:"video_title" validate:"notblank"`
	Intro    string    `json:"video_intro" validate:"notblank"`
	Segments []Segment `json:"segments" validate:"required,min=1,dive"`
}

// Segment is one narrated unit of the video. Segments map 1:1 onto slides.
type Segment struct {
	SectionTitle     string `json:"section_title" validate:"notblank"`
	Narration        string `json:"narration" validate:"notblank"`
	ImageDescription string `json:"image_description" validate:"notblank"`
	EducationalGoal  string `json:"educational_goal" validate:"notblank"`
}

// Asset is a planned visual element. SegmentIndex points back at the owning
// segment for provenance only.
type Asset struct {
	Name         string `json:"name" validate:"notblank"`
	Style        string `json:"style" validate:"notblank"`
	Purpose      string `json:"purpose" validate:"notblank"`
	Prompt       string `json:"prompt" validate:"notblank"`
	SegmentIndex int    `json:"segment_index" validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Validate checks the non-empty field invariants of a script.
func (s *Script) Validate() error {
	if s == nil {
		return fmt.Errorf("script is nil")
	}
	return describe(validate.Struct(s))
}

// Validate checks that every descriptive field of the asset is set.
func (a *Asset) Validate() error {
	return describe(validate.Struct(a))
}

// Segment returns the segment at index i, or false if the script has none there.
func (s *Script) Segment(i int) (Segment, bool) {
	if s == nil || i < 0 || i >= len(s.Segments) {
		return Segment{}, false
	}
	return s.Segments[i], true
}

// describe flattens validator errors into a single readable error.
func describe(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}
