package types

// ImageResult records one synthesized image on disk.
type ImageResult struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Prompt string `json:"prompt"`
	// Simplified is set when the image was produced from a model-revised prompt.
	Simplified bool `json:"simplified,omitempty"`
	// OriginalPath is the pre-background-removal file when Path was replaced.
	OriginalPath      string `json:"original_path,omitempty"`
	BackgroundRemoved bool   `json:"background_removed,omitempty"`
}

// RenderedSlide is a rasterized slide ready for composition.
type RenderedSlide struct {
	Index    int     `json:"index"`
	Title    string  `json:"title"`
	Caption  string  `json:"caption"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}
