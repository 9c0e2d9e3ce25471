package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/prompts"
)

// DistilledFile is the run-directory name of a saved Distillation.
const DistilledFile = "protocol_distilled.json"

// Distillation is the patient-relevant content pulled out of a raw protocol.
type Distillation struct {
	Title         string   `json:"study_title"`
	Phase         string   `json:"phase,omitempty"`
	Purpose       string   `json:"purpose"`
	Duration      string   `json:"duration,omitempty"`
	WhoCanJoin    []string `json:"who_can_join,omitempty"`
	WhoCannotJoin []string `json:"who_cannot_join,omitempty"`
	Design        string   `json:"study_design,omitempty"`
	Mechanism     string   `json:"how_it_works,omitempty"`
	SideEffects   []string `json:"possible_side_effects,omitempty"`
	VisitSchedule string   `json:"visit_schedule,omitempty"`
	Measures      []string `json:"what_is_measured,omitempty"`
}

// Distill asks the model to reduce protocol text to a Distillation. The
// protocol is cleaned first; empty input is ErrEmptyContent.
func Distill(ctx context.Context, client llm.Client, protocolText string) (*Distillation, error) {
	protocol := CleanText(protocolText)
	if protocol == "" {
		return nil, fmt.Errorf("protocol: %w", ErrEmptyContent)
	}

	prompt, err := prompts.Render("distill", map[string]string{"Protocol": protocol})
	if err != nil {
		return nil, fmt.Errorf("build distill prompt: %w", err)
	}

	// Structured extraction is a simple task; the lite tier is enough.
	jsonResp, err := client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("failed to distill protocol: %w", err)
	}

	var d Distillation
	if err := llm.RecoverJSONInto(llm.CleanJSONBlock(jsonResp), &d); err != nil {
		return nil, fmt.Errorf("failed to parse distilled protocol: %w", err)
	}
	d.Title = strings.TrimSpace(d.Title)
	d.Purpose = strings.TrimSpace(d.Purpose)
	if d.Title == "" || d.Purpose == "" {
		return nil, fmt.Errorf("distilled protocol is missing study_title or purpose")
	}
	return &d, nil
}

// Summary renders d as the plain-text trial summary that stage 1 reads.
// Empty sections are left out.
func (d *Distillation) Summary() string {
	var b strings.Builder
	title := d.Title
	if d.Phase != "" {
		title += " (" + d.Phase + ")"
	}
	b.WriteString(title)
	b.WriteString("\n")

	section := func(name, text string) {
		if text = strings.TrimSpace(text); text != "" {
			fmt.Fprintf(&b, "\n%s:\n%s\n", name, text)
		}
	}
	list := func(name string, items []string) {
		var kept []string
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				kept = append(kept, "- "+it)
			}
		}
		if len(kept) > 0 {
			fmt.Fprintf(&b, "\n%s:\n%s\n", name, strings.Join(kept, "\n"))
		}
	}

	section("Purpose", d.Purpose)
	section("Duration", d.Duration)
	list("Who can join", d.WhoCanJoin)
	list("Who cannot join", d.WhoCannotJoin)
	section("Study design", d.Design)
	section("How the treatment works", d.Mechanism)
	list("Possible side effects", d.SideEffects)
	section("Visits", d.VisitSchedule)
	list("What is measured", d.Measures)
	return strings.TrimSpace(b.String())
}

// DistillFromFile reads a protocol text file and distills it. The returned
// Metadata describes the protocol file; its Chars and Hash describe the
// rendered summary.
func DistillFromFile(ctx context.Context, client llm.Client, path string) (string, *Distillation, *Metadata, error) {
	raw, _, err := IngestFromFile(path)
	if err != nil {
		return "", nil, nil, err
	}
	d, err := Distill(ctx, client, raw)
	if err != nil {
		return "", nil, nil, err
	}
	summary := d.Summary()
	meta := NewMetadata(summary, "")
	meta.Path = path
	meta.Source = "protocol"
	meta.Title = d.Title
	return summary, d, meta, nil
}

// WriteDistillation saves d as DistilledFile under dir.
func WriteDistillation(dir string, d *Distillation) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal distilled protocol: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DistilledFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write distilled protocol: %w", err)
	}
	return nil
}
