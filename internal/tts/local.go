package tts

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/trial-explainer/internal/media"
)

// DefaultLocalCommand is the offline synthesizer used when no API key is set.
const DefaultLocalCommand = "espeak-ng"

// speechRate is words per minute for the local synthesizer.
const speechRate = 150

// LocalProvider shells out to an espeak-compatible synthesizer.
type LocalProvider struct {
	Command string
	Runner  media.Runner
}

// NewLocalProvider creates a LocalProvider. A nil runner executes real processes.
func NewLocalProvider(command string, runner media.Runner) *LocalProvider {
	if command == "" {
		command = DefaultLocalCommand
	}
	if runner == nil {
		runner = media.ExecRunner{}
	}
	return &LocalProvider{Command: command, Runner: runner}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return "local" }

// Ext implements Provider; espeak writes RIFF WAV.
func (p *LocalProvider) Ext() string { return ".wav" }

// Synthesize implements Provider.
func (p *LocalProvider) Synthesize(ctx context.Context, text, outPath string) error {
	// Text goes through stdin so a leading dash is never read as a flag.
	args := []string{"-s", fmt.Sprint(speechRate), "-w", outPath, "--stdin"}
	if _, err := p.Runner.Run(ctx, media.Command{Name: p.Command, Args: args, Stdin: []byte(text)}); err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return &SynthesisError{Provider: p.Name(), Cause: fmt.Errorf("no audio written to %s", outPath)}
	}
	return nil
}
