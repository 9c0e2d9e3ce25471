// Package tts synthesizes narration audio through a configured provider.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/trial-explainer/internal/media"
)

// ErrNoProvider means neither a paid voice service nor a local synthesizer is configured.
var ErrNoProvider = errors.New("no text-to-speech provider available: set ELEVENLABS_API_KEY or install espeak-ng")

// Provider writes spoken text to outPath. Ext is the file extension, with
// its dot, matching the audio container the provider writes.
type Provider interface {
	Name() string
	Ext() string
	Synthesize(ctx context.Context, text, outPath string) error
}

// SynthesisError wraps a provider failure.
type SynthesisError struct {
	Provider string
	Cause    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s text-to-speech failed: %v", e.Provider, e.Cause)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// Options configures provider selection.
type Options struct {
	ElevenLabsAPIKey string
	ElevenLabsVoice  string
	ElevenLabsURL    string
	LocalCommand     string
	Runner           media.Runner
}

// Select picks the first available provider: ElevenLabs when an API key is
// set, then the local synthesizer when its binary is on PATH. Otherwise it
// returns ErrNoProvider.
func Select(opts Options) (Provider, error) {
	if strings.TrimSpace(opts.ElevenLabsAPIKey) != "" {
		return NewElevenLabsProvider(opts.ElevenLabsAPIKey, opts.ElevenLabsVoice, opts.ElevenLabsURL), nil
	}
	local := strings.TrimSpace(opts.LocalCommand)
	if local == "" {
		local = DefaultLocalCommand
	}
	if _, err := media.LookupTool(local); err == nil {
		return NewLocalProvider(local, opts.Runner), nil
	}
	return nil, ErrNoProvider
}
