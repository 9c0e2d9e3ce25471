package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ElevenLabs defaults.
const (
	DefaultElevenLabsURL   = "https://api.elevenlabs.io"
	DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsTimeout      = 30 * time.Second
	voiceStability         = 0.6
	voiceSimilarity        = 0.6
	// Requested explicitly; the API answers with MPEG audio.
	elevenLabsFormat = "mp3_44100_128"
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ElevenLabsProvider calls the ElevenLabs text-to-speech REST API.
type ElevenLabsProvider struct {
	APIKey     string
	Voice      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewElevenLabsProvider creates a provider; empty voice and baseURL use defaults.
func NewElevenLabsProvider(apiKey, voice, baseURL string) *ElevenLabsProvider {
	if voice == "" {
		voice = DefaultElevenLabsVoice
	}
	if baseURL == "" {
		baseURL = DefaultElevenLabsURL
	}
	return &ElevenLabsProvider{
		APIKey:     apiKey,
		Voice:      voice,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: elevenLabsTimeout},
	}
}

// Name implements Provider.
func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

// Ext implements Provider.
func (p *ElevenLabsProvider) Ext() string { return ".mp3" }

// Synthesize implements Provider.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, outPath string) error {
	body, err := json.Marshal(speechRequest{
		Text:          text,
		VoiceSettings: voiceSettings{Stability: voiceStability, SimilarityBoost: voiceSimilarity},
	})
	if err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.BaseURL, p.Voice, elevenLabsFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}
	req.Header.Set("xi-api-key", p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SynthesisError{Provider: p.Name(), Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}
	if len(audio) == 0 {
		return &SynthesisError{Provider: p.Name(), Cause: fmt.Errorf("empty audio response")}
	}
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return &SynthesisError{Provider: p.Name(), Cause: err}
	}
	return nil
}
