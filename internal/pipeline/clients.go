package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/trial-explainer/internal/bgremoval"
	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/imagegen"
	"github.com/jonathan/trial-explainer/internal/llm"
	"github.com/jonathan/trial-explainer/internal/logging"
	"github.com/jonathan/trial-explainer/internal/media"
	"github.com/jonathan/trial-explainer/internal/tts"
)

// LLMConfig derives the model configuration from cfg.
func LLMConfig(cfg config.Config) *llm.Config {
	c := llm.DefaultConfig().WithAllModels(cfg.Model)
	if cfg.Temperature > 0 {
		c = c.WithTemperature(float32(cfg.Temperature))
	}
	return c
}

// OptionsFromConfig maps the run configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Images: imagegen.Options{
			Width:        cfg.ImageWidth,
			Height:       cfg.ImageHeight,
			MinBytes:     cfg.MinBytes(),
			Pause:        time.Duration(cfg.RetryPauseMS) * time.Millisecond,
			SuccessPause: imagegen.DefaultSuccessPause,
		},
		MatchThreshold: cfg.MatchThreshold,
		Music:          cfg.Music,
		MusicVolume:    cfg.MusicVolume,
	}
}

// NewClients builds the production collaborators from cfg. Missing optional
// capabilities (background removal, speech) are logged and left nil; a
// missing API key is an error since stages 1, 2 and 5 cannot run without it.
func NewClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (Clients, error) {
	log := logging.OrNop(logger)
	if cfg.APIKey == "" {
		return Clients{}, errors.New("API key is required (set GEMINI_API_KEY or api_key in config)")
	}

	client, err := llm.NewClient(ctx, LLMConfig(cfg), cfg.APIKey)
	if err != nil {
		return Clients{}, fmt.Errorf("failed to create LLM client: %w", err)
	}

	runner := media.ExecRunner{}
	clients := Clients{
		LLM:        client,
		Images:     imagegen.NewPollinationsEndpoint(cfg.ImageEndpoint),
		Simplifier: &imagegen.LLMSimplifier{Client: client},
		Tools:      media.NewTools(cfg.FFmpegPath, cfg.FFprobePath, runner),
	}

	remover, err := bgremoval.NewCommandRemover(cfg.RembgCommand, runner)
	switch {
	case err == nil:
		clients.Remover = remover
	case errors.Is(err, bgremoval.ErrUnavailable):
		log.Warn("background removal disabled", "reason", err)
	default:
		return Clients{}, err
	}

	provider, err := tts.Select(tts.Options{
		ElevenLabsAPIKey: cfg.ElevenLabsAPIKey,
		ElevenLabsVoice:  cfg.ElevenLabsVoice,
		LocalCommand:     cfg.LocalTTSCommand,
		Runner:           runner,
	})
	if err != nil {
		log.Warn("no speech provider, stage 7 will fail", "reason", err)
	} else {
		log.Info("speech provider selected", "provider", provider.Name())
		clients.TTS = provider
	}

	return clients, nil
}

// Close releases the clients' resources.
func (c Clients) Close() error {
	if c.LLM != nil {
		return c.LLM.Close()
	}
	return nil
}
