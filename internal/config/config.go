// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied by MergeWithDefaults when a field is left unset.
const (
	DefaultOutputRoot      = "runs"
	DefaultImageEndpoint   = "https://image.pollinations.ai/prompt/"
	DefaultImageWidth      = 1024
	DefaultImageHeight     = 1024
	DefaultMinImageBytes   = 1000
	DefaultMatchThreshold  = 0.5
	DefaultRetryPauseMS    = 1000
	DefaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
	DefaultLocalTTS        = "espeak-ng"
	DefaultRembg           = "rembg"
	DefaultFFmpeg          = "ffmpeg"
	DefaultFFprobe         = "ffprobe"
	DefaultMusicVolume     = 0.15
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Inputs
	Summary    string `json:"summary,omitempty" yaml:"summary,omitempty"`         // Path to trial summary text file
	SummaryURL string `json:"summary_url,omitempty" yaml:"summary_url,omitempty"` // URL to fetch the trial summary from
	Protocol   string `json:"protocol,omitempty" yaml:"protocol,omitempty"`       // Raw protocol text file, distilled into a summary
	Music      string `json:"music,omitempty" yaml:"music,omitempty"`             // Optional background music track

	// Run layout
	RunDir     string `json:"run_dir,omitempty" yaml:"run_dir,omitempty"`         // Existing run directory to resume
	OutputRoot string `json:"output_root,omitempty" yaml:"output_root,omitempty"` // Parent directory for new runs

	// Text generation
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Gemini API key
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`     // Pin every tier to one model
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`

	// Image synthesis
	ImageEndpoint string `json:"image_endpoint,omitempty" yaml:"image_endpoint,omitempty" validate:"omitempty,url"`
	ImageWidth    int    `json:"image_width,omitempty" yaml:"image_width,omitempty" validate:"gte=0,lte=4096"`
	ImageHeight   int    `json:"image_height,omitempty" yaml:"image_height,omitempty" validate:"gte=0,lte=4096"`
	MinImageBytes *int   `json:"min_image_bytes,omitempty" yaml:"min_image_bytes,omitempty" validate:"omitempty,gte=0"` // nil uses the default; 0 disables the check
	RetryPauseMS  int    `json:"retry_pause_ms,omitempty" yaml:"retry_pause_ms,omitempty" validate:"gte=0"`

	// Slide rendering
	MatchThreshold float64 `json:"match_threshold,omitempty" yaml:"match_threshold,omitempty" validate:"gte=0,lte=1"`

	// Speech and media tools
	ElevenLabsAPIKey string  `json:"elevenlabs_api_key,omitempty" yaml:"elevenlabs_api_key,omitempty"`
	ElevenLabsVoice  string  `json:"elevenlabs_voice,omitempty" yaml:"elevenlabs_voice,omitempty"`
	LocalTTSCommand  string  `json:"local_tts_command,omitempty" yaml:"local_tts_command,omitempty"`
	RembgCommand     string  `json:"rembg_command,omitempty" yaml:"rembg_command,omitempty"`
	FFmpegPath       string  `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	FFprobePath      string  `json:"ffprobe_path,omitempty" yaml:"ffprobe_path,omitempty"`
	MusicVolume      float64 `json:"music_volume,omitempty" yaml:"music_volume,omitempty" validate:"gte=0,lte=1"`

	// Behavior
	Verbose     bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed debug information
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
}

// LoadConfig loads configuration from a JSON file, or YAML when the extension is .yaml/.yml.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	// Validate mutually exclusive fields
	inputs := 0
	for _, v := range []string{c.Summary, c.SummaryURL, c.Protocol} {
		if v != "" {
			inputs++
		}
	}
	if inputs > 1 {
		return fmt.Errorf("config error: 'summary', 'summary_url' and 'protocol' are mutually exclusive")
	}

	// Validate numeric ranges and enums
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: '%s' is out of range (%s=%s)", jsonName(fe.StructField()), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("config error: %w", err)
	}

	// Validate file paths exist (if specified)
	if c.Summary != "" {
		if _, err := os.Stat(c.Summary); os.IsNotExist(err) {
			return fmt.Errorf("config error: summary file not found: %s", c.Summary)
		}
	}

	if c.Protocol != "" {
		if _, err := os.Stat(c.Protocol); os.IsNotExist(err) {
			return fmt.Errorf("config error: protocol file not found: %s", c.Protocol)
		}
	}

	if c.Music != "" {
		if _, err := os.Stat(c.Music); os.IsNotExist(err) {
			return fmt.Errorf("config error: music file not found: %s", c.Music)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.Summary, defaults.Summary)
	mergeString(&result.SummaryURL, defaults.SummaryURL)
	mergeString(&result.Protocol, defaults.Protocol)
	mergeString(&result.Music, defaults.Music)
	mergeString(&result.RunDir, defaults.RunDir)
	mergeString(&result.OutputRoot, defaults.OutputRoot)
	mergeString(&result.APIKey, defaults.APIKey)
	mergeString(&result.Model, defaults.Model)
	mergeString(&result.ImageEndpoint, defaults.ImageEndpoint)
	mergeString(&result.ElevenLabsAPIKey, defaults.ElevenLabsAPIKey)
	mergeString(&result.ElevenLabsVoice, defaults.ElevenLabsVoice)
	mergeString(&result.LocalTTSCommand, defaults.LocalTTSCommand)
	mergeString(&result.RembgCommand, defaults.RembgCommand)
	mergeString(&result.FFmpegPath, defaults.FFmpegPath)
	mergeString(&result.FFprobePath, defaults.FFprobePath)
	mergeString(&result.LogLevel, defaults.LogLevel)
	mergeString(&result.LogFormat, defaults.LogFormat)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)

	// Int fields: use default if zero
	if result.ImageWidth == 0 {
		result.ImageWidth = defaults.ImageWidth
	}
	if result.ImageHeight == 0 {
		result.ImageHeight = defaults.ImageHeight
	}
	if result.MinImageBytes == nil && defaults.MinImageBytes != nil {
		n := *defaults.MinImageBytes
		result.MinImageBytes = &n
	}
	if result.RetryPauseMS == 0 {
		result.RetryPauseMS = defaults.RetryPauseMS
	}

	// Float fields
	if result.Temperature == 0 {
		result.Temperature = defaults.Temperature
	}
	if result.MatchThreshold == 0 {
		result.MatchThreshold = defaults.MatchThreshold
	}
	if result.MusicVolume == 0 {
		result.MusicVolume = defaults.MusicVolume
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		OutputRoot:      DefaultOutputRoot,
		Temperature:     0.1,
		ImageEndpoint:   DefaultImageEndpoint,
		ImageWidth:      DefaultImageWidth,
		ImageHeight:     DefaultImageHeight,
		MinImageBytes:   IntPtr(DefaultMinImageBytes),
		RetryPauseMS:    DefaultRetryPauseMS,
		MatchThreshold:  DefaultMatchThreshold,
		ElevenLabsVoice: DefaultElevenLabsVoice,
		LocalTTSCommand: DefaultLocalTTS,
		RembgCommand:    DefaultRembg,
		FFmpegPath:      DefaultFFmpeg,
		FFprobePath:     DefaultFFprobe,
		MusicVolume:     DefaultMusicVolume,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
	}
}

// FromEnv returns a Config populated from environment variables.
// It is meant to be merged underneath file and flag values.
func FromEnv() Config {
	cfg := Config{
		APIKey:           os.Getenv("GEMINI_API_KEY"),
		Model:            os.Getenv("GEMINI_MODEL_NAME"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice:  os.Getenv("ELEVENLABS_VOICE_ID"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
	}
	if raw := strings.TrimSpace(os.Getenv("GEMINI_TEMPERATURE")); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Temperature = t
		}
	}
	return cfg
}

// IntPtr returns a pointer to n, for optional integer fields.
func IntPtr(n int) *int {
	return &n
}

// MinBytes returns the configured minimum image payload, or the default when unset.
func (c *Config) MinBytes() int {
	if c.MinImageBytes == nil {
		return DefaultMinImageBytes
	}
	return *c.MinImageBytes
}

func mergeString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

// jsonName maps a Go field name to its snake_case config key.
func jsonName(field string) string {
	var sb strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := field[i-1]
				if prev < 'A' || prev > 'Z' {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
