package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/media"
)

func TestDepRequirements(t *testing.T) {
	cfg := config.Defaults()
	reqs := depRequirements(cfg)

	require.Len(t, reqs, 4)
	assert.Equal(t, "ffmpeg", reqs[0].Command)
	assert.False(t, reqs[0].Optional)
	assert.True(t, reqs[2].Optional, "background removal degrades to pass-through")
	assert.False(t, reqs[3].Optional, "local speech is required without a hosted key")

	cfg.ElevenLabsAPIKey = "key"
	assert.True(t, depRequirements(cfg)[3].Optional)
}

func TestCredentialStatuses(t *testing.T) {
	statuses := credentialStatuses(config.Config{APIKey: "k"})

	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, "configured", statuses[0].Detail)
	assert.False(t, statuses[1].Available)
	assert.True(t, statuses[1].Optional)
}

func TestPrintDeps(t *testing.T) {
	var out bytes.Buffer
	err := printDeps(&out, []media.Status{
		{Name: "ffmpeg", Available: true, Detail: "/usr/bin/ffmpeg"},
		{Name: "rembg", Optional: true, Detail: `binary "rembg" not found`},
		{Name: "GEMINI_API_KEY", Detail: "not set"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.NotContains(t, err.Error(), "rembg")
	assert.Contains(t, out.String(), "MISSING")
	assert.Contains(t, out.String(), "optional")
	assert.Contains(t, out.String(), "╭")
	assert.Regexp(t, `ok\s+│\s+ffmpeg\s+│\s+/usr/bin/ffmpeg`, out.String())

	out.Reset()
	require.NoError(t, printDeps(&out, []media.Status{{Name: "ffmpeg", Available: true}}))
	assert.Contains(t, out.String(), "All required dependencies are available.")
}
