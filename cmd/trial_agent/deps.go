package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/trial-explainer/internal/config"
	"github.com/jonathan/trial-explainer/internal/media"
)

var depsCommand = &cobra.Command{
	Use:   "deps",
	Short: "Report which external tools and credentials the pipeline can use",
	Long: `Checks ffmpeg, ffprobe, the background removal tool, the speech providers and the
Gemini API key. Exits non-zero when anything required is missing.`,
	RunE: runDepsCmd,
}

var depsFlags pipelineFlags

func init() {
	depsFlags.register(depsCommand, false)
	rootCmd.AddCommand(depsCommand)
}

// depRequirements lists the binaries cfg points at. Local speech is only
// required when no ElevenLabs key is configured.
func depRequirements(cfg config.Config) []media.Requirement {
	return []media.Requirement{
		{Name: "ffmpeg", Command: cfg.FFmpegPath, Description: "slide compositing and video encoding"},
		{Name: "ffprobe", Command: cfg.FFprobePath, Description: "audio duration measurement"},
		{Name: "rembg", Command: cfg.RembgCommand, Description: "background removal (stage 4 passes images through without it)", Optional: true},
		{Name: "local-tts", Command: cfg.LocalTTSCommand, Description: "offline narration", Optional: cfg.ElevenLabsAPIKey != ""},
	}
}

// credentialStatuses reports API keys in the same shape as binaries.
func credentialStatuses(cfg config.Config) []media.Status {
	check := func(name, value, desc string, optional bool) media.Status {
		s := media.Status{Name: name, Description: desc, Optional: optional, Available: value != ""}
		if s.Available {
			s.Detail = "configured"
		} else {
			s.Detail = "not set"
		}
		return s
	}
	return []media.Status{
		check("GEMINI_API_KEY", cfg.APIKey, "script, asset and layout generation", false),
		check("ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey, "hosted narration", true),
	}
}

func runDepsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := depsFlags.resolve(cmd)
	if err != nil {
		return err
	}
	statuses := append(media.CheckBinaries(depRequirements(cfg)), credentialStatuses(cfg)...)
	return printDeps(cmd.OutOrStdout(), statuses)
}

// printDeps writes a table row per dependency and fails when a required one is missing.
func printDeps(out io.Writer, statuses []media.Status) error {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		mark := "ok"
		switch {
		case !s.Available && s.Optional:
			mark = "optional"
		case !s.Available:
			mark = "MISSING"
		}
		rows = append(rows, []string{mark, s.Name, s.Detail, s.Description})
	}
	_, _ = fmt.Fprintln(out, renderTable([]string{"Status", "Dependency", "Detail", "Purpose"}, rows, nil))

	if missing := media.MissingRequired(statuses); len(missing) > 0 {
		return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
	}
	_, _ = fmt.Fprintln(out, "All required dependencies are available.")
	return nil
}
