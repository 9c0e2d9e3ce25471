// Package mediatest provides a recording media.Runner for tests.
package mediatest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonathan/trial-explainer/internal/media"
)

// Runner records every command. Unless Handle is set, it writes a small file
// at the command's last argument so callers find the output they expect.
type Runner struct {
	mu       sync.Mutex
	Commands []media.Command
	// Handle, when set, decides the result of each command.
	Handle func(cmd media.Command) ([]byte, error)
	// Duration is what ffprobe-style commands print when Handle is nil.
	Duration string
}

// Run implements media.Runner.
func (r *Runner) Run(_ context.Context, cmd media.Command) ([]byte, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	r.mu.Unlock()

	if r.Handle != nil {
		return r.Handle(cmd)
	}
	if strings.Contains(filepath.Base(cmd.Name), "ffprobe") {
		d := r.Duration
		if d == "" {
			d = "1.0"
		}
		return []byte(d + "\n"), nil
	}
	if err := TouchOutput(cmd); err != nil {
		return nil, err
	}
	return nil, nil
}

// Named returns the recorded commands whose binary is name.
func (r *Runner) Named(name string) []media.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []media.Command
	for _, c := range r.Commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// TouchOutput creates the file named by the last argument of cmd.
func TouchOutput(cmd media.Command) error {
	if len(cmd.Args) == 0 {
		return nil
	}
	out := cmd.Args[len(cmd.Args)-1]
	if out == "" || out == "-" || strings.HasPrefix(out, "-") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("fake media"), 0o644)
}
