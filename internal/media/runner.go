// Package media wraps the external audio, video and image tools the pipeline
// shells out to.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command is one external process invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands and returns their stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run implements Runner. A non-zero exit yields a *CommandError carrying stderr.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("media: empty command name")
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{
			Tool:   c.Name,
			Args:   c.Args,
			Stderr: tailStderr(stderr.String()),
			Cause:  err,
		}
	}
	return stdout.Bytes(), nil
}

// LookupTool resolves name on PATH.
func LookupTool(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: command not configured", ErrToolMissing)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrToolMissing, name)
	}
	return path, nil
}
