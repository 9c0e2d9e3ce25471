package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolMissing reports that an external binary could not be found on PATH.
var ErrToolMissing = errors.New("tool not found")

// maxStderr bounds how much stderr is kept on a CommandError.
const maxStderr = 4000

// CommandError represents a failed external command and what it printed.
type CommandError struct {
	Tool   string
	Args   []string
	Stderr string
	Cause  error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// CommandLine renders the command for logs.
func (e *CommandError) CommandLine() string {
	return strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
}

func tailStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
