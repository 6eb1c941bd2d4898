package llm

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// CommandBackend runs an arbitrary shell command line as the model. The
// prompt is written to its stdin and its stdout is the reply.
type CommandBackend struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// NewCommandBackend creates a CommandBackend for command.
func NewCommandBackend(command string) *CommandBackend {
	return &CommandBackend{Command: command}
}

// Name returns the backend identifier.
func (b *CommandBackend) Name() string {
	return "command"
}

// Available checks that a command is configured and its program exists.
func (b *CommandBackend) Available() error {
	fields := strings.Fields(b.Command)
	if len(fields) == 0 {
		return fmt.Errorf("%w: no command configured", ErrBackendUnavailable)
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrBackendUnavailable, fields[0])
	}
	return nil
}

// Complete runs the command through the platform shell.
func (b *CommandBackend) Complete(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if strings.TrimSpace(b.Command) == "" {
		return "", fmt.Errorf("%w: no command configured", ErrBackendUnavailable)
	}

	call := cliCall{
		name:    b.Name(),
		program: "sh",
		args:    []string{"-c", b.Command},
		dir:     b.Dir,
		timeout: b.Timeout,
	}
	if runtime.GOOS == "windows" {
		call.program = "cmd"
		call.args = []string{"/C", b.Command}
	}
	return call.run(ctx, prompt, onChunk)
}
