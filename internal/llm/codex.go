package llm

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// CodexBackend implements Backend for the Codex CLI.
type CodexBackend struct {
	Model   string
	Dir     string
	Timeout time.Duration
}

// NewCodexBackend creates a new CodexBackend.
func NewCodexBackend() *CodexBackend {
	return &CodexBackend{}
}

// Name returns the backend identifier.
func (b *CodexBackend) Name() string {
	return "codex"
}

// Available checks if codex CLI is in PATH.
func (b *CodexBackend) Available() error {
	if _, err := exec.LookPath("codex"); err != nil {
		return fmt.Errorf("%w: codex CLI not found in PATH", ErrBackendUnavailable)
	}
	return nil
}

// Complete runs `codex exec -`, which reads the prompt from stdin.
func (b *CodexBackend) Complete(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	args := []string{"exec"}
	if b.Model != "" {
		args = append(args, "--model", b.Model)
	}
	args = append(args, "-")

	call := cliCall{
		name:    b.Name(),
		program: "codex",
		args:    args,
		dir:     b.Dir,
		timeout: b.Timeout,
	}
	return call.run(ctx, prompt, onChunk)
}
