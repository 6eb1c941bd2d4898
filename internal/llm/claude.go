package llm

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ClaudeBackend implements Backend for the Claude Code CLI.
type ClaudeBackend struct {
	Model   string
	Dir     string
	Timeout time.Duration
}

// NewClaudeBackend creates a new ClaudeBackend.
func NewClaudeBackend(model string) *ClaudeBackend {
	if model == "" {
		model = "sonnet"
	}
	return &ClaudeBackend{Model: model}
}

// Name returns the backend identifier.
func (b *ClaudeBackend) Name() string {
	return "claude-code"
}

// Available checks if claude CLI is in PATH.
func (b *ClaudeBackend) Available() error {
	if _, err := exec.LookPath("claude"); err != nil {
		return fmt.Errorf("%w: claude CLI not found in PATH", ErrBackendUnavailable)
	}
	return nil
}

// Complete runs `claude --print` with the prompt on stdin.
func (b *ClaudeBackend) Complete(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	call := cliCall{
		name:    b.Name(),
		program: "claude",
		args:    []string{"--print", "--model", b.Model},
		dir:     b.Dir,
		timeout: b.Timeout,
	}
	return call.run(ctx, prompt, onChunk)
}
