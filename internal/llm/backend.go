// Package llm sends repair prompts to a model through a local CLI and
// streams the reply back.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrEmptyReply is returned when the backend exits cleanly without output.
	ErrEmptyReply = errors.New("model returned an empty reply")

	// ErrBackendUnavailable is returned when the backend CLI cannot be found.
	ErrBackendUnavailable = errors.New("backend not available")
)

// Backend abstracts a model reachable through a command-line tool.
type Backend interface {
	// Name returns the backend identifier (e.g. "codex", "claude-code").
	Name() string
	// Available checks if the backend CLI binary is in PATH.
	Available() error
	// Complete sends prompt and returns the full reply. onChunk, when
	// non-nil, receives the reply incrementally as it is produced.
	Complete(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

const stderrLimit = 4096

// cliCall describes one invocation of a model CLI.
type cliCall struct {
	name    string // backend name for error messages
	program string
	args    []string
	dir     string
	timeout time.Duration
}

// run starts the CLI with prompt on stdin and forwards stdout chunk-wise.
func (c cliCall) run(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if _, err := exec.LookPath(c.program); err != nil {
		return "", fmt.Errorf("%w: %s CLI not found in PATH", ErrBackendUnavailable, c.program)
	}

	execCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, c.program, c.args...)
	cmd.Dir = c.dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = time.Second

	var stderr tailBuffer
	reply := &chunkWriter{onChunk: onChunk}
	cmd.Stdout = reply
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return reply.String(), fmt.Errorf("%s timed out after %s", c.name, c.timeout)
		}
		if ctx.Err() != nil {
			return reply.String(), ctx.Err()
		}
		return reply.String(), fmt.Errorf("%s failed: %w%s", c.name, err, stderr.suffix())
	}
	if strings.TrimSpace(reply.String()) == "" {
		return "", fmt.Errorf("%s: %w%s", c.name, ErrEmptyReply, stderr.suffix())
	}
	return reply.String(), nil
}

// chunkWriter collects the reply and forwards each write as it arrives.
// exec copies stdout from a single goroutine, so writes never overlap.
type chunkWriter struct {
	buf     strings.Builder
	onChunk func(string)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	chunk := string(p)
	w.buf.WriteString(chunk)
	if w.onChunk != nil {
		w.onChunk(chunk)
	}
	return len(p), nil
}

func (w *chunkWriter) String() string {
	return w.buf.String()
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// tailBuffer keeps the last stderrLimit bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if over := t.buf.Len() - stderrLimit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) suffix() string {
	s := strings.TrimSpace(t.buf.String())
	if s == "" {
		return ""
	}
	return ": " + s
}
