package llm

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestCodexBackend_Name(t *testing.T) {
	b := NewCodexBackend()
	if b.Name() != "codex" {
		t.Errorf("expected 'codex', got %q", b.Name())
	}
}

func TestClaudeBackend_Defaults(t *testing.T) {
	b := NewClaudeBackend("")
	if b.Name() != "claude-code" {
		t.Errorf("expected 'claude-code', got %q", b.Name())
	}
	if b.Model != "sonnet" {
		t.Errorf("expected default model 'sonnet', got %q", b.Model)
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewCodexBackend())

	b, err := reg.Get("codex")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Name() != "codex" {
		t.Errorf("expected 'codex', got %q", b.Name())
	}

	if _, err := reg.Get("unknown"); err == nil {
		t.Fatal("expected error for unknown backend, got nil")
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry("opus")
	names := reg.Names()
	if len(names) != 2 || names[0] != "claude-code" || names[1] != "codex" {
		t.Fatalf("Names() = %v", names)
	}

	b, _ := reg.Get("claude-code")
	if got := b.(*ClaudeBackend).Model; got != "opus" {
		t.Errorf("claude model = %q, want opus", got)
	}
}

func TestCommandBackend_Streams(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	b := NewCommandBackend("cat")

	var chunks []string
	reply, err := b.Complete(context.Background(), "<response></response>", func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "<response></response>" {
		t.Errorf("reply = %q", reply)
	}
	if strings.Join(chunks, "") != reply {
		t.Errorf("chunks %q do not add up to reply", chunks)
	}
}

func TestCommandBackend_EmptyReply(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	_, err := NewCommandBackend("cat >/dev/null").Complete(context.Background(), "x", nil)
	if !errors.Is(err, ErrEmptyReply) {
		t.Errorf("expected ErrEmptyReply, got %v", err)
	}
}

func TestCommandBackend_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	_, err := NewCommandBackend("echo quota exceeded >&2; exit 2").Complete(context.Background(), "x", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q should include stderr", err)
	}
}

func TestCommandBackend_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	b := NewCommandBackend("sleep 5")
	b.Timeout = 100 * time.Millisecond

	_, err := b.Complete(context.Background(), "x", nil)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestCommandBackend_Unavailable(t *testing.T) {
	b := NewCommandBackend("")
	if err := b.Available(); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Available() = %v, want ErrBackendUnavailable", err)
	}
	if _, err := b.Complete(context.Background(), "x", nil); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Complete() = %v, want ErrBackendUnavailable", err)
	}

	b = NewCommandBackend("definitely-not-a-real-binary-xyz --flag")
	if err := b.Available(); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Available() = %v, want ErrBackendUnavailable", err)
	}
}
