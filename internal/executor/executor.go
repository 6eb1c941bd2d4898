// Package executor applies fix steps to the project: shell commands and
// file operations, both confined to the project root.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/silver2dream/devmend/internal/steps"
)

const (
	// DefaultShellTimeout bounds a single shell step.
	DefaultShellTimeout = 5 * time.Minute

	// DefaultMaxOutput is the combined output kept from a shell step.
	DefaultMaxOutput = 50000
)

// ErrUnsafePath is returned for file operations that resolve outside Root.
var ErrUnsafePath = errors.New("path escapes project root")

// FileOp is a single file mutation.
type FileOp struct {
	Operation string // CREATE, UPDATE, DELETE
	Path      string // relative to Root, or absolute inside it
	Content   string
}

// Executor runs shell commands and file operations inside Root.
type Executor struct {
	Root         string
	ShellTimeout time.Duration
	MaxOutput    int
	DryRun       bool // log and report operations without performing them
	Logger       *zap.Logger
}

// New returns an Executor for root with default limits.
func New(root string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Root:         root,
		ShellTimeout: DefaultShellTimeout,
		MaxOutput:    DefaultMaxOutput,
		Logger:       logger,
	}
}

func (e *Executor) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// RunShell runs command with the project root as working directory and
// returns its combined output. The command runs in its own process group,
// which is killed as a whole when the timeout or ctx expires.
func (e *Executor) RunShell(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("command is required")
	}
	if e.DryRun {
		e.log().Info("dry run: shell step skipped", zap.String("command", command))
		return "", nil
	}

	timeout := e.ShellTimeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := shellCommand(command)
	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = e.Root
	cmd.Env = os.Environ()
	cmd.WaitDelay = time.Second
	setProcGroup(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := truncate(out.String(), e.maxOutput())

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			e.log().Warn("shell step timed out", zap.String("command", command), zap.Duration("timeout", timeout))
			return output, fmt.Errorf("command timed out after %s", timeout)
		}
		e.log().Warn("shell step failed", zap.String("command", command), zap.Error(err))
		return output, fmt.Errorf("command failed: %w", err)
	}

	e.log().Info("shell step completed",
		zap.String("command", command),
		zap.Int("output_bytes", len(output)),
		zap.Duration("elapsed", time.Since(start)))
	return output, nil
}

func (e *Executor) maxOutput() int {
	if e.MaxOutput <= 0 {
		return DefaultMaxOutput
	}
	return e.MaxOutput
}

// shellCommand picks bash when available, then sh; cmd /C on Windows.
func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c", command}
	}
	return "sh", []string{"-c", command}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}

// ApplyFileOp performs a CREATE, UPDATE or DELETE. Writes go to a temporary
// file in the target directory and are renamed into place.
func (e *Executor) ApplyFileOp(ctx context.Context, op FileOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := e.resolve(op.Path)
	if err != nil {
		return err
	}

	operation := strings.ToUpper(op.Operation)
	if e.DryRun {
		e.log().Info("dry run: file step skipped", zap.String("operation", operation), zap.String("path", target))
		return nil
	}

	switch operation {
	case steps.OpCreate, steps.OpUpdate:
		if operation == steps.OpUpdate {
			if _, err := os.Stat(target); os.IsNotExist(err) {
				e.log().Warn("update of missing file treated as create", zap.String("path", target))
			}
		}
		if err := writeAtomic(target, []byte(op.Content)); err != nil {
			return fmt.Errorf("%s %s: %w", operation, op.Path, err)
		}
	case steps.OpDelete:
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("DELETE %s: %w", op.Path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("DELETE %s: is a directory", op.Path)
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("DELETE %s: %w", op.Path, err)
		}
	default:
		return fmt.Errorf("unknown file operation %q", op.Operation)
	}

	e.log().Info("file step applied", zap.String("operation", operation), zap.String("path", target))
	return nil
}

// resolve returns the absolute target path, rejecting anything that leaves
// Root lexically or through a symlinked parent directory.
func (e *Executor) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("file path is required")
	}

	root, err := filepath.Abs(e.Root)
	if err != nil {
		return "", err
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}

	// The nearest existing ancestor must also resolve inside root.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return target, nil
	}
	dir := filepath.Dir(target)
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil && !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}

	return target, nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
