package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silver2dream/devmend/internal/steps"
)

func TestRunShell_CombinedOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	e := New(t.TempDir(), nil)

	out, err := e.RunShell(context.Background(), "echo out; echo err 1>&2")
	require.NoError(t, err)
	assert.Contains(t, out, "out")
	assert.Contains(t, out, "err")
}

func TestRunShell_RunsInRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	root := t.TempDir()
	e := New(root, nil)

	_, err := e.RunShell(context.Background(), "touch marker")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "marker"))
}

func TestRunShell_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	e := New(t.TempDir(), nil)

	out, err := e.RunShell(context.Background(), "echo before; exit 3")
	require.Error(t, err)
	assert.Contains(t, out, "before")
}

func TestRunShell_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	e := New(t.TempDir(), nil)
	e.ShellTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err := e.RunShell(context.Background(), "sleep 5 & sleep 5; wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunShell_Truncates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	e := New(t.TempDir(), nil)
	e.MaxOutput = 100

	out, err := e.RunShell(context.Background(), "head -c 1000 /dev/zero | tr '\\0' a")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "...[truncated]"))
	assert.Equal(t, strings.Repeat("a", 100), out[:100])
}

func TestRunShell_Empty(t *testing.T) {
	_, err := New(t.TempDir(), nil).RunShell(context.Background(), "  ")
	assert.Error(t, err)
}

func TestApplyFileOp_CreateUpdateDelete(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)
	ctx := context.Background()

	require.NoError(t, e.ApplyFileOp(ctx, FileOp{Operation: steps.OpCreate, Path: "src/app/main.js", Content: "a"}))
	data, err := os.ReadFile(filepath.Join(root, "src/app/main.js"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	require.NoError(t, e.ApplyFileOp(ctx, FileOp{Operation: "update", Path: "src/app/main.js", Content: "<b>&</b>"}))
	data, _ = os.ReadFile(filepath.Join(root, "src/app/main.js"))
	assert.Equal(t, "<b>&</b>", string(data))

	require.NoError(t, e.ApplyFileOp(ctx, FileOp{Operation: steps.OpDelete, Path: "src/app/main.js"}))
	assert.NoFileExists(t, filepath.Join(root, "src/app/main.js"))

	entries, _ := os.ReadDir(filepath.Join(root, "src/app"))
	assert.Empty(t, entries, "no temp files left behind")
}

func TestApplyFileOp_UpdateMissingCreates(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)

	require.NoError(t, e.ApplyFileOp(context.Background(), FileOp{Operation: steps.OpUpdate, Path: "new.txt", Content: "x"}))
	assert.FileExists(t, filepath.Join(root, "new.txt"))
}

func TestApplyFileOp_PreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	root := t.TempDir()
	script := filepath.Join(root, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0755))

	require.NoError(t, New(root, nil).ApplyFileOp(context.Background(), FileOp{Operation: steps.OpUpdate, Path: "run.sh", Content: "#!/bin/sh\necho hi\n"}))
	info, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestApplyFileOp_UnsafePaths(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)

	paths := []string{
		"../outside.txt",
		"a/../../outside.txt",
		filepath.Join(filepath.Dir(root), "outside.txt"),
	}
	for _, p := range paths {
		err := e.ApplyFileOp(context.Background(), FileOp{Operation: steps.OpCreate, Path: p, Content: "x"})
		assert.True(t, errors.Is(err, ErrUnsafePath), "path %q: got %v", p, err)
	}
}

func TestApplyFileOp_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	err := New(root, nil).ApplyFileOp(context.Background(), FileOp{Operation: steps.OpCreate, Path: "link/evil.txt", Content: "x"})
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
}

func TestApplyFileOp_Errors(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)
	ctx := context.Background()

	assert.Error(t, e.ApplyFileOp(ctx, FileOp{Operation: steps.OpDelete, Path: "missing.txt"}))
	assert.Error(t, e.ApplyFileOp(ctx, FileOp{Operation: "RENAME", Path: "a.txt"}))
	assert.Error(t, e.ApplyFileOp(ctx, FileOp{Operation: steps.OpCreate, Path: ""}))
}

func TestDryRun(t *testing.T) {
	root := t.TempDir()
	e := New(root, nil)
	e.DryRun = true

	require.NoError(t, e.ApplyFileOp(context.Background(), FileOp{Operation: steps.OpCreate, Path: "x.txt", Content: "x"}))
	assert.NoFileExists(t, filepath.Join(root, "x.txt"))

	out, err := e.RunShell(context.Background(), "touch y.txt")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoFileExists(t, filepath.Join(root, "y.txt"))

	// Unsafe paths are still rejected.
	assert.ErrorIs(t, e.ApplyFileOp(context.Background(), FileOp{Operation: steps.OpCreate, Path: "../x"}), ErrUnsafePath)
}
