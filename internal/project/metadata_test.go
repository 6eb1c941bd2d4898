package project

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silver2dream/devmend/internal/config"
)

func TestStartCommand_Precedence(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "go.mod", "module x\n")

	m := New(dir, nil)
	cmd, err := m.StartCommand()
	require.NoError(t, err)
	assert.Equal(t, "go run .", cmd)

	m.SetConfig(&config.Config{Project: config.ProjectConfig{StartCommand: "make dev"}})
	cmd, _ = m.StartCommand()
	assert.Equal(t, "make dev", cmd)

	m.Override = "air"
	cmd, _ = m.StartCommand()
	assert.Equal(t, "air", cmd)
}

func TestStartCommand_None(t *testing.T) {
	_, err := New(t.TempDir(), nil).StartCommand()
	assert.True(t, errors.Is(err, ErrNoStartCommand))
}

func TestProjectContext(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "package.json", `{"name": "shop", "description": "storefront", "scripts": {"dev": "vite"}}`)
	write(t, dir, "src/main.ts", "")
	write(t, dir, "node_modules/x/index.js", "")
	write(t, dir, ".env", "")

	cfg := &config.Config{Project: config.ProjectConfig{Notes: "uses Postgres on 5432"}}
	ctx := New(dir, cfg).ProjectContext()

	for _, want := range []string{
		"Project: shop",
		"Description: storefront",
		"Detected stack: node",
		"Start command: npm run dev",
		"Notes: uses Postgres on 5432",
		"  src/",
		"  package.json",
	} {
		assert.Contains(t, ctx, want)
	}
	assert.NotContains(t, ctx, "node_modules")
	assert.NotContains(t, ctx, ".env")
}

func TestProjectContext_ListingIsBounded(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < maxListing+20; i++ {
		write(t, dir, fmt.Sprintf("file%03d.txt", i), "")
	}

	ctx := New(dir, nil).ProjectContext()
	assert.Equal(t, maxListing, strings.Count(ctx, ".txt"))
	assert.Contains(t, ctx, "  ...")
}

func TestRemember_Persists(t *testing.T) {
	dir := t.TempDir()

	m := New(dir, nil)
	require.NoError(t, m.Remember("port", "3001"))
	require.NoError(t, m.Remember("db", "postgres"))
	require.NoError(t, m.Remember("db", ""))

	reloaded := New(dir, nil)
	assert.Equal(t, map[string]string{"port": "3001"}, reloaded.Facts())
	assert.Contains(t, reloaded.ProjectContext(), "port = 3001")

	assert.Error(t, m.Remember(" ", "x"))
}
