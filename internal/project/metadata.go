// Package project answers questions about the supervised project: how to
// start it and what to tell the model about it.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/silver2dream/devmend/internal/config"
)

// ErrNoStartCommand is returned when no start command is configured or detectable.
var ErrNoStartCommand = errors.New("no start command configured or detected")

const maxListing = 50

// FactsFile stores values recorded by metadata fix steps.
const FactsFile = "facts.yaml"

// skipped from the listing in addition to dot-directories
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	"venv":         true,
}

// Metadata resolves project facts for the supervisor and the repair prompt.
type Metadata struct {
	Root     string
	Override string // explicit start command, wins over everything

	mu     sync.RWMutex
	config *config.Config
	facts  map[string]string
}

// New returns Metadata for root. Stored facts are loaded when present.
func New(root string, cfg *config.Config) *Metadata {
	if cfg == nil {
		cfg = &config.Config{}
	}
	m := &Metadata{Root: root, config: cfg, facts: map[string]string{}}
	if data, err := os.ReadFile(m.factsPath()); err == nil {
		_ = yaml.Unmarshal(data, &m.facts)
		if m.facts == nil {
			m.facts = map[string]string{}
		}
	}
	return m
}

// Config returns the current configuration.
func (m *Metadata) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the configuration, e.g. after the file changed.
func (m *Metadata) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// StartCommand resolves the command that runs the project: the explicit
// override, then project.start_command, then detection.
func (m *Metadata) StartCommand() (string, error) {
	if s := strings.TrimSpace(m.Override); s != "" {
		return s, nil
	}
	if s := strings.TrimSpace(m.Config().Project.StartCommand); s != "" {
		return s, nil
	}
	if stack, ok := Detect(m.Root); ok {
		return stack.StartCommand, nil
	}
	return "", ErrNoStartCommand
}

// Remember records a fact reported by a metadata step and persists it.
// An empty value removes the key.
func (m *Metadata) Remember(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("metadata key is required")
	}

	m.mu.Lock()
	if value == "" {
		delete(m.facts, key)
	} else {
		m.facts[key] = value
	}
	data, err := yaml.Marshal(m.facts)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.factsPath()), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.factsPath(), data, 0644)
}

// Facts returns a copy of the recorded facts.
func (m *Metadata) Facts() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.facts))
	for k, v := range m.facts {
		out[k] = v
	}
	return out
}

func (m *Metadata) factsPath() string {
	return filepath.Join(m.Root, config.Dir, "state", FactsFile)
}

// ProjectContext describes the project for the repair prompt.
func (m *Metadata) ProjectContext() string {
	cfg := m.Config()
	var b strings.Builder

	name := cfg.Project.Name
	description := cfg.Project.Description
	if pkg, err := readPackageJSON(m.Root); err == nil {
		if name == "" {
			name = pkg.Name
		}
		if description == "" {
			description = pkg.Description
		}
	}
	if name == "" {
		name = filepath.Base(m.Root)
	}

	fmt.Fprintf(&b, "Project: %s\n", name)
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	if stack, ok := Detect(m.Root); ok {
		fmt.Fprintf(&b, "Detected stack: %s\n", stack.Name)
	}
	if cmd, err := m.StartCommand(); err == nil {
		fmt.Fprintf(&b, "Start command: %s\n", cmd)
	}
	if notes := strings.TrimSpace(cfg.Project.Notes); notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", notes)
	}

	if facts := m.Facts(); len(facts) > 0 {
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Recorded facts:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s\n", k, facts[k])
		}
	}

	if listing := m.listing(); len(listing) > 0 {
		b.WriteString("Top-level files:\n")
		for _, entry := range listing {
			fmt.Fprintf(&b, "  %s\n", entry)
		}
	}
	return b.String()
}

// listing returns up to maxListing top-level entries, directories suffixed
// with a slash.
func (m *Metadata) listing() []string {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			if skipDirs[name] {
				continue
			}
			name += "/"
		}
		out = append(out, name)
		if len(out) == maxListing {
			out = append(out, "...")
			break
		}
	}
	return out
}
