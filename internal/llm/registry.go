package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages available model backends.
type Registry struct {
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get retrieves a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model backend %q (available: %v)", name, r.Names())
	}
	return b, nil
}

// Names returns sorted names of all registered backends.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry creates a registry with codex and claude-code registered.
// model applies to both.
func DefaultRegistry(model string) *Registry {
	reg := NewRegistry()
	codex := NewCodexBackend()
	codex.Model = model
	reg.Register(codex)
	reg.Register(NewClaudeBackend(model))
	return reg
}
