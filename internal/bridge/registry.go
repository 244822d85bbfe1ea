package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrProviderNotFound is returned by Registry.Get for unknown names.
var ErrProviderNotFound = errors.New("provider not found")

// Caller is the surface the rest of the program depends on. *Bridge
// implements it; tests substitute fakes.
type Caller interface {
	Invoke(ctx context.Context, operation string, arguments map[string]any) *Result
	ListCapabilities(ctx context.Context) *ToolList
}

// Registry maps provider names to callers. It's populated at startup and
// read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	callers map[string]Caller
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{callers: make(map[string]Caller)}
}

// Register adds a caller under name, replacing any previous entry.
func (r *Registry) Register(name string, c Caller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[name] = c
}

// Lookup returns the caller registered under name.
func (r *Registry) Lookup(name string) (Caller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[name]
	return c, ok
}

// Get is Lookup with an error suitable for returning to users.
func (r *Registry) Get(name string) (Caller, error) {
	if c, ok := r.Lookup(name); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %v)", ErrProviderNotFound, name, r.Names())
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.callers)
}
