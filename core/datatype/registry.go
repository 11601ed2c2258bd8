package datatype

import (
	"sort"
	"sync"
)

// SetFunc coerces an incoming value. It returns the value to store and
// the resolved type tag.
type SetFunc func(v any) (any, string)

// Entry describes one semantic type.
type Entry struct {
	// Set coerces values on write. Nil means pass-through, with the
	// resolved tag taken from TypeOf.
	Set SetFunc

	// Get transforms stored values on read. Nil means identity.
	Get func(stored any) any

	// Default produces the type's default value. Each call must return a
	// fresh value.
	Default func() any

	// Compare reports whether current and next are equal. Nil means Equal.
	Compare func(current, next any, key string) bool
}

// Comparator returns the entry's equality function.
func (e Entry) Comparator() func(current, next any, key string) bool {
	if e.Compare != nil {
		return e.Compare
	}
	return func(current, next any, _ string) bool {
		return Equal(current, next)
	}
}

// Registry maps type names to entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or overrides the entry for name.
func (r *Registry) Register(name string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = e
}

// Resolve returns the entry for name.
func (r *Registry) Resolve(name string) (Entry, bool) {
	if r == nil || name == "" {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new registry holding r's entries overridden by each
// fragment in order. Later fragments win, so callers pass them
// least-derived first.
func (r *Registry) Merge(fragments ...map[string]Entry) *Registry {
	merged := NewRegistry()

	r.mu.RLock()
	for name, e := range r.entries {
		merged.entries[name] = e
	}
	r.mu.RUnlock()

	for _, fragment := range fragments {
		for name, e := range fragment {
			merged.entries[name] = e
		}
	}
	return merged
}
