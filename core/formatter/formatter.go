// Package formatter renders state snapshots and type descriptions.
// Formatters convert them to output formats (table, json, yaml).
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Formatter converts snapshots and type descriptions to a specific output
// format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatSnapshot formats one state object.
	FormatSnapshot(w io.Writer, snap Snapshot, opts FormatOptions) error

	// FormatTypes formats resolved type descriptions.
	FormatTypes(w io.Writer, types []TypeInfo, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Keys limits attributes to the named ones (nil = all).
	Keys []string

	// NoHeader disables header rows for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// NoChanges omits the change log.
	NoChanges bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

// filter applies Keys and NoChanges to a snapshot, recursively.
func (o FormatOptions) filter(snap Snapshot) Snapshot {
	if len(o.Keys) > 0 {
		attrs := make(map[string]any, len(o.Keys))
		for _, k := range o.Keys {
			if v, ok := snap.Attributes[k]; ok {
				attrs[k] = v
			}
		}
		snap.Attributes = attrs
	}
	if o.NoChanges {
		snap.Changes = nil
	}
	if len(snap.Children) > 0 {
		children := make(map[string]Snapshot, len(snap.Children))
		for name, child := range snap.Children {
			children[name] = FormatOptions{NoChanges: o.NoChanges}.filter(child)
		}
		snap.Children = children
	}
	if len(snap.Collections) > 0 {
		collections := make(map[string][]Snapshot, len(snap.Collections))
		for name, items := range snap.Collections {
			filtered := make([]Snapshot, len(items))
			for i, item := range items {
				filtered[i] = FormatOptions{NoChanges: o.NoChanges}.filter(item)
			}
			collections[name] = filtered
		}
		snap.Collections = collections
	}
	return snap
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Lookup returns the named formatter, or the default one for an empty name.
func (r *Registry) Lookup(name string) (Formatter, error) {
	if name == "" {
		if f := r.Default(); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("no formatters registered")
	}

	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", name, r.List())
	}
	return f, nil
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[r.defaultFmt]
	if !ok {
		// Fall back to the first name in order.
		names := make([]string, 0, len(r.formatters))
		for name := range r.formatters {
			names = append(names, name)
		}
		if len(names) == 0 {
			return nil
		}
		sort.Strings(names)
		return r.formatters[names[0]]
	}
	return f
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Lookup resolves a formatter from the default registry.
func Lookup(name string) (Formatter, error) {
	return DefaultRegistry.Lookup(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}
