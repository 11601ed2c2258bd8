package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/ports"
)

// PreValidator inspects a Set call before anything else happens.
// Returning false aborts the call without error.
type PreValidator func(s *State, attrs map[string]any, opts Options) bool

// Collection is a child container that receives delegated sets.
type Collection interface {
	Set(value any, opts Options) error
}

// CollectionFactory builds the collection owned by a new instance.
type CollectionFactory func(owner *State) Collection

// Type is the declaration of one kind of state object. Parent links it to
// the type it extends; the fragments of every level are merged base-first
// the first time the schema is needed.
//
// A Type must not be copied or modified after its first instance is
// created.
type Type struct {
	// Name appears in error messages.
	Name string

	// Parent is the type this one extends.
	Parent *Type

	// Props declares ordinary properties.
	Props map[string]Descriptor

	// Session declares session properties.
	Session map[string]Descriptor

	// DataTypes registers or overrides semantic types.
	DataTypes map[string]datatype.Entry

	// Children declares nested state objects built with each instance.
	Children map[string]*Type

	// Collections declares nested collections built with each instance.
	Collections map[string]CollectionFactory

	// ExtraProperties handles undeclared keys. Empty inherits from
	// Parent, and ignores when no level sets it.
	ExtraProperties Policy

	// Validate is the pre-validation hook. Nil inherits from Parent.
	Validate PreValidator

	// Clock drives the date default. Nil inherits from Parent.
	Clock ports.Clock

	// Observer receives lifecycle signals. Nil inherits from Parent.
	Observer ports.Observer

	once   sync.Once
	schema *Schema
	err    error
}

type slotKind int

const (
	slotOwn slotKind = iota
	slotChild
	slotCollection
)

// slot is what a property name dispatches to.
type slot struct {
	kind       slotKind
	definition *Definition
	child      *Type
	collection CollectionFactory
}

// Schema is the resolved, read-only form of a Type.
type Schema struct {
	typeName string
	registry *datatype.Registry
	slots    map[string]slot
	names    []string
	children []string
	colls    []string
	policy   Policy
	validate PreValidator
	observer ports.Observer
}

// Schema resolves the type on first use and returns the cached result
// afterwards. Errors are cached too.
func (t *Type) Schema() (*Schema, error) {
	t.once.Do(func() {
		t.schema, t.err = t.resolve()
		if t.err == nil {
			t.schema.observer.SchemaResolved(t.Name, len(t.schema.names))
		}
	})
	return t.schema, t.err
}

// chain returns the type hierarchy base-first.
func (t *Type) chain() ([]*Type, error) {
	var chain []*Type
	seen := make(map[*Type]bool)
	for cur := t; cur != nil; cur = cur.Parent {
		if seen[cur] {
			return nil, &ConfigurationError{Message: fmt.Sprintf("type %q has an inheritance cycle", t.Name)}
		}
		seen[cur] = true
		chain = append([]*Type{cur}, chain...)
	}
	return chain, nil
}

func (t *Type) resolve() (*Schema, error) {
	chain, err := t.chain()
	if err != nil {
		return nil, err
	}

	props := make(map[string]Descriptor)
	session := make(map[string]Descriptor)
	children := make(map[string]*Type)
	collections := make(map[string]CollectionFactory)
	var dataTypes []map[string]datatype.Entry

	sc := &Schema{
		typeName: t.Name,
		slots:    make(map[string]slot),
		observer: ports.NopObserver{},
	}
	var clk ports.Clock

	for _, level := range chain {
		for k, v := range level.Props {
			props[k] = v
		}
		for k, v := range level.Session {
			session[k] = v
		}
		for k, v := range level.Children {
			children[k] = v
		}
		for k, v := range level.Collections {
			collections[k] = v
		}
		if level.DataTypes != nil {
			dataTypes = append(dataTypes, level.DataTypes)
		}
		if level.ExtraProperties != "" {
			sc.policy = level.ExtraProperties
		}
		if level.Validate != nil {
			sc.validate = level.Validate
		}
		if level.Clock != nil {
			clk = level.Clock
		}
		if level.Observer != nil {
			sc.observer = level.Observer
		}
	}

	sc.registry = datatype.Builtins(clk).Merge(dataTypes...)

	for _, group := range []struct {
		descs     map[string]Descriptor
		isSession bool
	}{{props, false}, {session, true}} {
		for _, name := range sortedKeys(group.descs) {
			def, err := createDefinition(name, group.descs[name], group.isSession, sc.registry)
			if err != nil {
				return nil, err
			}
			sc.slots[name] = slot{kind: slotOwn, definition: def}
		}
	}
	sc.names = sortedKeys(sc.slots)

	for _, name := range sortedKeys(children) {
		if err := sc.claim(name, slot{kind: slotChild, child: children[name]}); err != nil {
			return nil, err
		}
		sc.children = append(sc.children, name)
	}
	for _, name := range sortedKeys(collections) {
		if err := sc.claim(name, slot{kind: slotCollection, collection: collections[name]}); err != nil {
			return nil, err
		}
		sc.colls = append(sc.colls, name)
	}

	return sc, nil
}

func (sc *Schema) claim(name string, s slot) error {
	if _, exists := sc.slots[name]; exists {
		return &ConfigurationError{
			Property: name,
			Message:  fmt.Sprintf("%q is declared more than once on %s", name, sc.displayName()),
		}
	}
	sc.slots[name] = s
	return nil
}

func (sc *Schema) displayName() string {
	if sc.typeName == "" {
		return "this"
	}
	return sc.typeName
}

// TypeName returns the name of the resolved type.
func (sc *Schema) TypeName() string {
	return sc.typeName
}

// Registry returns the resolved data type registry.
func (sc *Schema) Registry() *datatype.Registry {
	return sc.registry
}

// Policy returns the effective extraProperties policy.
func (sc *Schema) Policy() Policy {
	if sc.policy == "" {
		return ExtraIgnore
	}
	return sc.policy
}

// Names returns the declared property names in sorted order.
func (sc *Schema) Names() []string {
	return append([]string(nil), sc.names...)
}

// Children returns the names of nested state objects.
func (sc *Schema) Children() []string {
	return append([]string(nil), sc.children...)
}

// Collections returns the names of nested collections.
func (sc *Schema) Collections() []string {
	return append([]string(nil), sc.colls...)
}

// Definition returns a copy of the named property's definition.
func (sc *Schema) Definition(name string) (Definition, bool) {
	s, ok := sc.slots[name]
	if !ok || s.kind != slotOwn {
		return Definition{}, false
	}
	def := *s.definition
	def.Values = append([]any(nil), s.definition.Values...)
	return def, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
