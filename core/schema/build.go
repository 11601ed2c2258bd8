package schema

import (
	"fmt"

	"github.com/artpar/statekit/adapters/memory"
	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/ports"
)

// BuildOptions configures the types produced by Build.
type BuildOptions struct {
	// ExtraProperties applies to root types that do not declare a policy.
	ExtraProperties state.Policy

	// DataTypes are registered on every root type so manifests can name
	// them.
	DataTypes map[string]datatype.Entry

	// Clock drives date defaults. Nil uses wall-clock time.
	Clock ports.Clock

	// Observer is attached to every root type.
	Observer ports.Observer
}

// Build turns a validated manifest into linked state types keyed by name.
// Derived types inherit options through their root.
func Build(m Manifest, opts BuildOptions) (map[string]*state.Type, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	if !opts.ExtraProperties.Valid() {
		return nil, fmt.Errorf("invalid extra_properties policy %q", opts.ExtraProperties)
	}

	types := make(map[string]*state.Type, len(m.Types))
	for _, name := range sortedNames(m.Types) {
		types[name] = &state.Type{Name: name}
	}

	for _, name := range sortedNames(m.Types) {
		def := m.Types[name]
		t := types[name]

		props, err := descriptors(def.Props)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", name, err)
		}
		session, err := descriptors(def.Session)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", name, err)
		}
		t.Props = props
		t.Session = session
		t.ExtraProperties = state.Policy(def.ExtraProperties)

		if len(def.Children) > 0 {
			t.Children = make(map[string]*state.Type, len(def.Children))
			for child, target := range def.Children {
				t.Children[child] = types[target]
			}
		}

		if len(def.Collections) > 0 {
			t.Collections = make(map[string]state.CollectionFactory, len(def.Collections))
			for coll, target := range def.Collections {
				t.Collections[coll] = memory.Factory(types[target])
			}
		}

		if def.Extends != "" {
			t.Parent = types[def.Extends]
			continue
		}

		if t.ExtraProperties == "" {
			t.ExtraProperties = opts.ExtraProperties
		}
		t.DataTypes = opts.DataTypes
		t.Clock = opts.Clock
		t.Observer = opts.Observer
	}

	return types, nil
}

// Resolve builds the manifest and resolves every type's schema so
// configuration errors surface before any instance is created.
func Resolve(m Manifest, opts BuildOptions) (map[string]*state.Type, error) {
	types, err := Build(m, opts)
	if err != nil {
		return nil, err
	}

	for _, name := range sortedNames(types) {
		if _, err := types[name].Schema(); err != nil {
			return nil, fmt.Errorf("type %q: %w", name, err)
		}
	}
	return types, nil
}

func descriptors(fields map[string]Field) (map[string]state.Descriptor, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	out := make(map[string]state.Descriptor, len(fields))
	for name, f := range fields {
		desc, err := f.Descriptor(name)
		if err != nil {
			return nil, err
		}
		out[name] = desc
	}
	return out, nil
}
