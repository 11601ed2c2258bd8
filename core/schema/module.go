package schema

// Manifest is the root of a schema document.
type Manifest struct {
	// Types maps type names to their declarations.
	Types map[string]TypeDef `yaml:"types"`
}

// TypeDef declares one state type.
type TypeDef struct {
	// Extends names the parent type.
	Extends string `yaml:"extends,omitempty"`

	// ExtraProperties is "ignore", "reject" or "allow". Empty inherits.
	ExtraProperties string `yaml:"extra_properties,omitempty"`

	// Props declares ordinary properties.
	Props map[string]Field `yaml:"props,omitempty"`

	// Session declares session properties.
	Session map[string]Field `yaml:"session,omitempty"`

	// Children maps property names to nested type names.
	Children map[string]string `yaml:"children,omitempty"`

	// Collections maps property names to the item type of an in-memory
	// collection.
	Collections map[string]string `yaml:"collections,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// Merge adds the types of other to m. Types present in both are an
// error reported by the caller through the returned names.
func (m *Manifest) Merge(other Manifest) (duplicates []string) {
	if m.Types == nil {
		m.Types = make(map[string]TypeDef)
	}
	for name, def := range other.Types {
		if _, exists := m.Types[name]; exists {
			duplicates = append(duplicates, name)
			continue
		}
		m.Types[name] = def
	}
	return duplicates
}
