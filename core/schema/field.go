package schema

import (
	"fmt"

	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/core/state"
	"gopkg.in/yaml.v3"
)

// Field declares one property of a manifest type.
type Field struct {
	// Type is the semantic type name (string, date, array, object, any or
	// a data type supplied to Build).
	Type string `yaml:"type"`

	// Required rejects undefined values and, unless AllowNull, null.
	Required bool `yaml:"required,omitempty"`

	// AllowNull permits null on a required property.
	AllowNull bool `yaml:"allow_null,omitempty"`

	// Default is a scalar default value.
	Default any `yaml:"default,omitempty"`

	// SetOnce freezes the first stored value.
	SetOnce bool `yaml:"set_once,omitempty"`

	// Values is the allow-list.
	Values []any `yaml:"values,omitempty"`

	// Constraints are extra validation rules.
	Constraints []Constraint `yaml:"constraints,omitempty"`
}

// UnmarshalYAML accepts a bare type name as shorthand for {type: name}.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Type = node.Value
		return nil
	}

	type plain Field
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

// Descriptor converts the field into a state descriptor.
func (f Field) Descriptor(name string) (state.Descriptor, error) {
	test, err := Compile(name, f.Constraints)
	if err != nil {
		return state.Descriptor{}, err
	}

	return state.Descriptor{
		Type:      f.Type,
		Required:  f.Required,
		AllowNull: f.AllowNull,
		Default:   f.Default,
		SetOnce:   f.SetOnce,
		Values:    f.Values,
		Test:      test,
	}, nil
}

// validateField checks a field declaration.
func validateField(name string, f Field) error {
	if f.Default != nil && datatype.IsComposite(f.Default) {
		return fmt.Errorf("field %q: default cannot be an object/array", name)
	}

	if f.Values != nil && len(f.Values) == 0 {
		return fmt.Errorf("field %q: values must not be empty", name)
	}

	if f.Default != nil && f.Values != nil && !datatype.Contains(f.Values, f.Default) {
		return fmt.Errorf("field %q: default %v is not one of the allowed values", name, f.Default)
	}

	for i, c := range f.Constraints {
		if err := c.validate(); err != nil {
			return fmt.Errorf("field %q: constraint %d: %w", name, i, err)
		}
	}

	return nil
}
