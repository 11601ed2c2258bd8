package state

import (
	"fmt"

	"github.com/artpar/statekit/core/datatype"
)

// TestFunc validates a coerced value. A non-empty return is the error
// message. s is the instance being set, so tests can read sibling values.
type TestFunc func(s *State, value any, typ string) string

// Descriptor declares one property.
type Descriptor struct {
	// Type is the semantic type name. Unregistered names leave the
	// property untyped.
	Type string

	// Required rejects undefined values and, unless AllowNull, nil.
	Required bool

	// AllowNull permits nil on a required property.
	AllowNull bool

	// Default is a scalar literal or a func() any producer. Maps, slices,
	// arrays, structs and pointers must be wrapped in a producer.
	Default any

	// SetOnce rejects changing a value once one is stored, unless the set
	// passes Initial.
	SetOnce bool

	// Test is an optional custom validator.
	Test TestFunc

	// Values is an optional allow-list.
	Values []any
}

// Prop is the shorthand for a descriptor that only names a type.
func Prop(typ string) Descriptor {
	return Descriptor{Type: typ}
}

// Definition is the resolved form of a Descriptor. Definitions are shared
// by every instance of a type and never change after schema setup.
type Definition struct {
	Name      string
	Type      string
	Required  bool
	AllowNull bool
	SetOnce   bool
	Session   bool
	Default   any
	Test      TestFunc
	Values    []any
}

// HasDefault reports whether reading an unset value produces something.
func (d *Definition) HasDefault() bool {
	return d.Default != nil
}

// defaultValue resolves the default: producers are invoked, literals
// returned as they are, and a missing default is Undefined.
func (d *Definition) defaultValue() any {
	switch v := d.Default.(type) {
	case nil:
		return datatype.Undefined
	case func() any:
		return v()
	default:
		return v
	}
}

func createDefinition(name string, desc Descriptor, isSession bool, registry *datatype.Registry) (*Definition, error) {
	def := &Definition{
		Name:      name,
		Required:  desc.Required,
		AllowNull: desc.AllowNull,
		SetOnce:   desc.SetOnce,
		Session:   isSession,
		Test:      desc.Test,
		Values:    desc.Values,
	}

	var entry datatype.Entry
	if e, ok := registry.Resolve(desc.Type); ok {
		def.Type = desc.Type
		entry = e
	}

	switch d := desc.Default.(type) {
	case nil, func() any:
	default:
		if datatype.IsComposite(d) {
			return nil, &ConfigurationError{
				Property: name,
				Message: fmt.Sprintf("the default value for %s cannot be an object/array, "+
					"must be a value or a function which returns a value/object/array", name),
			}
		}
		if datatype.TypeOf(d) == datatype.TagFunction {
			return nil, &ConfigurationError{
				Property: name,
				Message:  fmt.Sprintf("the default function for %s must have the signature func() any, got %T", name, d),
			}
		}
	}
	def.Default = desc.Default

	if def.Required && def.Default == nil && !def.SetOnce && entry.Default != nil {
		def.Default = entry.Default
	}

	return def, nil
}
