/*
Package datatype maps semantic type names to coercion, default and
comparison behavior.

A state property declares a type by name ("string", "date", "array",
"object", or any name registered by a type's DataTypes fragment). When the
property is set, the Entry registered under that name coerces the incoming
value into its stored representation and reports a resolved type tag; the
state engine then rejects the value if that tag differs from the declared
type.

# Runtime type tags

Go values are tagged with the names below (see TypeOf):

	undefined   the Undefined sentinel
	object      nil, maps, slices, arrays, structs, pointers, time.Time
	string      strings
	number      every integer and float kind
	boolean     bools
	function    funcs

Coercions may refine a tag: "array" for slices, "date" for values that
parsed as a point in time.

# Built-in types

	string  no coercion, default ""
	date    stored as epoch milliseconds (int64), read back as time.Time
	array   tagged "array" when the value is a slice, default []any{}
	object  Undefined coerces to nil, default map[string]any{}

The name "any" is not registered; properties declared "any" skip type
matching altogether.
*/
package datatype
