package datatype

import (
	"reflect"
	"time"
)

// Runtime type tags.
const (
	TagUndefined = "undefined"
	TagObject    = "object"
	TagString    = "string"
	TagNumber    = "number"
	TagBoolean   = "boolean"
	TagFunction  = "function"
	TagNull      = "null"
	TagArray     = "array"
	TagDate      = "date"
)

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks the absence of a value. It differs from nil, which is
// the explicit null value.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// IsNull reports whether v is nil.
func IsNull(v any) bool {
	return v == nil
}

// TypeOf returns the runtime type tag of v.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return TagObject
	case undefined:
		return TagUndefined
	case string:
		return TagString
	case bool:
		return TagBoolean
	case time.Time, *time.Time:
		return TagObject
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TagNumber
	case reflect.String:
		return TagString
	case reflect.Bool:
		return TagBoolean
	case reflect.Func:
		return TagFunction
	default:
		return TagObject
	}
}

// IsList reports whether v is a slice or array.
func IsList(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// IsComposite reports whether v is a mutable container or struct value:
// a map, slice, array, struct or pointer. time.Time counts as a struct.
func IsComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return true
	}
	return false
}

// Equal is the default comparator: deep equality.
func Equal(current, next any) bool {
	return reflect.DeepEqual(current, next)
}

// Contains reports whether values holds an element deeply equal to v.
func Contains(values []any, v any) bool {
	for _, candidate := range values {
		if reflect.DeepEqual(candidate, v) {
			return true
		}
	}
	return false
}
