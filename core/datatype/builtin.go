package datatype

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/ports"
)

// Built-in type names.
const (
	TypeString = "string"
	TypeDate   = "date"
	TypeArray  = "array"
	TypeObject = "object"

	// TypeAny is never registered. It disables type matching.
	TypeAny = "any"
)

// maxEpochMillis bounds representable dates to ±100,000,000 days.
const maxEpochMillis = 8.64e15

// dateLayouts are tried in order when a string is coerced to a date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// Builtins returns a registry holding the string, date, array and object
// types. The date default reads clk; a nil clk uses the wall clock.
func Builtins(clk ports.Clock) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}

	r := NewRegistry()
	r.Register(TypeString, Entry{
		Default: func() any { return "" },
	})
	r.Register(TypeDate, Entry{
		Set:     CoerceDate,
		Get:     ReadDate,
		Default: func() any { return clk.Now() },
	})
	r.Register(TypeArray, Entry{
		Set: func(v any) (any, string) {
			if IsList(v) {
				return v, TagArray
			}
			return v, TypeOf(v)
		},
		Default: func() any { return []any{} },
	})
	r.Register(TypeObject, Entry{
		Set: func(v any) (any, string) {
			tag := TypeOf(v)
			if tag != TagObject && IsUndefined(v) {
				return nil, TagObject
			}
			return v, tag
		},
		Default: func() any { return map[string]any{} },
	})
	return r
}

// CoerceDate converts v to epoch milliseconds.
//
// nil stays nil with tag "null". time.Time values and numbers convert
// directly. Strings are parsed with the known date layouts, then as a
// leading base-10 integer. Anything else is returned unchanged with its
// runtime tag, which the declared "date" type will then reject.
func CoerceDate(v any) (any, string) {
	switch t := v.(type) {
	case nil:
		return nil, TagNull
	case time.Time:
		return t.UnixMilli(), TagDate
	case *time.Time:
		if t == nil {
			return nil, TagNull
		}
		return t.UnixMilli(), TagDate
	case string:
		if ms, ok := parseDateString(t); ok {
			return ms, TagDate
		}
		if ms, ok := parseLeadingInt(t); ok {
			return ms, TagDate
		}
		return v, TypeOf(v)
	}

	if TypeOf(v) == TagNumber {
		if ms, ok := numberMillis(v); ok {
			return ms, TagDate
		}
	}
	return v, TypeOf(v)
}

// ReadDate turns stored epoch milliseconds back into a time.Time.
func ReadDate(stored any) any {
	if stored == nil {
		return nil
	}
	if ms, ok := numberMillis(stored); ok {
		return time.UnixMilli(ms)
	}
	return stored
}

func parseDateString(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// parseLeadingInt reads an optional sign followed by base-10 digits,
// ignoring leading whitespace and anything after the digits.
func parseLeadingInt(s string) (int64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}

	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return floatMillis(n)
}

func numberMillis(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return floatMillis(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return floatMillis(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return floatMillis(rv.Float())
	}
	return 0, false
}

func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxEpochMillis {
		return 0, false
	}
	return int64(f), true
}
