package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/core/state"
)

// ConstraintType names a validation rule.
type ConstraintType string

const (
	ConstraintMin       ConstraintType = "min"
	ConstraintMax       ConstraintType = "max"
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"
	ConstraintNotEmpty  ConstraintType = "not_empty"
	ConstraintOneOf     ConstraintType = "one_of"
)

// Constraint is one validation rule attached to a field.
type Constraint struct {
	Type    ConstraintType `yaml:"type"`
	Value   any            `yaml:"value,omitempty"`
	Message string         `yaml:"message,omitempty"`
}

// ConstraintError describes a failed constraint.
type ConstraintError struct {
	Property   string
	Constraint ConstraintType
	Message    string
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Property, e.Message)
}

// check is a compiled rule. ok is false when the value violates it.
type check func(value any) (ok bool, message string)

// validate checks the rule's own shape.
func (c Constraint) validate() error {
	_, err := c.compile()
	return err
}

// compile turns the rule into a check.
func (c Constraint) compile() (check, error) {
	switch c.Type {
	case ConstraintMin, ConstraintMax:
		bound, ok := toFloat64(c.Value)
		if !ok {
			return nil, fmt.Errorf("%s needs a numeric value", c.Type)
		}
		isMin := c.Type == ConstraintMin
		return func(v any) (bool, string) {
			n, ok := toFloat64(v)
			if !ok {
				return true, ""
			}
			if isMin && n < bound {
				return false, fmt.Sprintf("must be at least %v", c.Value)
			}
			if !isMin && n > bound {
				return false, fmt.Sprintf("must be at most %v", c.Value)
			}
			return true, ""
		}, nil

	case ConstraintMinLength, ConstraintMaxLength:
		limit, ok := toInt(c.Value)
		if !ok || limit < 0 {
			return nil, fmt.Errorf("%s needs a non-negative integer value", c.Type)
		}
		isMin := c.Type == ConstraintMinLength
		return func(v any) (bool, string) {
			s, ok := v.(string)
			if !ok {
				return true, ""
			}
			n := len([]rune(s))
			if isMin && n < limit {
				return false, fmt.Sprintf("must be at least %d characters", limit)
			}
			if !isMin && n > limit {
				return false, fmt.Sprintf("must be at most %d characters", limit)
			}
			return true, ""
		}, nil

	case ConstraintPattern:
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("pattern needs a string value")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return func(v any) (bool, string) {
			s, ok := v.(string)
			if !ok || re.MatchString(s) {
				return true, ""
			}
			return false, fmt.Sprintf("must match pattern %s", pattern)
		}, nil

	case ConstraintNotEmpty:
		return func(v any) (bool, string) {
			s, ok := v.(string)
			if !ok || strings.TrimSpace(s) != "" {
				return true, ""
			}
			return false, "must not be empty"
		}, nil

	case ConstraintOneOf:
		options, ok := c.Value.([]any)
		if !ok || len(options) == 0 {
			return nil, fmt.Errorf("one_of needs a non-empty list value")
		}
		return func(v any) (bool, string) {
			got := fmt.Sprint(v)
			for _, opt := range options {
				if fmt.Sprint(opt) == got {
					return true, ""
				}
			}
			return false, fmt.Sprintf("must be one of %v", options)
		}, nil
	}

	return nil, fmt.Errorf("unknown constraint type %q", c.Type)
}

// Compile builds a test hook that runs every constraint in order and
// reports the first failure. It returns a nil hook for no constraints.
func Compile(property string, constraints []Constraint) (state.TestFunc, error) {
	if len(constraints) == 0 {
		return nil, nil
	}

	type rule struct {
		check   check
		message string
	}
	rules := make([]rule, 0, len(constraints))
	for _, c := range constraints {
		fn, err := c.compile()
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", property, err)
		}
		rules = append(rules, rule{check: fn, message: c.Message})
	}

	return func(_ *state.State, value any, _ string) string {
		if value == nil || datatype.IsUndefined(value) {
			return ""
		}
		for _, r := range rules {
			if ok, msg := r.check(value); !ok {
				if r.message != "" {
					return r.message
				}
				return msg
			}
		}
		return ""
	}, nil
}

// Check runs constraints against a single value outside any state object.
func Check(property string, value any, constraints []Constraint) error {
	test, err := Compile(property, constraints)
	if err != nil || test == nil {
		return err
	}
	if msg := test(nil, value, datatype.TypeOf(value)); msg != "" {
		c := constraintFor(value, constraints)
		return ConstraintError{Property: property, Constraint: c, Message: msg}
	}
	return nil
}

// constraintFor finds the first constraint the value violates.
func constraintFor(value any, constraints []Constraint) ConstraintType {
	for _, c := range constraints {
		fn, err := c.compile()
		if err != nil {
			continue
		}
		if ok, _ := fn(value); !ok {
			return c.Type
		}
	}
	return ""
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat64(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
