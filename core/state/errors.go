package state

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSchemaRejection = errors.New("schema rejection")
	ErrValidation      = errors.New("validation error")
)

// Validation constraint names reported by ValidationError.
const (
	ConstraintTest     = "test"
	ConstraintRequired = "required"
	ConstraintNull     = "null"
	ConstraintType     = "type"
	ConstraintValues   = "values"
	ConstraintSetOnce  = "set_once"
)

// ConfigurationError reports a malformed schema declaration or an invalid
// extraProperties policy.
type ConfigurationError struct {
	Property string
	Message  string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// SchemaRejectionError reports an undeclared property on a type whose
// extraProperties policy is "reject".
type SchemaRejectionError struct {
	Property string
	TypeName string
}

func (e *SchemaRejectionError) Error() string {
	name := e.TypeName
	if name == "" {
		name = "this"
	}
	return fmt.Sprintf("no %q property defined on %s model and extraProperties not set to \"ignore\" or \"allow\"", e.Property, name)
}

// Is reports whether target is ErrSchemaRejection.
func (e *SchemaRejectionError) Is(target error) bool {
	return target == ErrSchemaRejection
}

// ValidationError reports a value refused by a property's rules.
type ValidationError struct {
	Property   string
	Constraint string
	Value      any
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// constraintOf names the failure kind of err for observers.
func constraintOf(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Constraint
	case errors.Is(err, ErrSchemaRejection):
		return "schema"
	default:
		return "configuration"
	}
}
