// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import "time"

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
// The date data type uses it to produce its default value.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
// State objects draw their cid from one.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Observation Ports
// -----------------------------------------------------------------------------

// Observer receives engine lifecycle signals.
// Implementations must be cheap; they run inline with every set.
type Observer interface {
	// SchemaResolved is called once per type when its schema is built.
	SchemaResolved(typeName string, properties int)

	// SetApplied is called after a successful set with the number of
	// properties whose value changed.
	SetApplied(typeName string, changed int)

	// SetRejected is called when the pre-validation hook refuses a set.
	SetRejected(typeName string)

	// ValidationFailed is called when a set aborts with an error.
	// constraint is one of the validation constraint names, or
	// "configuration" / "schema" for the other error kinds.
	ValidationFailed(typeName, property, constraint string)

	// Notified is called for every change notification emitted.
	Notified(typeName, event string)
}

// NopObserver discards every signal.
type NopObserver struct{}

func (NopObserver) SchemaResolved(string, int) {}
func (NopObserver) SetApplied(string, int) {}
func (NopObserver) SetRejected(string) {}
func (NopObserver) ValidationFailed(string, string, string) {}
func (NopObserver) Notified(string, string) {}

// Ensure interface compliance.
var _ Observer = NopObserver{}
