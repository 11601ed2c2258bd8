package state_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/state"
)

// recorder is a ports.Observer that counts signals.
type recorder struct {
	mu          sync.Mutex
	resolved    int
	applied     int
	rejected    int
	failures    []string
	notified    []string
	lastChanged int
}

func (r *recorder) SchemaResolved(string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved++
}

func (r *recorder) SetApplied(_ string, changed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied++
	r.lastChanged = changed
}

func (r *recorder) SetRejected(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

func (r *recorder) ValidationFailed(_, property, constraint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, property+":"+constraint)
}

func (r *recorder) Notified(_, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, event)
}

func mustNew(t *testing.T, typ *state.Type, attrs map[string]any, opts ...state.NewOption) *state.State {
	t.Helper()
	s, err := state.New(typ, attrs, opts...)
	if err != nil {
		t.Fatalf("New(%s) error: %v", typ.Name, err)
	}
	return s
}

func mustSet(t *testing.T, s *state.State, key string, value any, opts ...state.Option) {
	t.Helper()
	ok, err := s.Set(key, value, opts...)
	if err != nil {
		t.Fatalf("Set(%q, %v) error: %v", key, value, err)
	}
	if !ok {
		t.Fatalf("Set(%q, %v) refused", key, value)
	}
}

func wantValidation(t *testing.T, err error, property, constraint string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error on %q, got nil", constraint, property)
	}
	if !errors.Is(err, state.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var verr *state.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Property != property || verr.Constraint != constraint {
		t.Errorf("got %s/%s, want %s/%s (%v)", verr.Property, verr.Constraint, property, constraint, err)
	}
}

// eventLog subscribes to every event of s and records names in order.
func eventLog(s *state.State) *[]string {
	var log []string
	s.On("*", func(e events.Event) error {
		log = append(log, e.Name)
		return nil
	})
	return &log
}
