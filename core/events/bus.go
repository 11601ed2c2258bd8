// Package events provides the synchronous notification bus behind state
// change events.
//
// Event names use ':' as separator ("change:name"). Handlers may publish,
// subscribe or unsubscribe from inside a handler; each Publish works on a
// snapshot of the handlers that matched when it started.
package events

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "change", "change:title").
	Name string

	// Key is the property name for per-key events, empty otherwise.
	Key string

	// Source is the object that emitted the event.
	Source any

	// Value is the new value for per-key events.
	Value any

	// Options carries the options of the call that caused the event.
	Options any
}

// Handler is a function that processes an event.
type Handler func(event Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event and returns a function that
// removes it.
// Supports wildcard subscriptions:
//   - "change:title" - exact match
//   - "change:*" - every per-key change event
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], subscription{id: id, handler: handler})

	return func() { b.remove(event, id) }
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]
	for i, s := range subs {
		if s.id == id {
			b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Publish emits an event to all matching handlers.
// Handlers are called synchronously: exact matches first, then prefix
// wildcards, then "*", each group in registration order.
// If a handler returns an error, publishing continues and the error is
// logged.
func (b *Bus) Publish(event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Int("handlers", len(matched)).
		Msg("event emitted")

	for _, handler := range matched {
		if err := handler(event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	collect := func(key string) {
		for _, s := range b.handlers[key] {
			matched = append(matched, s.handler)
		}
	}

	collect(name)
	if prefix, _, ok := strings.Cut(name, ":"); ok {
		collect(prefix + ":*")
	}
	if name != "*" {
		collect("*")
	}
	return matched
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	return len(b.match(event)) > 0
}
