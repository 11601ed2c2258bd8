package state

import "github.com/artpar/statekit/core/events"

// ChangeFunc receives a per-key change: the instance, the new value and
// the options of the Set call.
type ChangeFunc func(s *State, value any, opts Options)

// AggregateFunc receives the aggregate "change" event.
type AggregateFunc func(s *State, opts Options)

// On subscribes a raw handler. Patterns follow events.Bus: "change",
// "change:<key>", "change:*" and "*".
func (s *State) On(pattern string, h events.Handler) (off func()) {
	return s.bus.Subscribe(pattern, h)
}

// OnChange subscribes to "change:<key>".
func (s *State) OnChange(key string, fn ChangeFunc) (off func()) {
	return s.bus.Subscribe("change:"+key, func(e events.Event) error {
		fn(s, e.Value, optionsOf(e))
		return nil
	})
}

// OnAnyChange subscribes to the aggregate "change" event.
func (s *State) OnAnyChange(fn AggregateFunc) (off func()) {
	return s.bus.Subscribe("change", func(e events.Event) error {
		fn(s, optionsOf(e))
		return nil
	})
}

func optionsOf(e events.Event) Options {
	o, _ := e.Options.(Options)
	return o
}
