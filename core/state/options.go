package state

import (
	"github.com/artpar/statekit/ports"
	"github.com/rs/zerolog"
)

// Options are the flags of one Set call. They are passed unchanged to
// change listeners.
type Options struct {
	// Unset removes changed properties instead of storing them.
	Unset bool

	// Silent suppresses change notifications.
	Silent bool

	// Initial permits changing a SetOnce property that already has a value.
	Initial bool
}

// Option configures a Set call.
type Option func(*Options)

// Unset removes the value instead of storing it.
func Unset() Option {
	return func(o *Options) { o.Unset = true }
}

// Silent suppresses change notifications.
func Silent() Option {
	return func(o *Options) { o.Silent = true }
}

// Initial allows re-setting SetOnce properties.
func Initial() Option {
	return func(o *Options) { o.Initial = true }
}

// WithOptions applies a whole Options value, e.g. one received by a
// listener.
func WithOptions(src Options) Option {
	return func(o *Options) { *o = src }
}

func resolveOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Policy controls what Set does with keys that have no definition.
type Policy string

const (
	// ExtraIgnore skips undeclared keys. It is the default.
	ExtraIgnore Policy = "ignore"

	// ExtraReject fails the whole Set with a SchemaRejectionError.
	ExtraReject Policy = "reject"

	// ExtraAllow stores undeclared keys as untyped properties.
	ExtraAllow Policy = "allow"
)

// Valid reports whether p is a known policy. The empty policy is valid and
// behaves like ExtraIgnore.
func (p Policy) Valid() bool {
	switch p {
	case "", ExtraIgnore, ExtraReject, ExtraAllow:
		return true
	}
	return false
}

type newConfig struct {
	parent   any
	logger   zerolog.Logger
	ids      ports.IDGenerator
	observer ports.Observer
}

// NewOption configures state construction.
type NewOption func(*newConfig)

// WithParent sets the owning object. The state keeps the reference but
// does not manage its lifetime.
func WithParent(parent any) NewOption {
	return func(c *newConfig) { c.parent = parent }
}

// WithLogger sets the logger used by the state and its event bus.
func WithLogger(logger zerolog.Logger) NewOption {
	return func(c *newConfig) { c.logger = logger }
}

// WithIDGenerator overrides the process-wide cid generator.
func WithIDGenerator(ids ports.IDGenerator) NewOption {
	return func(c *newConfig) { c.ids = ids }
}

// WithObserver overrides the type's observer for this instance.
func WithObserver(o ports.Observer) NewOption {
	return func(c *newConfig) { c.observer = o }
}
