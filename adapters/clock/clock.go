// Package clock provides Clock implementations for the date data type.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/statekit/ports"
)

// Real reads the wall clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a manually driven clock. Date defaults produced while a Fake is
// installed are deterministic.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewFakeMillis creates a fake clock frozen at the given epoch milliseconds.
func NewFakeMillis(ms int64) *Fake {
	return NewFake(time.UnixMilli(ms))
}

// Now returns the frozen time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Ensure interface compliance.
var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
