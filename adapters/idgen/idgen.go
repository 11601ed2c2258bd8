// Package idgen provides identifier generators for state object cids.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/artpar/statekit/ports"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// process is the counter behind every Shared generator.
var process uint64

// Sequential generates prefix+counter identifiers ("state1", "state2", ...).
// The counter is monotonic and safe for concurrent use.
type Sequential struct {
	prefix  string
	counter *uint64
}

// NewSequential creates a sequential ID generator with its own counter.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix, counter: new(uint64)}
}

// Shared creates a sequential ID generator drawing from the process-wide
// counter. Identifiers from Shared generators never repeat within a
// process, whatever their prefix.
func Shared(prefix string) *Sequential {
	return &Sequential{prefix: prefix, counter: &process}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter (for testing). On a Shared generator this
// resets the process-wide counter.
func (s *Sequential) Reset() {
	atomic.StoreUint64(s.counter, 0)
}

// UUID generates prefixed UUID v4 identifiers.
type UUID struct {
	Prefix string
}

// New generates a new prefixed UUID.
func (u UUID) New() string {
	return u.Prefix + uuid.New().String()
}

// NanoAlphabet is the character set used by NanoID.
const NanoAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NanoID generates short, URL-safe random identifiers.
type NanoID struct {
	Prefix string
	Length int
}

// New generates a new prefixed nanoid. It panics only if the system
// random source fails, which IDGenerator has no way to report.
func (n NanoID) New() string {
	length := n.Length
	if length <= 0 {
		length = 10
	}
	id, err := nanoid.Generate(NanoAlphabet, length)
	if err != nil {
		panic(fmt.Sprintf("idgen: %v", err))
	}
	return n.Prefix + id
}

// ByName returns the generator registered under name.
// Known names are "sequential", "uuid" and "nanoid". Sequential generators
// share the process-wide counter; length only applies to nanoid.
func ByName(name, prefix string, length int) (ports.IDGenerator, error) {
	switch name {
	case "", "sequential":
		return Shared(prefix), nil
	case "uuid":
		return UUID{Prefix: prefix}, nil
	case "nanoid":
		return NanoID{Prefix: prefix, Length: length}, nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", name)
	}
}

// Ensure interface compliance.
var (
	_ ports.IDGenerator = (*Sequential)(nil)
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = NanoID{}
)
