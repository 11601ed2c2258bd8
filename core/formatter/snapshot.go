package formatter

import (
	"sync"

	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/state"
)

// Snapshot is the printable view of one state object.
type Snapshot struct {
	Type        string                `json:"type" yaml:"type"`
	CID         string                `json:"cid" yaml:"cid"`
	Attributes  map[string]any        `json:"attributes" yaml:"attributes"`
	Children    map[string]Snapshot   `json:"children,omitempty" yaml:"children,omitempty"`
	Collections map[string][]Snapshot `json:"collections,omitempty" yaml:"collections,omitempty"`
	Changes     []Change              `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// Change is one recorded change event.
type Change struct {
	Event string `json:"event" yaml:"event"`
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Capture takes a snapshot of s, its children and the models of its
// collections.
func Capture(s *state.State) Snapshot {
	snap := Snapshot{
		Type:       s.Schema().TypeName(),
		CID:        s.CID(),
		Attributes: s.Attributes(),
	}

	for _, name := range s.Schema().Children() {
		child, ok := s.Child(name)
		if !ok {
			continue
		}
		if snap.Children == nil {
			snap.Children = make(map[string]Snapshot)
		}
		snap.Children[name] = Capture(child)
	}

	for _, name := range s.Schema().Collections() {
		c, ok := s.Collection(name)
		if !ok {
			continue
		}
		lister, ok := c.(modelLister)
		if !ok {
			continue
		}
		items := make([]Snapshot, 0)
		for _, m := range lister.Models() {
			items = append(items, Capture(m))
		}
		if snap.Collections == nil {
			snap.Collections = make(map[string][]Snapshot)
		}
		snap.Collections[name] = items
	}
	return snap
}

// modelLister is implemented by collections that expose their models.
type modelLister interface {
	Models() []*state.State
}

// ChangeLog records every event a state object emits.
type ChangeLog struct {
	mu      sync.Mutex
	entries []Change
	off     func()
}

// Record starts recording the events of s.
func Record(s *state.State) *ChangeLog {
	l := &ChangeLog{}
	l.off = s.On("*", func(e events.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		c := Change{Event: e.Name, Key: e.Key, Value: e.Value}
		if datatype.IsUndefined(c.Value) {
			c.Value = nil
		}
		l.entries = append(l.entries, c)
		return nil
	})
	return l
}

// Entries returns a copy of the recorded changes.
func (l *ChangeLog) Entries() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Change, len(l.entries))
	copy(out, l.entries)
	return out
}

// Stop ends recording.
func (l *ChangeLog) Stop() {
	if l.off != nil {
		l.off()
	}
}

// TypeInfo describes a resolved type.
type TypeInfo struct {
	Name            string         `json:"name" yaml:"name"`
	Extends         string         `json:"extends,omitempty" yaml:"extends,omitempty"`
	ExtraProperties string         `json:"extra_properties" yaml:"extra_properties"`
	Properties      []PropertyInfo `json:"properties" yaml:"properties"`
	Children        []string       `json:"children,omitempty" yaml:"children,omitempty"`
}

// PropertyInfo describes one resolved property.
type PropertyInfo struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Session  bool   `json:"session,omitempty" yaml:"session,omitempty"`
	SetOnce  bool   `json:"set_once,omitempty" yaml:"set_once,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Describe resolves t and returns its description.
func Describe(t *state.Type) (TypeInfo, error) {
	sc, err := t.Schema()
	if err != nil {
		return TypeInfo{}, err
	}

	info := TypeInfo{
		Name:            t.Name,
		ExtraProperties: string(sc.Policy()),
		Children:        sc.Children(),
	}
	if t.Parent != nil {
		info.Extends = t.Parent.Name
	}

	for _, name := range sc.Names() {
		def, ok := sc.Definition(name)
		if !ok {
			continue
		}
		p := PropertyInfo{
			Name:     name,
			Type:     def.Type,
			Required: def.Required,
			Session:  def.Session,
			SetOnce:  def.SetOnce,
		}
		if _, producer := def.Default.(func() any); !producer {
			p.Default = def.Default
		}
		info.Properties = append(info.Properties, p)
	}
	return info, nil
}
