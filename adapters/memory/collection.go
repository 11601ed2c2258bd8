// Package memory provides in-memory implementations of state containers.
package memory

import (
	"fmt"
	"sync"

	"github.com/artpar/statekit/core/state"
)

// IDAttribute is the attribute that identifies a model inside a
// collection.
const IDAttribute = "id"

// Collection is an in-memory, ordered set of state objects of one type.
// It implements state.Collection. Like its models, a Collection is meant
// for one goroutine at a time; the lock only keeps readers from seeing a
// half-replaced model list.
type Collection struct {
	mu     sync.RWMutex
	owner  *state.State
	item   *state.Type
	opts   []state.NewOption
	models []*state.State
}

// NewCollection creates an empty collection of item models owned by owner.
func NewCollection(owner *state.State, item *state.Type, opts ...state.NewOption) *Collection {
	return &Collection{
		owner: owner,
		item:  item,
		opts:  opts,
	}
}

// Factory returns a state.CollectionFactory producing collections of item.
func Factory(item *state.Type, opts ...state.NewOption) state.CollectionFactory {
	return func(owner *state.State) state.Collection {
		return NewCollection(owner, item, opts...)
	}
}

// Set replaces the contents with value, a list of attribute maps or
// *state.State models. A map whose id matches a current model updates that
// model in place; other maps create new models. Models missing from value
// are removed. nil empties the collection.
//
// New models are built before anything changes, so a rejected item leaves
// the collection untouched. Updates to matched models are applied in order
// and are not rolled back when a later item fails.
func (c *Collection) Set(value any, opts state.Options) error {
	items, err := asItems(value)
	if err != nil {
		return err
	}

	c.mu.RLock()
	current := make(map[string]*state.State, len(c.models))
	for _, m := range c.models {
		if id, ok := idOf(m); ok {
			current[id] = m
		}
	}
	c.mu.RUnlock()

	type pending struct {
		model *state.State
		attrs map[string]any
	}
	plan := make([]pending, 0, len(items))

	for i, item := range items {
		switch v := item.(type) {
		case *state.State:
			plan = append(plan, pending{model: v})
		case map[string]any:
			if id := v[IDAttribute]; id != nil {
				if existing, ok := current[fmt.Sprint(id)]; ok {
					plan = append(plan, pending{model: existing, attrs: v})
					continue
				}
			}
			m, err := c.build(v)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			plan = append(plan, pending{model: m})
		default:
			return fmt.Errorf("item %d: unsupported collection item %T", i, item)
		}
	}

	models := make([]*state.State, 0, len(plan))
	for i, p := range plan {
		if p.attrs != nil {
			if _, err := p.model.SetMany(p.attrs, state.WithOptions(opts)); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		models = append(models, p.model)
	}

	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
	return nil
}

func (c *Collection) build(attrs map[string]any) (*state.State, error) {
	if c.item == nil {
		return nil, fmt.Errorf("collection has no item type")
	}
	var opts []state.NewOption
	if c.owner != nil {
		opts = append(opts, c.owner.NestedOptions()...)
	}
	opts = append(opts, state.WithParent(c))
	opts = append(opts, c.opts...)
	return state.New(c.item, attrs, opts...)
}

// idOf returns the stored id of m. Defaults are not consulted, so reading
// the id never writes to the model.
func idOf(m *state.State) (string, bool) {
	if !m.Has(IDAttribute) {
		return "", false
	}
	return fmt.Sprint(m.Get(IDAttribute)), true
}

// asItems normalizes the accepted list shapes.
func asItems(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []*state.State:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("collection value must be a list, got %T", value)
}

// Owner returns the state object the collection belongs to.
func (c *Collection) Owner() *state.State {
	return c.owner
}

// Len returns the number of models.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// At returns the model at index i.
func (c *Collection) At(i int) (*state.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i < 0 || i >= len(c.models) {
		return nil, false
	}
	return c.models[i], true
}

// Get returns the model whose id attribute equals id.
func (c *Collection) Get(id any) (*state.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want := fmt.Sprint(id)
	for _, m := range c.models {
		if v, ok := idOf(m); ok && v == want {
			return m, true
		}
	}
	return nil, false
}

// Models returns the models in order.
func (c *Collection) Models() []*state.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*state.State(nil), c.models...)
}

var _ state.Collection = (*Collection)(nil)
