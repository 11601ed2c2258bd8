package state

import (
	"fmt"
	"strings"

	"github.com/artpar/statekit/adapters/idgen"
	"github.com/artpar/statekit/core/datatype"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/ports"
	"github.com/rs/zerolog"
)

// CIDPrefix prefixes every cid drawn from the process-wide generator.
const CIDPrefix = "state"

// Undefined is the explicit "no value" marker, distinct from nil (null).
var Undefined = datatype.Undefined

// cids is the process-wide cid source. It starts at 1 when the process
// starts and is safe for concurrent use. Every idgen.Shared generator
// draws from the same counter.
var cids ports.IDGenerator = idgen.Shared(CIDPrefix)

// State is one typed, observable attribute container.
//
// A State is not safe for concurrent use. Listeners may call Set on the
// same instance; see Set for how nested calls are batched.
type State struct {
	cid      string
	parent   any
	typ      *Type
	schema   *Schema
	logger   zerolog.Logger
	observer ports.Observer
	bus      *events.Bus

	// base logger and cid source, handed on to nested objects
	baseLogger zerolog.Logger
	ids        ports.IDGenerator

	values      map[string]any
	extra       map[string]*Definition
	children    map[string]*State
	collections map[string]Collection

	changed  map[string]any
	previous map[string]any
	changing bool
	pending  bool
}

// change is one recorded property change within a Set call.
type change struct {
	key  string
	prev any
	val  any
}

// New constructs an instance of t. The schema of t is resolved on the
// first call for that type. Initial attrs are applied silently with the
// Initial flag.
func New(t *Type, attrs map[string]any, opts ...NewOption) (*State, error) {
	sc, err := t.Schema()
	if err != nil {
		return nil, err
	}

	cfg := newConfig{
		logger:   zerolog.Nop(),
		ids:      cids,
		observer: sc.observer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &State{
		cid:      cfg.ids.New(),
		parent:   cfg.parent,
		typ:      t,
		schema:   sc,
		observer: cfg.observer,
		values:   make(map[string]any),
		changed:  make(map[string]any),
		previous: make(map[string]any),

		baseLogger: cfg.logger,
		ids:        cfg.ids,
	}
	s.logger = cfg.logger.With().Str("type", sc.typeName).Str("cid", s.cid).Logger()
	s.bus = events.NewBus(s.logger)

	if err := s.buildChildren(); err != nil {
		return nil, err
	}

	if len(attrs) > 0 {
		ok, err := s.set(attrs, Options{Silent: true, Initial: true})
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug().Msg("initial attributes refused by pre-validation")
		}
	}
	return s, nil
}

func (s *State) buildChildren() error {
	for _, name := range s.schema.children {
		childType := s.schema.slots[name].child
		if s.ownedBy(childType) {
			return &ConfigurationError{
				Property: name,
				Message:  fmt.Sprintf("child %q of %s nests its own type", name, s.schema.displayName()),
			}
		}
		child, err := New(childType, nil, append(s.NestedOptions(), WithParent(s))...)
		if err != nil {
			return fmt.Errorf("build child %q: %w", name, err)
		}
		if s.children == nil {
			s.children = make(map[string]*State)
		}
		s.children[name] = child
	}

	for _, name := range s.schema.colls {
		if s.collections == nil {
			s.collections = make(map[string]Collection)
		}
		s.collections[name] = s.schema.slots[name].collection(s)
	}
	return nil
}

// NestedOptions returns the construction options nested objects inherit
// from s: its logger and its cid generator. Collections pass them to the
// models they build.
func (s *State) NestedOptions() []NewOption {
	return []NewOption{
		WithLogger(s.baseLogger),
		WithIDGenerator(s.ids),
	}
}

// ownedBy reports whether t is the type of s or of any State above it.
func (s *State) ownedBy(t *Type) bool {
	for cur := s; cur != nil; {
		if cur.typ == t {
			return true
		}
		p, ok := cur.parent.(*State)
		if !ok {
			return false
		}
		cur = p
	}
	return false
}

// CID returns the process-unique client identifier.
func (s *State) CID() string {
	return s.cid
}

// Parent returns the owner passed with WithParent.
func (s *State) Parent() any {
	return s.parent
}

// Type returns the declaration s was built from.
func (s *State) Type() *Type {
	return s.typ
}

// Schema returns the resolved schema, shared by every instance of the type.
func (s *State) Schema() *Schema {
	return s.schema
}

// Child returns the nested state object declared under name.
func (s *State) Child(name string) (*State, bool) {
	c, ok := s.children[name]
	return c, ok
}

// Collection returns the nested collection declared under name.
func (s *State) Collection(name string) (Collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}

// Set sets one property. See SetMany.
func (s *State) Set(key string, value any, opts ...Option) (bool, error) {
	return s.set(map[string]any{key: value}, resolveOptions(opts))
}

// SetMany sets several properties in one call.
//
// Keys are processed in sorted order. Every key is coerced and validated
// before any value is stored; an error on any key aborts the call with
// nothing committed. Keys naming a child or collection are delegated to it
// immediately and do not take part in this instance's change tracking.
//
// After committing, a "change:<key>" event is emitted per changed key,
// then a single "change" event. A Set made by a listener during that
// phase commits and emits its own per-key events right away, while the
// outermost call emits "change" again until no listener has made further
// changes.
//
// It returns (true, nil) on success and (false, nil) when the
// pre-validation hook refuses the call.
func (s *State) SetMany(attrs map[string]any, opts ...Option) (bool, error) {
	return s.set(attrs, resolveOptions(opts))
}

func (s *State) set(attrs map[string]any, opts Options) (bool, error) {
	if s.schema.validate != nil && !s.schema.validate(s, attrs, opts) {
		s.logger.Debug().Msg("set refused by pre-validation")
		s.observer.SetRejected(s.schema.typeName)
		return false, nil
	}

	changing := s.changing
	s.changing = true
	if !changing {
		defer func() {
			s.pending = false
			s.changing = false
		}()
		s.previous = s.snapshot()
		s.changed = make(map[string]any)
	}

	changes, unchanged, err := s.check(attrs, opts)
	if err != nil {
		s.logger.Debug().Err(err).Msg("set aborted")
		return false, err
	}

	for _, key := range unchanged {
		delete(s.changed, key)
	}
	for _, c := range changes {
		s.changed[c.key] = c.val
		if datatype.IsUndefined(c.prev) {
			delete(s.previous, c.key)
		} else {
			s.previous[c.key] = c.prev
		}
		if opts.Unset {
			delete(s.values, c.key)
		} else {
			s.values[c.key] = c.val
		}
	}

	if !opts.Silent && len(changes) > 0 {
		s.pending = true
	}
	if !opts.Silent {
		for _, c := range changes {
			s.emit(events.Event{
				Name:    "change:" + c.key,
				Key:     c.key,
				Source:  s,
				Value:   s.expose(c.key, c.val),
				Options: opts,
			})
		}
	}

	if changing {
		return true, nil
	}

	if !opts.Silent {
		for s.pending {
			s.pending = false
			s.emit(events.Event{Name: "change", Source: s, Options: opts})
		}
	}
	s.observer.SetApplied(s.schema.typeName, len(changes))
	return true, nil
}

// check runs the per-key pipeline and returns the changes to commit and
// the keys whose value did not change.
func (s *State) check(attrs map[string]any, opts Options) ([]change, []string, error) {
	var changes []change
	var unchanged []string

	for _, key := range sortedKeys(attrs) {
		newVal := attrs[key]

		def, delegated, err := s.lookup(key, newVal, opts)
		if err != nil {
			return nil, nil, s.fail(key, err)
		}
		if def == nil || delegated {
			continue
		}

		entry, _ := s.schema.registry.Resolve(def.Type)
		isEqual := entry.Comparator()

		newType := datatype.TypeOf(newVal)
		if entry.Set != nil {
			newVal, newType = entry.Set(newVal)
		}

		if def.Test != nil {
			if msg := def.Test(s, newVal, newType); msg != "" {
				return nil, nil, s.fail(key, &ValidationError{
					Property:   key,
					Constraint: ConstraintTest,
					Value:      newVal,
					Message:    fmt.Sprintf("property '%s' failed validation with error: %s", key, msg),
				})
			}
		}

		if err := checkConstraints(def, key, newVal, newType); err != nil {
			return nil, nil, s.fail(key, err)
		}

		currentVal, ok := s.values[key]
		if !ok {
			currentVal = datatype.Undefined
		}
		hasChanged := !isEqual(currentVal, newVal, key)

		if def.SetOnce && !datatype.IsUndefined(currentVal) && hasChanged && !opts.Initial {
			return nil, nil, s.fail(key, &ValidationError{
				Property:   key,
				Constraint: ConstraintSetOnce,
				Value:      newVal,
				Message:    fmt.Sprintf("property '%s' can only be set once", key),
			})
		}

		if hasChanged {
			changes = append(changes, change{key: key, prev: currentVal, val: newVal})
		} else {
			unchanged = append(unchanged, key)
		}
	}
	return changes, unchanged, nil
}

// lookup dispatches key to its slot. It returns the definition to
// validate against, or delegated=true when a child handled the value, or
// a nil definition when the key is ignored.
func (s *State) lookup(key string, value any, opts Options) (*Definition, bool, error) {
	if sl, ok := s.schema.slots[key]; ok {
		switch sl.kind {
		case slotOwn:
			return sl.definition, false, nil
		case slotChild:
			return nil, true, s.delegateChild(key, value, opts)
		case slotCollection:
			return nil, true, s.collections[key].Set(value, opts)
		}
	}
	if def, ok := s.extra[key]; ok {
		return def, false, nil
	}

	switch policy := s.schema.policy; policy {
	case "", ExtraIgnore:
		return nil, false, nil
	case ExtraReject:
		return nil, false, &SchemaRejectionError{Property: key, TypeName: s.schema.typeName}
	case ExtraAllow:
		def, _ := createDefinition(key, Prop(datatype.TypeAny), false, s.schema.registry)
		if s.extra == nil {
			s.extra = make(map[string]*Definition)
		}
		s.extra[key] = def
		return def, false, nil
	default:
		return nil, false, &ConfigurationError{
			Property: key,
			Message:  fmt.Sprintf("invalid value for extraProperties: %q", string(policy)),
		}
	}
}

func (s *State) delegateChild(key string, value any, opts Options) error {
	child := s.children[key]
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		_, err := child.set(v, opts)
		return err
	case *State:
		_, err := child.set(v.Attributes(), opts)
		return err
	default:
		return &ValidationError{
			Property:   key,
			Constraint: ConstraintType,
			Value:      value,
			Message:    fmt.Sprintf("property '%s' holds a nested %s and must be set with a map, tried to set %v", key, child.schema.displayName(), value),
		}
	}
}

// checkConstraints applies the required, null, type and values rules in
// that order.
func checkConstraints(def *Definition, key string, val any, typ string) error {
	undefined := datatype.IsUndefined(val)
	null := datatype.IsNull(val)

	if undefined && def.Required {
		return &ValidationError{
			Property:   key,
			Constraint: ConstraintRequired,
			Value:      val,
			Message:    fmt.Sprintf("required property '%s' must be of type %s, tried to set %s", key, def.Type, display(val)),
		}
	}
	if null && def.Required && !def.AllowNull {
		return &ValidationError{
			Property:   key,
			Constraint: ConstraintNull,
			Value:      val,
			Message:    fmt.Sprintf("property '%s' must be of type %s (cannot be null), tried to set %s", key, def.Type, display(val)),
		}
	}
	if def.Type != "" && def.Type != datatype.TypeAny && def.Type != typ && !null && !undefined {
		return &ValidationError{
			Property:   key,
			Constraint: ConstraintType,
			Value:      val,
			Message:    fmt.Sprintf("property '%s' must be of type %s, tried to set %s", key, def.Type, display(val)),
		}
	}
	if def.Values != nil && !datatype.Contains(def.Values, val) {
		allowed := make([]string, len(def.Values))
		for i, v := range def.Values {
			allowed[i] = display(v)
		}
		return &ValidationError{
			Property:   key,
			Constraint: ConstraintValues,
			Value:      val,
			Message:    fmt.Sprintf("property '%s' must be one of values: %s, tried to set %s", key, strings.Join(allowed, ", "), display(val)),
		}
	}
	return nil
}

func display(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v", v)
}

func (s *State) fail(key string, err error) error {
	s.observer.ValidationFailed(s.schema.typeName, key, constraintOf(err))
	return err
}

func (s *State) emit(e events.Event) {
	s.observer.Notified(s.schema.typeName, e.Name)
	s.bus.Publish(e)
}

// Get returns the current value of name. Unset properties produce their
// default, which is then remembered. Dates come back as time.Time. Child
// and collection names return the nested object. Unknown names and unset
// properties without a default read as nil.
func (s *State) Get(name string) any {
	if c, ok := s.children[name]; ok {
		return c
	}
	if c, ok := s.collections[name]; ok {
		return c
	}

	def := s.definition(name)
	if v, ok := s.values[name]; ok && !datatype.IsUndefined(v) {
		return s.expose(name, v)
	}
	if def == nil {
		return nil
	}

	v := def.defaultValue()
	if datatype.IsUndefined(v) {
		return nil
	}
	s.values[name] = v
	return v
}

// Has reports whether name currently holds a stored value.
func (s *State) Has(name string) bool {
	v, ok := s.values[name]
	return ok && !datatype.IsUndefined(v)
}

// Unset removes the named properties. Properties with a default fall back
// to it on the next read.
func (s *State) Unset(names []string, opts ...Option) (bool, error) {
	attrs := make(map[string]any, len(names))
	for _, name := range names {
		attrs[name] = datatype.Undefined
		if def := s.definition(name); def != nil && def.HasDefault() {
			attrs[name] = def.defaultValue()
		}
	}
	o := resolveOptions(opts)
	o.Unset = true
	return s.set(attrs, o)
}

func (s *State) definition(name string) *Definition {
	if sl, ok := s.schema.slots[name]; ok && sl.kind == slotOwn {
		return sl.definition
	}
	return s.extra[name]
}

// expose applies the type's read transform to a stored value.
func (s *State) expose(name string, v any) any {
	def := s.definition(name)
	if def == nil {
		return v
	}
	if entry, ok := s.schema.registry.Resolve(def.Type); ok && entry.Get != nil {
		return entry.Get(v)
	}
	return v
}

func (s *State) snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Attributes returns the stored values, read-transformed, keyed by name.
// Defaults that were never read are not included.
func (s *State) Attributes() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if datatype.IsUndefined(v) {
			continue
		}
		out[k] = s.expose(k, v)
	}
	return out
}

// Previous returns the value name had before the latest outermost Set.
func (s *State) Previous(name string) any {
	v, ok := s.previous[name]
	if !ok {
		return nil
	}
	return s.expose(name, v)
}

// PreviousAttributes returns every value as of before the latest
// outermost Set.
func (s *State) PreviousAttributes() map[string]any {
	out := make(map[string]any, len(s.previous))
	for k, v := range s.previous {
		out[k] = s.expose(k, v)
	}
	return out
}

// ChangedAttributes returns the properties changed since the latest
// outermost Set began, with their new values.
func (s *State) ChangedAttributes() map[string]any {
	out := make(map[string]any, len(s.changed))
	for k, v := range s.changed {
		out[k] = s.expose(k, v)
	}
	return out
}

// HasChanged reports whether name changed in the latest outermost Set.
// An empty name asks whether anything changed.
func (s *State) HasChanged(name string) bool {
	if name == "" {
		return len(s.changed) > 0
	}
	_, ok := s.changed[name]
	return ok
}
