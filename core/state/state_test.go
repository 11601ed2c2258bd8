package state_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/adapters/idgen"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/state"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func personType() *state.Type {
	return &state.Type{
		Name:  "person",
		Clock: clock.NewFake(fixedNow),
		Props: map[string]state.Descriptor{
			"name":     state.Prop("string"),
			"born":     {Type: "date"},
			"tags":     {Type: "array", Required: true},
			"meta":     {Type: "object", Required: true},
			"title":    {Type: "string", Required: true},
			"created":  {Type: "date", Required: true},
			"role":     {Type: "string", Values: []any{"admin", "user"}, Default: "user"},
			"id":       {Type: "string", SetOnce: true},
			"nick":     {Type: "string", Required: true, AllowNull: true},
			"anything": {},
		},
	}
}

func TestNew_CID(t *testing.T) {
	typ := personType()
	a := mustNew(t, typ, nil)
	b := mustNew(t, typ, nil)

	if !strings.HasPrefix(a.CID(), state.CIDPrefix) {
		t.Errorf("cid %q missing prefix %q", a.CID(), state.CIDPrefix)
	}
	if a.CID() == b.CID() {
		t.Errorf("cids not unique: %s", a.CID())
	}

	c := mustNew(t, typ, nil, state.WithIDGenerator(idgen.NewSequential("person")))
	if c.CID() != "person1" {
		t.Errorf("cid = %q, want person1", c.CID())
	}
}

func TestNew_Parent(t *testing.T) {
	owner := &struct{ name string }{"owner"}
	s := mustNew(t, personType(), nil, state.WithParent(owner))

	if s.Parent() != owner {
		t.Errorf("Parent() = %v, want owner", s.Parent())
	}
}

func TestNew_InitialAttributesAreSilent(t *testing.T) {
	typ := personType()
	s := mustNew(t, typ, map[string]any{"name": "Ada", "id": "p1"})

	if s.Get("name") != "Ada" {
		t.Errorf("name = %v, want Ada", s.Get("name"))
	}
	if s.Get("id") != "p1" {
		t.Errorf("id = %v, want p1", s.Get("id"))
	}

	_, err := state.New(typ, map[string]any{"name": 7})
	wantValidation(t, err, "name", state.ConstraintType)
}

func TestGet_RequiredDefaults(t *testing.T) {
	s := mustNew(t, personType(), nil)

	if got := s.Get("title"); got != "" {
		t.Errorf("title = %v, want empty string", got)
	}
	if got, ok := s.Get("tags").([]any); !ok || len(got) != 0 {
		t.Errorf("tags = %#v, want empty []any", s.Get("tags"))
	}
	if got, ok := s.Get("meta").(map[string]any); !ok || len(got) != 0 {
		t.Errorf("meta = %#v, want empty map", s.Get("meta"))
	}
	if got, ok := s.Get("created").(time.Time); !ok || !got.Equal(fixedNow) {
		t.Errorf("created = %v, want %v", s.Get("created"), fixedNow)
	}
	if got := s.Get("role"); got != "user" {
		t.Errorf("role = %v, want literal default user", got)
	}
	if got := s.Get("name"); got != nil {
		t.Errorf("unset name = %v, want nil", got)
	}
	if got := s.Get("nope"); got != nil {
		t.Errorf("unknown = %v, want nil", got)
	}
}

func TestGet_DefaultIsMemoized(t *testing.T) {
	calls := 0
	typ := &state.Type{Props: map[string]state.Descriptor{
		"n": {Default: func() any { calls++; return calls }},
	}}
	s := mustNew(t, typ, nil)

	if s.Get("n") != 1 || s.Get("n") != 1 {
		t.Errorf("default not memoized, calls = %d", calls)
	}
	if !s.Has("n") {
		t.Error("Has(n) should be true after the default was read")
	}
}

func TestGet_FreshContainerDefaults(t *testing.T) {
	typ := personType()
	a := mustNew(t, typ, nil)
	b := mustNew(t, typ, nil)

	am := a.Get("meta").(map[string]any)
	bm := b.Get("meta").(map[string]any)
	if reflect.ValueOf(am).Pointer() == reflect.ValueOf(bm).Pointer() {
		t.Fatal("two instances share one default map")
	}
	am["k"] = "v"
	if len(b.Get("meta").(map[string]any)) != 0 {
		t.Error("mutating one default leaked into the other instance")
	}

	at := append(a.Get("tags").([]any), "x")
	mustSet(t, a, "tags", at)
	if len(b.Get("tags").([]any)) != 0 {
		t.Error("array default shared between instances")
	}
}

func TestSet_DateRoundTrip(t *testing.T) {
	s := mustNew(t, personType(), nil)
	born := time.Date(1815, 12, 10, 8, 30, 0, 0, time.UTC)

	mustSet(t, s, "born", born)

	got, ok := s.Get("born").(time.Time)
	if !ok {
		t.Fatalf("born = %T, want time.Time", s.Get("born"))
	}
	if got.UnixMilli() != born.UnixMilli() {
		t.Errorf("born = %v, want %v", got, born)
	}

	mustSet(t, s, "born", "2024-06-15T12:00:00Z")
	if got := s.Get("born").(time.Time); !got.Equal(fixedNow) {
		t.Errorf("born from string = %v, want %v", got, fixedNow)
	}

	mustSet(t, s, "born", nil)
	if s.Get("born") != nil {
		t.Errorf("born = %v, want nil", s.Get("born"))
	}
}

func TestSet_DateUnparseable(t *testing.T) {
	s := mustNew(t, personType(), nil)

	_, err := s.Set("born", "the day after tomorrow")
	wantValidation(t, err, "born", state.ConstraintType)
	if s.Has("born") {
		t.Error("failed set stored a value")
	}
}

func TestSet_TypeMismatch(t *testing.T) {
	s := mustNew(t, personType(), nil)

	tests := []struct {
		key   string
		value any
	}{
		{"name", 42},
		{"tags", "a,b"},
		{"meta", 3},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := s.Set(tt.key, tt.value)
			wantValidation(t, err, tt.key, state.ConstraintType)
		})
	}
}

func TestSet_RequiredAndNull(t *testing.T) {
	s := mustNew(t, personType(), nil)

	_, err := s.Set("title", state.Undefined)
	wantValidation(t, err, "title", state.ConstraintRequired)

	_, err = s.Set("title", nil)
	wantValidation(t, err, "title", state.ConstraintNull)

	mustSet(t, s, "nick", nil)
	if s.Get("nick") != nil {
		t.Errorf("nick = %v, want nil", s.Get("nick"))
	}

	// Optional properties accept nil regardless of type.
	mustSet(t, s, "name", nil)
}

func TestSet_Values(t *testing.T) {
	s := mustNew(t, personType(), nil)

	mustSet(t, s, "role", "admin")

	_, err := s.Set("role", "root")
	wantValidation(t, err, "role", state.ConstraintValues)
	if !strings.Contains(err.Error(), "admin, user") {
		t.Errorf("message %q should list allowed values", err.Error())
	}
	if s.Get("role") != "admin" {
		t.Errorf("role = %v, want admin", s.Get("role"))
	}
}

func TestSet_UntypedAcceptsAnything(t *testing.T) {
	s := mustNew(t, personType(), nil)

	for _, v := range []any{1, "x", []any{1}, map[string]any{"a": 1}, nil} {
		mustSet(t, s, "anything", v)
	}

	typ := &state.Type{Props: map[string]state.Descriptor{"x": state.Prop("no-such-type")}}
	u := mustNew(t, typ, nil)
	mustSet(t, u, "x", 12)

	def, _ := u.Schema().Definition("x")
	if def.Type != "" {
		t.Errorf("unknown type kept as %q, want untyped", def.Type)
	}
}

func TestSet_SameValueTwice(t *testing.T) {
	s := mustNew(t, personType(), nil)

	count := 0
	s.OnChange("name", func(_ *state.State, v any, _ state.Options) {
		count++
		if v != "Ada" {
			t.Errorf("listener value = %v, want Ada", v)
		}
	})

	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "name", "Ada")

	if count != 1 {
		t.Errorf("change:name fired %d times, want 1", count)
	}
	if s.HasChanged("name") {
		t.Error("no-op set should leave name out of the changed set")
	}
}

func TestSet_SetOnce(t *testing.T) {
	s := mustNew(t, personType(), nil)

	mustSet(t, s, "id", "p1")
	mustSet(t, s, "id", "p1") // same value is not a change

	_, err := s.Set("id", "p2")
	wantValidation(t, err, "id", state.ConstraintSetOnce)
	if s.Get("id") != "p1" {
		t.Errorf("id = %v, want p1", s.Get("id"))
	}

	mustSet(t, s, "id", "p3", state.Initial())
	if s.Get("id") != "p3" {
		t.Errorf("id = %v, want p3", s.Get("id"))
	}
}

func TestSet_TestHook(t *testing.T) {
	typ := &state.Type{Props: map[string]state.Descriptor{
		"password": state.Prop("string"),
		"confirm": {Type: "string", Test: func(s *state.State, v any, typ string) string {
			if typ != "string" {
				return "not a string"
			}
			if v != s.Get("password") {
				return "does not match password"
			}
			return ""
		}},
	}}
	s := mustNew(t, typ, map[string]any{"password": "secret"})

	mustSet(t, s, "confirm", "secret")

	_, err := s.Set("confirm", "other")
	wantValidation(t, err, "confirm", state.ConstraintTest)
	if !strings.Contains(err.Error(), "does not match password") {
		t.Errorf("message %q should carry the test error", err.Error())
	}
}

func TestSetMany_NoPartialCommit(t *testing.T) {
	s := mustNew(t, personType(), nil)
	log := eventLog(s)

	_, err := s.SetMany(map[string]any{"anything": 1, "name": "Ada", "title": 5})
	wantValidation(t, err, "title", state.ConstraintType)

	if s.Has("anything") || s.Has("name") {
		t.Error("keys validated before the failure were committed")
	}
	if len(*log) != 0 {
		t.Errorf("failed set emitted %v", *log)
	}

	// The instance is usable after a failure.
	mustSet(t, s, "name", "Ada")
	if s.Get("name") != "Ada" {
		t.Error("set after a failure did not apply")
	}
}

func TestSetMany_EventOrder(t *testing.T) {
	s := mustNew(t, personType(), nil)
	log := eventLog(s)

	ok, err := s.SetMany(map[string]any{"title": "Dr", "name": "Ada", "anything": 1})
	if err != nil || !ok {
		t.Fatalf("SetMany = %v, %v", ok, err)
	}

	want := "change:anything,change:name,change:title,change"
	if got := strings.Join(*log, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestSetMany_Nil(t *testing.T) {
	s := mustNew(t, personType(), nil)
	log := eventLog(s)

	ok, err := s.SetMany(nil)
	if !ok || err != nil {
		t.Errorf("SetMany(nil) = %v, %v", ok, err)
	}
	if len(*log) != 0 {
		t.Errorf("SetMany(nil) emitted %v", *log)
	}
}

func TestSet_Silent(t *testing.T) {
	s := mustNew(t, personType(), nil)
	log := eventLog(s)

	mustSet(t, s, "name", "Ada", state.Silent())

	if s.Get("name") != "Ada" {
		t.Error("silent set did not store")
	}
	if len(*log) != 0 {
		t.Errorf("silent set emitted %v", *log)
	}
	if !s.HasChanged("name") {
		t.Error("silent set should still track the change")
	}
}

func TestSet_UnsetOption(t *testing.T) {
	s := mustNew(t, personType(), nil)
	mustSet(t, s, "name", "Ada")

	var opts state.Options
	s.OnChange("name", func(_ *state.State, _ any, o state.Options) { opts = o })

	mustSet(t, s, "name", "x", state.Unset())

	if s.Has("name") {
		t.Error("unset did not remove the value")
	}
	if !opts.Unset {
		t.Error("listener did not receive the unset option")
	}
	if s.Previous("name") != "Ada" {
		t.Errorf("Previous(name) = %v, want Ada", s.Previous("name"))
	}
}

func TestUnset(t *testing.T) {
	s := mustNew(t, personType(), nil)
	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "role", "admin")

	ok, err := s.Unset([]string{"name", "role"})
	if !ok || err != nil {
		t.Fatalf("Unset = %v, %v", ok, err)
	}
	if s.Has("name") || s.Has("role") {
		t.Error("values still stored after Unset")
	}
	if s.Get("role") != "user" {
		t.Errorf("role = %v, want default user", s.Get("role"))
	}

	// Required properties fall back to their type default.
	mustSet(t, s, "title", "Dr")
	if ok, err := s.Unset([]string{"title"}); !ok || err != nil {
		t.Fatalf("Unset(title) = %v, %v", ok, err)
	}
	if s.Get("title") != "" {
		t.Errorf("title = %v, want empty default", s.Get("title"))
	}
}

func TestSet_NestedFromAggregateListener(t *testing.T) {
	typ := &state.Type{Props: map[string]state.Descriptor{
		"a": state.Prop("string"),
		"b": state.Prop("string"),
	}}
	s := mustNew(t, typ, nil)

	type round struct{ a, b any }
	var rounds []round
	s.OnAnyChange(func(s *state.State, _ state.Options) {
		rounds = append(rounds, round{s.Get("a"), s.Get("b")})
		if len(rounds) == 1 {
			if _, err := s.Set("b", "second"); err != nil {
				t.Errorf("nested Set error: %v", err)
			}
		}
	})

	var keyEvents []string
	s.On("change:*", func(e events.Event) error {
		keyEvents = append(keyEvents, e.Name)
		return nil
	})

	mustSet(t, s, "a", "first")

	if len(rounds) != 2 {
		t.Fatalf("change fired %d times, want 2", len(rounds))
	}
	if rounds[0] != (round{"first", nil}) {
		t.Errorf("round 1 saw %+v", rounds[0])
	}
	if rounds[1] != (round{"first", "second"}) {
		t.Errorf("round 2 saw %+v", rounds[1])
	}
	if strings.Join(keyEvents, ",") != "change:a,change:b" {
		t.Errorf("per-key events = %v", keyEvents)
	}

	changed := s.ChangedAttributes()
	if changed["a"] != "first" || changed["b"] != "second" {
		t.Errorf("ChangedAttributes() = %v, want a and b", changed)
	}
}

func TestSet_NestedFromKeyListener(t *testing.T) {
	typ := &state.Type{Props: map[string]state.Descriptor{
		"a": state.Prop("string"),
		"b": state.Prop("string"),
	}}
	s := mustNew(t, typ, nil)

	s.OnChange("a", func(s *state.State, v any, _ state.Options) {
		if _, err := s.Set("b", v); err != nil {
			t.Errorf("nested Set error: %v", err)
		}
	})

	aggregate := 0
	s.OnAnyChange(func(s *state.State, _ state.Options) {
		aggregate++
		if s.Get("b") != "x" {
			t.Errorf("aggregate change saw b = %v before nested set settled", s.Get("b"))
		}
	})

	mustSet(t, s, "a", "x")

	if aggregate != 1 {
		t.Errorf("change fired %d times, want 1", aggregate)
	}
}

func TestSet_PreValidation(t *testing.T) {
	obs := &recorder{}
	typ := &state.Type{
		Observer: obs,
		Props:    map[string]state.Descriptor{"n": state.Prop("string")},
		Validate: func(_ *state.State, attrs map[string]any, _ state.Options) bool {
			return attrs["n"] != "forbidden"
		},
	}
	s := mustNew(t, typ, nil)
	log := eventLog(s)

	ok, err := s.Set("n", "forbidden")
	if ok || err != nil {
		t.Fatalf("Set = %v, %v; want false, nil", ok, err)
	}
	if s.Has("n") || len(*log) != 0 {
		t.Error("refused set changed state or notified")
	}
	if obs.rejected != 1 {
		t.Errorf("rejected = %d, want 1", obs.rejected)
	}

	mustSet(t, s, "n", "fine")
}

func TestSet_ExtraProperties(t *testing.T) {
	props := map[string]state.Descriptor{"name": state.Prop("string")}

	t.Run("reject", func(t *testing.T) {
		s := mustNew(t, &state.Type{Name: "person", Props: props, ExtraProperties: state.ExtraReject}, nil)

		_, err := s.SetMany(map[string]any{"undeclaredKey": 1})
		if !errors.Is(err, state.ErrSchemaRejection) {
			t.Fatalf("err = %v, want ErrSchemaRejection", err)
		}
		if !strings.Contains(err.Error(), "undeclaredKey") || !strings.Contains(err.Error(), "person") {
			t.Errorf("message %q should name the key and type", err.Error())
		}

		anon := mustNew(t, &state.Type{Props: props, ExtraProperties: state.ExtraReject}, nil)
		_, err = anon.Set("undeclaredKey", 1)
		if err == nil || !strings.Contains(err.Error(), "this") {
			t.Errorf("untyped rejection message = %v", err)
		}
	})

	t.Run("ignore", func(t *testing.T) {
		s := mustNew(t, &state.Type{Props: props, ExtraProperties: state.ExtraIgnore}, nil)

		ok, err := s.SetMany(map[string]any{"undeclaredKey": 1})
		if !ok || err != nil {
			t.Fatalf("SetMany = %v, %v", ok, err)
		}
		if s.HasChanged("undeclaredKey") || s.Get("undeclaredKey") != nil {
			t.Error("ignored key was recorded")
		}
	})

	t.Run("default ignores", func(t *testing.T) {
		s := mustNew(t, &state.Type{Props: props}, nil)
		if ok, err := s.Set("undeclaredKey", 1); !ok || err != nil {
			t.Fatalf("Set = %v, %v", ok, err)
		}
		if s.Schema().Policy() != state.ExtraIgnore {
			t.Errorf("Policy() = %q, want ignore", s.Schema().Policy())
		}
	})

	t.Run("allow", func(t *testing.T) {
		s := mustNew(t, &state.Type{Props: props, ExtraProperties: state.ExtraAllow}, nil)

		mustSet(t, s, "undeclaredKey", 1)
		if s.Get("undeclaredKey") != 1 {
			t.Errorf("Get(undeclaredKey) = %v, want 1", s.Get("undeclaredKey"))
		}
		mustSet(t, s, "undeclaredKey", "now a string")
		if !s.HasChanged("undeclaredKey") {
			t.Error("allowed key not tracked")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		s := mustNew(t, &state.Type{Props: props, ExtraProperties: "sometimes"}, nil)

		_, err := s.Set("undeclaredKey", 1)
		if !errors.Is(err, state.ErrConfiguration) {
			t.Fatalf("err = %v, want ErrConfiguration", err)
		}
		if !strings.Contains(err.Error(), "sometimes") {
			t.Errorf("message %q should name the policy", err.Error())
		}
	})
}

func TestPreviousAttributes(t *testing.T) {
	s := mustNew(t, personType(), map[string]any{"name": "Ada"})

	mustSet(t, s, "name", "Grace")

	if s.Previous("name") != "Ada" {
		t.Errorf("Previous(name) = %v, want Ada", s.Previous("name"))
	}
	prev := s.PreviousAttributes()
	if prev["name"] != "Ada" {
		t.Errorf("PreviousAttributes() = %v", prev)
	}
	if attrs := s.Attributes(); attrs["name"] != "Grace" {
		t.Errorf("Attributes() = %v", attrs)
	}
	if !s.HasChanged("") {
		t.Error("HasChanged(\"\") = false after a change")
	}
}

func TestObserver(t *testing.T) {
	obs := &recorder{}
	typ := &state.Type{
		Name:     "obs",
		Observer: obs,
		Props:    map[string]state.Descriptor{"n": state.Prop("string")},
	}
	s := mustNew(t, typ, nil)
	s.OnAnyChange(func(*state.State, state.Options) {})

	mustSet(t, s, "n", "a")
	_, _ = s.Set("n", 1)

	if obs.applied != 1 || obs.lastChanged != 1 {
		t.Errorf("applied = %d (last %d), want 1 (1)", obs.applied, obs.lastChanged)
	}
	if strings.Join(obs.failures, ",") != "n:type" {
		t.Errorf("failures = %v", obs.failures)
	}
	if strings.Join(obs.notified, ",") != "change:n,change" {
		t.Errorf("notified = %v", obs.notified)
	}
}
