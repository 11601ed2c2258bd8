/*
Package state implements typed, observable attribute containers.

A Type declares properties (Props and Session), semantic data types
(DataTypes), nested children and collections, and the policy for
undeclared keys. Types extend each other through Parent; the first
instance of a Type merges every level base-first into a Schema that all
instances share.

	base := &state.Type{
		Name:  "base",
		Props: map[string]state.Descriptor{"id": {Type: "string", SetOnce: true}},
	}
	person := &state.Type{
		Name:            "person",
		Parent:          base,
		ExtraProperties: state.ExtraReject,
		Props: map[string]state.Descriptor{
			"name": state.Prop("string"),
			"born": {Type: "date"},
			"tags": {Type: "array", Required: true},
		},
	}

	p, err := state.New(person, map[string]any{"id": "p1"})
	p.OnChange("name", func(s *state.State, v any, _ state.Options) { ... })
	ok, err := p.Set("name", "Ada")

Set coerces each value through its data type, validates it, and only
then stores every change of the call at once. Listeners run
synchronously and may call Set again; the outermost call keeps emitting
the aggregate "change" event until listeners stop making changes.
*/
package state
