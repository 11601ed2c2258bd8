package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const personManifest = `
types:
  base:
    props:
      id: { type: string, required: true, set_once: true }

  person:
    extends: base
    extra_properties: reject
    props:
      name: string
      born: { type: date }
      role: { type: string, values: [admin, user], default: user }
      tags: { type: array, required: true }
      age:
        type: any
        constraints:
          - { type: min, value: 0 }
          - { type: max, value: 150, message: "too old" }
      email:
        type: string
        constraints:
          - { type: pattern, value: "^[^@]+@[^@]+$" }
    session:
      active: any
    children:
      address: address

  address:
    props:
      city: { type: string, constraints: [{ type: not_empty }] }
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(personManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(m.Types) != 3 {
		t.Fatalf("expected 3 types, got %d", len(m.Types))
	}

	person := m.Types["person"]
	if person.Extends != "base" {
		t.Errorf("Extends = %q, want base", person.Extends)
	}
	if person.ExtraProperties != "reject" {
		t.Errorf("ExtraProperties = %q, want reject", person.ExtraProperties)
	}
	if got := person.Props["name"].Type; got != "string" {
		t.Errorf("shorthand name type = %q, want string", got)
	}
	if got := person.Session["active"].Type; got != "any" {
		t.Errorf("session active type = %q, want any", got)
	}

	role := person.Props["role"]
	if role.Default != "user" {
		t.Errorf("role default = %v, want user", role.Default)
	}
	if len(role.Values) != 2 {
		t.Errorf("role values = %v", role.Values)
	}

	if len(person.Props["age"].Constraints) != 2 {
		t.Errorf("age constraints = %v", person.Props["age"].Constraints)
	}
	if person.Children["address"] != "address" {
		t.Errorf("children = %v", person.Children)
	}

	id := m.Types["base"].Props["id"]
	if !id.Required || !id.SetOnce {
		t.Errorf("id = %+v, want required set_once", id)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("types: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse yaml") {
		t.Errorf("error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty manifest",
			yaml:    `types: {}`,
			wantErr: "at least one type",
		},
		{
			name: "invalid type name",
			yaml: `
types:
  "bad-name":
    props: { a: string }
`,
			wantErr: `type name "bad-name"`,
		},
		{
			name: "unknown parent",
			yaml: `
types:
  child:
    extends: ghost
`,
			wantErr: `extends unknown type "ghost"`,
		},
		{
			name: "invalid policy",
			yaml: `
types:
  a:
    extra_properties: sometimes
`,
			wantErr: `invalid extra_properties "sometimes"`,
		},
		{
			name: "invalid property name",
			yaml: `
types:
  a:
    props: { "1st": string }
`,
			wantErr: `property name "1st"`,
		},
		{
			name: "prop and session collide",
			yaml: `
types:
  a:
    props: { x: string }
    session: { x: string }
`,
			wantErr: `declared in both props and session`,
		},
		{
			name: "unknown child type",
			yaml: `
types:
  a:
    children: { b: nowhere }
`,
			wantErr: `unknown type "nowhere"`,
		},
		{
			name: "child collides with property",
			yaml: `
types:
  a:
    props: { b: string }
    children: { b: a }
`,
			wantErr: `child "b" collides`,
		},
		{
			name: "composite default",
			yaml: `
types:
  a:
    props:
      list: { type: array, default: [1, 2] }
`,
			wantErr: "default cannot be an object/array",
		},
		{
			name: "empty values",
			yaml: `
types:
  a:
    props:
      x: { type: string, values: [] }
`,
			wantErr: "values must not be empty",
		},
		{
			name: "default outside values",
			yaml: `
types:
  a:
    props:
      x: { type: string, values: [a, b], default: c }
`,
			wantErr: "not one of the allowed values",
		},
		{
			name: "unknown constraint",
			yaml: `
types:
  a:
    props:
      x: { type: string, constraints: [{ type: shiny }] }
`,
			wantErr: `unknown constraint type "shiny"`,
		},
		{
			name: "bad pattern",
			yaml: `
types:
  a:
    props:
      x: { type: string, constraints: [{ type: pattern, value: "(" }] }
`,
			wantErr: "invalid pattern",
		},
		{
			name: "inheritance cycle",
			yaml: `
types:
  a: { extends: b }
  b: { extends: a }
`,
			wantErr: "inheritance cycle: a -> b -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CycleReportedOnce(t *testing.T) {
	_, err := Parse([]byte(`
types:
  a: { extends: b }
  b: { extends: c }
  c: { extends: a }
  d: { extends: a }
`))
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if n := strings.Count(err.Error(), "inheritance cycle"); n != 1 {
		t.Errorf("cycle reported %d times: %v", n, err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "person.yaml")
	if err := os.WriteFile(path, []byte(personManifest), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if _, ok := m.Types["person"]; !ok {
		t.Error("person type missing")
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		filepath.Join(dir, "base.yaml"):   "types:\n  base:\n    props:\n      id: string\n",
		filepath.Join(sub, "user.yml"):    "types:\n  user:\n    extends: base\n",
		filepath.Join(dir, "README.md"):   "not yaml",
		filepath.Join(sub, "ignored.txt"): "types: [",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	m, err := ParseDir(dir)
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}
	if len(m.Types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(m.Types))
	}
	if m.Types["user"].Extends != "base" {
		t.Error("cross-file extends lost")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load dir failed: %v", err)
	}
	if len(loaded.Types) != 2 {
		t.Errorf("Load returned %d types", len(loaded.Types))
	}
}

func TestParseDir_Duplicate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("types:\n  thing: {}\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := ParseDir(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate type declarations: thing") {
		t.Errorf("error = %v", err)
	}
}

func TestLint(t *testing.T) {
	m, err := Parse([]byte(`
types:
  a:
    props:
      x: money
      y: string
    session:
      z: currency
`))
	if err != nil {
		t.Fatal(err)
	}

	warnings := Lint(m, []string{"string", "date", "array", "object", "money"})
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[0], `"currency"`) {
		t.Errorf("warning = %q", warnings[0])
	}
}
