package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/statekit/core/state"
	"gopkg.in/yaml.v3"
)

// ParseFile parses a manifest from a YAML file.
func ParseFile(path string) (Manifest, error) {
	m, err := decodeFile(path)
	if err != nil {
		return Manifest{}, err
	}

	if err := Validate(m); err != nil {
		return Manifest{}, fmt.Errorf("validate %s: %w", path, err)
	}

	return m, nil
}

// Parse parses a manifest from YAML bytes.
func Parse(data []byte) (Manifest, error) {
	m, err := decode(data)
	if err != nil {
		return Manifest{}, err
	}

	if err := Validate(m); err != nil {
		return Manifest{}, fmt.Errorf("validate manifest: %w", err)
	}

	return m, nil
}

// ParseDir parses every .yaml and .yml file under dir, including
// subdirectories, into one manifest. Types may extend or nest types
// declared in other files; a type declared twice is an error.
func ParseDir(dir string) (Manifest, error) {
	merged := Manifest{Types: make(map[string]TypeDef)}

	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			return nil
		}

		m, err := decodeFile(path)
		if err != nil {
			return err
		}

		if dups := merged.Merge(m); len(dups) > 0 {
			sort.Strings(dups)
			return fmt.Errorf("%s: duplicate type declarations: %s", path, strings.Join(dups, ", "))
		}
		return nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	if err := Validate(merged); err != nil {
		return Manifest{}, fmt.Errorf("validate %s: %w", dir, err)
	}

	return merged, nil
}

// Load parses path as a directory or a single file.
func Load(path string) (Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return ParseDir(path)
	}
	return ParseFile(path)
}

func decodeFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read file %s: %w", path, err)
	}

	m, err := decode(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse yaml: %w", err)
	}
	return m, nil
}

// Validate checks a manifest for structural errors. Every problem found is
// reported in one error.
func Validate(m Manifest) error {
	var errs []string

	if len(m.Types) == 0 {
		errs = append(errs, "manifest must declare at least one type")
	}

	for _, name := range sortedNames(m.Types) {
		def := m.Types[name]

		if !isValidIdentifier(name) {
			errs = append(errs, fmt.Sprintf("type name %q is not a valid identifier", name))
		}

		if def.Extends != "" {
			if _, ok := m.Types[def.Extends]; !ok {
				errs = append(errs, fmt.Sprintf("type %q extends unknown type %q", name, def.Extends))
			}
		}

		if !state.Policy(def.ExtraProperties).Valid() {
			errs = append(errs, fmt.Sprintf("type %q: invalid extra_properties %q", name, def.ExtraProperties))
		}

		seen := make(map[string]string)
		for _, group := range []struct {
			label  string
			fields map[string]Field
		}{{"props", def.Props}, {"session", def.Session}} {
			for _, prop := range sortedNames(group.fields) {
				if !isValidIdentifier(prop) {
					errs = append(errs, fmt.Sprintf("type %q: property name %q is not a valid identifier", name, prop))
				}
				if other, dup := seen[prop]; dup {
					errs = append(errs, fmt.Sprintf("type %q: property %q declared in both %s and %s", name, prop, other, group.label))
				}
				seen[prop] = group.label

				if err := validateField(prop, group.fields[prop]); err != nil {
					errs = append(errs, fmt.Sprintf("type %q: %v", name, err))
				}
			}
		}

		for _, child := range sortedNames(def.Children) {
			target := def.Children[child]
			if !isValidIdentifier(child) {
				errs = append(errs, fmt.Sprintf("type %q: child name %q is not a valid identifier", name, child))
			}
			if _, dup := seen[child]; dup {
				errs = append(errs, fmt.Sprintf("type %q: child %q collides with a property", name, child))
			}
			if _, ok := m.Types[target]; !ok {
				errs = append(errs, fmt.Sprintf("type %q: child %q has unknown type %q", name, child, target))
			}
			seen[child] = "children"
		}

		for _, coll := range sortedNames(def.Collections) {
			target := def.Collections[coll]
			if !isValidIdentifier(coll) {
				errs = append(errs, fmt.Sprintf("type %q: collection name %q is not a valid identifier", name, coll))
			}
			if other, dup := seen[coll]; dup {
				errs = append(errs, fmt.Sprintf("type %q: collection %q collides with %s", name, coll, other))
			}
			if _, ok := m.Types[target]; !ok {
				errs = append(errs, fmt.Sprintf("type %q: collection %q has unknown item type %q", name, coll, target))
			}
		}
	}

	for _, name := range sortedNames(m.Types) {
		if cycle := inheritanceCycle(m, name); cycle != "" {
			errs = append(errs, fmt.Sprintf("inheritance cycle: %s", cycle))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// inheritanceCycle returns the cycle path starting at name, or "" when
// the chain ends. Each cycle is reported once, from its smallest member.
func inheritanceCycle(m Manifest, name string) string {
	path := []string{name}
	seen := map[string]bool{name: true}

	for current := m.Types[name].Extends; current != ""; current = m.Types[current].Extends {
		if _, ok := m.Types[current]; !ok {
			return ""
		}
		if current == name {
			for _, member := range path {
				if member < name {
					return ""
				}
			}
			return strings.Join(append(path, name), " -> ")
		}
		if seen[current] {
			// name leads into a cycle it is not part of.
			return ""
		}
		seen[current] = true
		path = append(path, current)
	}
	return ""
}

// Lint reports property types that are neither built in nor listed in
// known. Such properties are accepted but left untyped.
func Lint(m Manifest, known []string) []string {
	names := map[string]bool{"any": true, "": true}
	for _, k := range known {
		names[k] = true
	}

	var warnings []string
	for _, typeName := range sortedNames(m.Types) {
		def := m.Types[typeName]
		for _, fields := range []map[string]Field{def.Props, def.Session} {
			for _, prop := range sortedNames(fields) {
				if t := fields[prop].Type; !names[t] {
					warnings = append(warnings, fmt.Sprintf("type %q: property %q has unknown data type %q and is untyped", typeName, prop, t))
				}
			}
		}
	}
	return warnings
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
