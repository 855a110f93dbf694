package schema

import (
	"errors"
	"fmt"
)

// ErrDuplicateField is returned by Compose when two parts define the same
// top-level property.
var ErrDuplicateField = errors.New("duplicate field")

// Part is a named sub-shape contributing top-level fields to a composed shape.
type Part struct {
	Name  string
	Shape *Shape
}

// Compose merges the top-level properties of each part into one flat
// object shape. Every field remembers the part it came from, so validation
// diagnostics on the composed shape point back at the owning part.
func Compose(name, description string, parts ...Part) (*Shape, error) {
	properties := make(map[string]any)
	origins := make(map[string]string)
	var required []any
	names := make([]string, 0, len(parts))

	for _, part := range parts {
		if part.Shape == nil {
			return nil, fmt.Errorf("compose %s: part %q has no shape", name, part.Name)
		}
		props, ok := part.Shape.doc["properties"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("compose %s: part %q is not an object shape", name, part.Name)
		}
		for _, field := range part.Shape.Properties() {
			if owner, dup := origins[field]; dup {
				return nil, fmt.Errorf("compose %s: %w %q in parts %q and %q",
					name, ErrDuplicateField, field, owner, part.Name)
			}
			origins[field] = part.Name
			properties[field] = deepCopy(props[field])
		}
		for _, field := range part.Shape.Required() {
			required = append(required, field)
		}
		names = append(names, part.Name)
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	s := New(name, description, doc)
	s.origins = origins
	s.parts = names
	return s, nil
}

// MustCompose is like Compose but panics on error. It is meant for
// package-level shape definitions.
func MustCompose(name, description string, parts ...Part) *Shape {
	s, err := Compose(name, description, parts...)
	if err != nil {
		panic(err)
	}
	return s
}
