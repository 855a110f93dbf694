// Package schema describes the shape of structured LLM replies and
// validates candidate values against it.
//
// A Shape wraps a JSON Schema object. The same document is handed to the
// provider as a tool's parameter description and used locally to validate
// whatever the provider sends back.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape is a named JSON Schema object.
type Shape struct {
	Name        string
	Description string

	doc     map[string]any
	origins map[string]string
	parts   []string

	once       sync.Once
	compiled   *jsonschema.Schema
	compileErr error
}

// New wraps a JSON Schema document. The document is copied.
func New(name, description string, doc map[string]any) *Shape {
	return &Shape{
		Name:        name,
		Description: description,
		doc:         deepCopy(doc).(map[string]any),
	}
}

// Parameters returns a copy of the schema document, suitable for a tool
// definition's parameters field.
func (s *Shape) Parameters() map[string]any {
	return deepCopy(s.doc).(map[string]any)
}

// JSON renders the schema document.
func (s *Shape) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(s.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", s.Name, err)
	}
	return b, nil
}

// Properties lists top-level property names in sorted order.
func (s *Shape) Properties() []string {
	props, _ := s.doc["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Required lists the top-level required property names.
func (s *Shape) Required() []string {
	return stringList(s.doc["required"])
}

// Origin reports which composed part contributed a top-level field.
// It is empty for shapes not built with Compose.
func (s *Shape) Origin(field string) string {
	return s.origins[field]
}

// Parts lists the names of composed parts in composition order.
func (s *Shape) Parts() []string {
	return append([]string(nil), s.parts...)
}

// Compile checks that the document is a valid JSON Schema. Validation
// compiles lazily, so calling this is only needed to surface errors early.
func (s *Shape) Compile() error {
	_, err := s.schema()
	return err
}

func (s *Shape) schema() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		raw, err := s.JSON()
		if err != nil {
			s.compileErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
			s.compileErr = fmt.Errorf("failed to load schema %s: %w", s.Name, err)
			return
		}
		compiled, err := compiler.Compile("schema.json")
		if err != nil {
			s.compileErr = fmt.Errorf("failed to compile schema %s: %w", s.Name, err)
			return
		}
		s.compiled = compiled
	})
	return s.compiled, s.compileErr
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
