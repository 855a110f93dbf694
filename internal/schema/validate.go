package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidJSON marks payloads that are not syntactically valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// FieldError is one validation diagnostic.
type FieldError struct {
	// Path is a JSON pointer to the offending value ("/mood", "/weaknesses/0/aspect").
	Path    string `json:"path"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
	// Origin names the composed part that owns the field, if any.
	Origin string `json:"origin,omitempty"`
}

func (f FieldError) String() string {
	path := f.Path
	if path == "" {
		path = "/"
	}
	if f.Origin != "" {
		return fmt.Sprintf("%s (%s): %s", path, f.Origin, f.Message)
	}
	return fmt.Sprintf("%s: %s", path, f.Message)
}

// ValidationError is returned when a well-formed value does not match a shape.
type ValidationError struct {
	Shape  string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: schema validation failed: %s", e.Shape, strings.Join(parts, "; "))
}

// Paths lists the JSON pointers of every diagnostic.
func (e *ValidationError) Paths() []string {
	paths := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		paths[i] = f.Path
	}
	return paths
}

// Parse decodes raw JSON into generic values suitable for Validate.
func Parse(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after top-level value", ErrInvalidJSON)
	}
	return v, nil
}

// Validate checks v against the shape. v may be a value produced by Parse
// or any Go value that marshals to JSON.
func (s *Shape) Validate(v any) error {
	compiled, err := s.schema()
	if err != nil {
		return err
	}
	doc, err := normalize(v)
	if err != nil {
		return err
	}
	err = compiled.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate against %s: %w", s.Name, err)
	}
	return &ValidationError{Shape: s.Name, Fields: s.fieldErrors(ve)}
}

// ValidateJSON parses and validates raw JSON, returning the parsed value.
func (s *Shape) ValidateJSON(raw []byte) (any, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses raw, validates it against s and unmarshals it into T.
// Parse failures wrap ErrInvalidJSON; shape mismatches are *ValidationError.
func Decode[T any](s *Shape, raw []byte) (T, error) {
	var out T
	if _, err := s.ValidateJSON(raw); err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", s.Name, err)
	}
	return out, nil
}

func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number, map[string]any, []any:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return Parse(raw)
}

var quotedName = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)

func (s *Shape) fieldErrors(root *jsonschema.ValidationError) []FieldError {
	var leaves []*jsonschema.ValidationError
	collectLeaves(root, &leaves)

	var out []FieldError
	for _, leaf := range leaves {
		keyword := lastSegment(leaf.KeywordLocation)
		if keyword == "required" {
			for _, m := range quotedName.FindAllStringSubmatch(leaf.Message, -1) {
				path := leaf.InstanceLocation + "/" + escapePointer(strings.ReplaceAll(m[1], `\'`, `'`))
				out = append(out, FieldError{
					Path:    path,
					Keyword: keyword,
					Message: "missing required field",
					Origin:  s.originOf(path),
				})
			}
			continue
		}
		out = append(out, FieldError{
			Path:    leaf.InstanceLocation,
			Keyword: keyword,
			Message: leaf.Message,
			Origin:  s.originOf(leaf.InstanceLocation),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]*jsonschema.ValidationError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, ve)
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

func (s *Shape) originOf(path string) string {
	if len(s.origins) == 0 {
		return ""
	}
	first := strings.TrimPrefix(path, "/")
	if i := strings.Index(first, "/"); i >= 0 {
		first = first[:i]
	}
	return s.origins[unescapePointer(first)]
}

func lastSegment(ptr string) string {
	if i := strings.LastIndex(ptr, "/"); i >= 0 {
		return ptr[i+1:]
	}
	return ptr
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}
