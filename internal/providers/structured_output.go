package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoStructuredJSON is returned when model output holds no JSON value.
var ErrNoStructuredJSON = errors.New("no JSON value in model output")

// schemaShim rewrites an output schema for a model family that rejects part
// of JSON Schema. Results are still validated locally against the full schema,
// so a shim may only loosen.
type schemaShim struct {
	name  string
	match func(model string) bool
	apply func(node map[string]any)
}

var schemaShims = []schemaShim{
	{
		// Anthropic models behind OpenRouter reject integer bounds. Score
		// ranges like qualityScore 1..10 are enforced by local validation.
		name:  "anthropic-integer-bounds",
		match: isAnthropicModel,
		apply: func(node map[string]any) {
			if typeIncludes(node["type"], "integer") {
				for _, k := range []string{"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum"} {
					delete(node, k)
				}
			}
		},
	},
}

// adaptedResponseFormat converts a response format for OpenRouter, or returns
// nil when the model should rely on prompt instructions plus local validation.
func adaptedResponseFormat(model string, rf *ResponseFormat) (*openRouterResponseFormat, error) {
	if rf == nil {
		return nil, nil
	}
	// anthropic/* may be routed to backends that reject the beta headers
	// native structured outputs need.
	if isAnthropicModel(model) {
		return nil, nil
	}
	schema, err := sanitizeStructuredSchemaForModel(model, rf.JSONSchema)
	if err != nil {
		return nil, err
	}
	return &openRouterResponseFormat{Type: rf.Type, JSONSchema: schema}, nil
}

// sanitizeStructuredSchemaForModel applies every shim matching model. The
// input is returned untouched when none match.
func sanitizeStructuredSchemaForModel(model string, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var shims []schemaShim
	for _, s := range schemaShims {
		if s.match(model) {
			shims = append(shims, s)
		}
	}
	if len(shims) == 0 {
		return raw, nil
	}

	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to parse structured schema: %w", err)
	}
	for _, s := range shims {
		walkSchema(root, s.apply)
	}
	out, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sanitized structured schema: %w", err)
	}
	return out, nil
}

func walkSchema(node any, fn func(map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		fn(n)
		for _, v := range n {
			walkSchema(v, fn)
		}
	case []any:
		for _, v := range n {
			walkSchema(v, fn)
		}
	}
}

func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

func typeIncludes(typeVal any, want string) bool {
	switch t := typeVal.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, _ := item.(string); s == want {
				return true
			}
		}
	}
	return false
}

// ParseStructuredJSON extracts the first complete JSON object or array from
// model output and returns it compacted. Markdown fences and prose around the
// value are skipped.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	data := []byte(strings.TrimSpace(content))
	if len(data) == 0 {
		return nil, errors.New("empty structured output")
	}

	for i := 0; i < len(data); i++ {
		if data[i] != '{' && data[i] != '[' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(data[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, ErrNoStructuredJSON
}
