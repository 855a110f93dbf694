// Package prompts turns typed agent parameters into prompt text.
//
// Agents own a Builder for their parameter type. Builders are pure: the same
// params always render the same prompt. Default prompt text lives in
// embedded .tmpl files next to the agent that uses it, and Enhanced wraps any
// builder with the iteration history used by progressive refinement.
package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
)

// Builder renders the user prompt for params.
type Builder[P any] interface {
	Build(params P) (string, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc[P any] func(params P) (string, error)

// Build calls f(params).
func (f BuilderFunc[P]) Build(params P) (string, error) {
	return f(params)
}

// TemplateBuilder renders a text/template with the params as data.
type TemplateBuilder[P any] struct {
	name string
	text string
	tmpl *template.Template
}

// NewTemplateBuilder parses text as a template named name.
func NewTemplateBuilder[P any](name, text string) (*TemplateBuilder[P], error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return &TemplateBuilder[P]{name: name, text: text, tmpl: tmpl}, nil
}

// MustTemplate is NewTemplateBuilder for embedded templates known at init time.
func MustTemplate[P any](name, text string) *TemplateBuilder[P] {
	b, err := NewTemplateBuilder[P](name, text)
	if err != nil {
		panic(err)
	}
	return b
}

// Build executes the template.
func (b *TemplateBuilder[P]) Build(params P) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", b.name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Name returns the template name.
func (b *TemplateBuilder[P]) Name() string { return b.name }

// Text returns the raw template source.
func (b *TemplateBuilder[P]) Text() string { return b.text }

// Variables lists the fields the template references.
func (b *TemplateBuilder[P]) Variables() []string { return ExtractVariables(b.text) }

// Hash identifies the template revision.
func (b *TemplateBuilder[P]) Hash() string { return HashText(b.text) }

// variablePattern matches {{.Field}} and {{ .Nested.Field }}.
var variablePattern = regexp.MustCompile(`\{\{-?\s*\.([a-zA-Z_][a-zA-Z0-9_.]*)\s*-?\}\}`)

// ExtractVariables returns the sorted, de-duplicated field references in a
// template. "Hello {{.Name}}, {{.Count}} items" yields ["Count", "Name"].
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		if name := match[1]; !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	sort.Strings(vars)
	return vars
}

// HashText returns the hex SHA256 of text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
