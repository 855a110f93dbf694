package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"
)

// DefaultGuidance is used when an enhancement carries no guidance of its own.
const DefaultGuidance = "Improve the analysis by adding more depth, detail, and actionable recommendations."

//go:embed templates/enhance.tmpl
var enhanceText string

type enhanceData struct {
	Iteration int
	Original  string
	Previous  string
	Guidance  string
}

var enhanceTemplate = MustTemplate[enhanceData]("enhance", enhanceText)

// Enhancement is the feedback carried into a refinement round.
type Enhancement struct {
	Guidance       string          `json:"guidance,omitempty"`
	PreviousResult json.RawMessage `json:"previous_result,omitempty"`
	// Iteration is the 1-based number of the run being produced.
	Iteration int `json:"iteration,omitempty"`
}

// IsZero reports whether there is no previous result to build on.
func (e Enhancement) IsZero() bool {
	return len(bytes.TrimSpace(e.PreviousResult)) == 0
}

// Enhancer is implemented by params that can carry an Enhancement.
type Enhancer interface {
	PromptEnhancement() Enhancement
}

// Enhanced wraps a builder so that params carrying an Enhancement render the
// iteration prompt around the base prompt.
type Enhanced[P any] struct {
	base   Builder[P]
	budget *TokenBudget
}

// EnhancedOption configures an Enhanced builder.
type EnhancedOption func(*enhancedOptions)

type enhancedOptions struct {
	budget *TokenBudget
}

// WithTokenBudget trims the embedded previous result so the whole prompt
// stays within the budget.
func WithTokenBudget(b *TokenBudget) EnhancedOption {
	return func(o *enhancedOptions) { o.budget = b }
}

// Enhance wraps base.
func Enhance[P any](base Builder[P], opts ...EnhancedOption) *Enhanced[P] {
	o := enhancedOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Enhanced[P]{base: base, budget: o.budget}
}

// Build renders the base prompt, then wraps it when params carry a
// previous result.
func (b *Enhanced[P]) Build(params P) (string, error) {
	original, err := b.base.Build(params)
	if err != nil {
		return "", err
	}
	e, ok := any(params).(Enhancer)
	if !ok {
		return original, nil
	}
	return EnhancePrompt(original, e.PromptEnhancement(), b.budget)
}

// EnhancePrompt wraps original with the previous result and guidance. A zero
// enhancement returns original unchanged. budget may be nil.
func EnhancePrompt(original string, e Enhancement, budget *TokenBudget) (string, error) {
	if e.IsZero() {
		return original, nil
	}

	data := enhanceData{
		Iteration: e.Iteration,
		Original:  original,
		Previous:  formatResult(e.PreviousResult),
		Guidance:  strings.TrimSpace(e.Guidance),
	}
	if data.Iteration <= 0 {
		// An enhancement always follows at least one result.
		data.Iteration = 2
	}
	if data.Guidance == "" {
		data.Guidance = DefaultGuidance
	}

	out, err := enhanceTemplate.Build(data)
	if err != nil {
		return "", err
	}
	if budget == nil {
		return out, nil
	}

	over := budget.Count(out) - budget.MaxTokens
	if over <= 0 {
		return out, nil
	}
	data.Previous = budget.Truncate(data.Previous, budget.Count(data.Previous)-over)
	return enhanceTemplate.Build(data)
}

// formatResult pretty-prints JSON with two-space indentation, falling back
// to the raw text.
func formatResult(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
