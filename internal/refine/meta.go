package refine

import (
	_ "embed"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/prompts"
	"github.com/tradepsych/insight/internal/schema"
)

// CriticName labels critique invocations in logs, metrics and call records.
const CriticName = "meta_analysis"

const criticSystemMessage = `You are an expert reviewer of structured trading psychology analyses.
Critique the result you are given, identify what to keep and what to improve, and score its overall quality.
Respond by calling the provided function.`

// Strength is an aspect of a result worth preserving.
type Strength struct {
	Aspect      string `json:"aspect"`
	Description string `json:"description"`
}

// Weakness is an aspect of a result to improve.
type Weakness struct {
	Aspect                string `json:"aspect"`
	Description           string `json:"description"`
	ImprovementSuggestion string `json:"improvementSuggestion"`
}

// MetaAnalysis is the critique of one iteration's result.
type MetaAnalysis struct {
	Strengths           []Strength `json:"strengths"`
	Weaknesses          []Weakness `json:"weaknesses"`
	ImprovementGuidance string     `json:"improvementGuidance"`
	FocusAreas          []string   `json:"focusAreas"`
	QualityScore        float64    `json:"qualityScore"`
}

var metaShape = schema.New(CriticName, "Critique of a structured analysis result", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"strengths": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"aspect":      map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"aspect", "description"},
			},
		},
		"weaknesses": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"aspect":                map[string]any{"type": "string"},
					"description":           map[string]any{"type": "string"},
					"improvementSuggestion": map[string]any{"type": "string"},
				},
				"required": []string{"aspect", "description", "improvementSuggestion"},
			},
		},
		"improvementGuidance": map[string]any{
			"type":        "string",
			"description": "Comprehensive guidance on how to improve the analysis in the next iteration",
		},
		"focusAreas": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Specific areas to focus on in the next iteration",
		},
		"qualityScore": map[string]any{
			"type":        "number",
			"minimum":     1,
			"maximum":     10,
			"description": "Overall quality score of the current analysis (1-10)",
		},
	},
	"required": []string{"strengths", "weaknesses", "improvementGuidance", "focusAreas", "qualityScore"},
})

// MetaShape returns the critique output shape.
func MetaShape() *schema.Shape { return metaShape }

// MetaTool returns the tool offered to the model for critiques.
func MetaTool() agent.ToolDescriptor {
	return agent.ToolDescriptor{
		Name:        "analyze_iteration",
		Description: "Critique an analysis result and give guidance for the next iteration",
		Shape:       metaShape,
	}
}

//go:embed templates/critique.tmpl
var critiqueText string

// critiqueParams feeds the critique template.
type critiqueParams struct {
	Agent     string
	Iteration int // 1-based number of the iteration being prepared
	Latest    int // 1-based number of the result under review
	Result    string
	Guidance  []string
}

var critiqueBuilder = prompts.MustTemplate[critiqueParams]("critique", critiqueText)
