package journal_reflection

import "github.com/tradepsych/insight/internal/schema"

// Moods the model may report.
var Moods = []string{"happy", "sad", "anxious", "excited", "neutral"}

// Result is the structured reflection extracted from an entry.
type Result struct {
	Date        string   `json:"date"`
	Mood        string   `json:"mood"`
	Highlights  []string `json:"highlights"`
	Challenges  []string `json:"challenges"`
	ActionItems []string `json:"actionItems"`
}

var shape = schema.New("journal_reflection", "Structured reflection on a journal entry", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"date": map[string]any{
			"type":        "string",
			"description": "ISO date of entry",
		},
		"mood": map[string]any{
			"type":        "string",
			"enum":        Moods,
			"description": "Detected mood",
		},
		"highlights": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"minItems":    1,
			"description": "Top positive moments",
		},
		"challenges": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Difficult moments or struggles",
		},
		"actionItems": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Suggested next steps or habits",
		},
	},
	"required": []string{"date", "mood", "highlights", "challenges", "actionItems"},
})

// Shape returns the output shape.
func Shape() *schema.Shape { return shape }
