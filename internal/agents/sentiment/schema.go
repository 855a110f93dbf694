package sentiment

import "github.com/tradepsych/insight/internal/schema"

// Sentiments is the five-point scale used for sentiment and impact.
var Sentiments = []string{"very negative", "negative", "neutral", "positive", "very positive"}

// Result is the core sentiment analysis of an entry.
type Result struct {
	Text             string           `json:"text"`
	OverallSentiment string           `json:"overallSentiment"`
	SentimentScore   float64          `json:"sentimentScore"`
	TradingEmotions  []TradingEmotion `json:"tradingEmotions"`
	MentalState      MentalState      `json:"mentalState"`
}

// TradingEmotion is one detected emotion.
type TradingEmotion struct {
	Emotion       string  `json:"emotion"`
	Intensity     float64 `json:"intensity"`
	Evidence      string  `json:"evidence"`
	TradingImpact string  `json:"tradingImpact"`
}

// MentalState scores the trader's state of mind, each 0-1.
type MentalState struct {
	Focus             float64 `json:"focus"`
	Stress            float64 `json:"stress"`
	Fatigue           float64 `json:"fatigue"`
	Overconfidence    float64 `json:"overconfidence"`
	MentalStateImpact string  `json:"mentalStateImpact"`
}

func number(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

var shape = schema.New("core_sentiment", "Core trading sentiment analysis", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": str("The analyzed trading journal entry"),
		"overallSentiment": map[string]any{
			"type":        "string",
			"enum":        Sentiments,
			"description": "Overall emotional state of the trader",
		},
		"sentimentScore": number("Numerical sentiment score from -1 (negative) to 1 (positive)"),
		"tradingEmotions": map[string]any{
			"type":        "array",
			"description": "Trading-specific emotions detected with intensity and potential impact",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"emotion":   str("Detected trading-related emotion (e.g., FOMO, greed, fear, confidence, regret)"),
					"intensity": number("Intensity of this emotion (0-1)"),
					"evidence":  str("Text evidence supporting this emotion detection"),
					"tradingImpact": map[string]any{
						"type":        "string",
						"enum":        Sentiments,
						"description": "How this emotion likely impacts trading decisions",
					},
				},
				"required": []string{"emotion", "intensity", "evidence", "tradingImpact"},
			},
		},
		"mentalState": map[string]any{
			"type":        "object",
			"description": "Analysis of trader's mental and psychological state",
			"properties": map[string]any{
				"focus":             number("Level of mental focus demonstrated (0-1)"),
				"stress":            number("Detected stress level (0-1)"),
				"fatigue":           number("Signs of mental fatigue (0-1)"),
				"overconfidence":    number("Signs of overconfidence (0-1)"),
				"mentalStateImpact": str("How current mental state may impact trading performance"),
			},
			"required": []string{"focus", "stress", "fatigue", "overconfidence", "mentalStateImpact"},
		},
	},
	"required": []string{"text", "overallSentiment", "sentimentScore", "tradingEmotions", "mentalState"},
})

// Shape returns the core sentiment shape. The general analysis agent
// composes it with its other parts.
func Shape() *schema.Shape { return shape }
