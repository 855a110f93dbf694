package general_analysis

import (
	_ "embed"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/journal"
	"github.com/tradepsych/insight/internal/agents/sentiment"
	"github.com/tradepsych/insight/internal/prompts"
)

const (
	ToolName        = "trading_analysis_tool"
	ToolDescription = "You analyze day trading journal entries to extract detailed psychological insights, emotions, cognitive biases, market and trade sentiment, and actionable recommendations to improve trading performance."
)

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = prompts.MustTemplate[journal.Entry]("general_analysis.user", userPromptTmpl)

// SystemPrompt returns the trading psychologist system message.
func SystemPrompt() string {
	return sentiment.SystemPrompt()
}

func UserPrompt() *prompts.TemplateBuilder[journal.Entry] {
	return userTemplate
}

// Tool returns the analysis tool over the composed shape.
func Tool() agent.ToolDescriptor {
	return agent.ToolDescriptor{Name: ToolName, Description: ToolDescription, Shape: shape}
}
