package sentiment

import (
	_ "embed"
	"strings"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/journal"
	"github.com/tradepsych/insight/internal/prompts"
)

const (
	ToolName        = "sentiment_analysis_tool"
	ToolDescription = "You analyze trading journal entries to extract detailed psychological insights, emotions, cognitive biases, and actionable recommendations to improve trading performance."
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = prompts.MustTemplate[journal.Entry]("sentiment.user", userPromptTmpl)

// SystemPrompt returns the trading psychologist system message, shared by
// the trading agents.
func SystemPrompt() string {
	return strings.TrimSpace(systemPrompt)
}

// UserPrompt returns the base prompt builder.
func UserPrompt() *prompts.TemplateBuilder[journal.Entry] {
	return userTemplate
}

// Tool returns the sentiment tool.
func Tool() agent.ToolDescriptor {
	return agent.ToolDescriptor{Name: ToolName, Description: ToolDescription, Shape: shape}
}
