package journal_reflection

import (
	_ "embed"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/journal"
	"github.com/tradepsych/insight/internal/prompts"
)

const (
	ToolName        = "reflect_journal"
	ToolDescription = "You are a journaling coach. Analyze a journal entry and extract structured reflection data"
)

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = prompts.MustTemplate[journal.Entry]("journal_reflection.user", userPromptTmpl)

// SystemPrompt returns the system message. The reflection agent relies on
// the generic function-calling instruction.
func SystemPrompt() string {
	return agent.DefaultSystemMessage
}

// UserPrompt returns the base prompt builder.
func UserPrompt() *prompts.TemplateBuilder[journal.Entry] {
	return userTemplate
}

// Tool returns the reflection tool.
func Tool() agent.ToolDescriptor {
	return agent.ToolDescriptor{Name: ToolName, Description: ToolDescription, Shape: shape}
}
