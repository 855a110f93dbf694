package agents

import (
	"log/slog"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/general_analysis"
	"github.com/tradepsych/insight/internal/agents/journal"
	"github.com/tradepsych/insight/internal/agents/journal_reflection"
	"github.com/tradepsych/insight/internal/agents/sentiment"
	"github.com/tradepsych/insight/internal/prompts"
	"github.com/tradepsych/insight/internal/retry"
)

// Options carries the runtime LLM settings into agent construction.
type Options struct {
	// Policy for retryable API errors. The zero value means retry.DefaultPolicy().
	Policy retry.Policy
	// SystemMessage replaces every agent's own system message when set.
	SystemMessage string
	Model         string
	Temperature   *float64
	Mode          agent.Mode
	// Budget caps enhanced prompts during refinement. Optional.
	Budget *prompts.TokenBudget
	Logger *slog.Logger
	// Timer replaces the retry wait clock. Used by tests.
	Timer retry.Timer
}

func (o Options) systemMessage(own string) string {
	if o.SystemMessage != "" {
		return o.SystemMessage
	}
	return own
}

func (o Options) builder(base prompts.Builder[journal.Entry]) prompts.Builder[journal.Entry] {
	var eopts []prompts.EnhancedOption
	if o.Budget != nil {
		eopts = append(eopts, prompts.WithTokenBudget(o.Budget))
	}
	return prompts.Enhance(base, eopts...)
}

func (o Options) structuredOptions() []agent.StructuredOption {
	var sopts []agent.StructuredOption
	if o.Logger != nil {
		sopts = append(sopts, agent.WithAgentLogger(o.Logger))
	}
	if o.Timer != nil {
		sopts = append(sopts, agent.WithRetryTimer(o.Timer))
	}
	return sopts
}

func newJournalAgent[T any](inv *agent.Invoker, name Name, base prompts.Builder[journal.Entry], tool agent.ToolDescriptor, system string, opts Options) *agent.Structured[journal.Entry, T] {
	return agent.NewStructured[journal.Entry, T](inv, agent.Config[journal.Entry]{
		Name:          name.String(),
		Builder:       opts.builder(base),
		Tool:          tool,
		SystemMessage: opts.systemMessage(system),
		Policy:        opts.Policy,
		Model:         opts.Model,
		Temperature:   opts.Temperature,
		Mode:          opts.Mode,
	}, opts.structuredOptions()...)
}

// NewJournalReflectionAgent creates the journal reflection agent.
func NewJournalReflectionAgent(inv *agent.Invoker, opts Options) *agent.Structured[journal.Entry, journal_reflection.Result] {
	return newJournalAgent[journal_reflection.Result](inv, JournalReflection,
		journal_reflection.UserPrompt(), journal_reflection.Tool(), journal_reflection.SystemPrompt(), opts)
}

// NewSentimentAgent creates the core trading sentiment agent.
func NewSentimentAgent(inv *agent.Invoker, opts Options) *agent.Structured[journal.Entry, sentiment.Result] {
	return newJournalAgent[sentiment.Result](inv, Sentiment,
		sentiment.UserPrompt(), sentiment.Tool(), sentiment.SystemPrompt(), opts)
}

// NewGeneralAnalysisAgent creates the comprehensive trading analysis agent.
func NewGeneralAnalysisAgent(inv *agent.Invoker, opts Options) *agent.Structured[journal.Entry, general_analysis.Result] {
	return newJournalAgent[general_analysis.Result](inv, GeneralAnalysis,
		general_analysis.UserPrompt(), general_analysis.Tool(), general_analysis.SystemPrompt(), opts)
}
