// Package llmcall provides LLM call recording and querying for traceability.
// Every structured invocation is recorded with its agent, tool, response, and metrics.
package llmcall

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradepsych/insight/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	Agent     string `json:"agent,omitempty"`
	Tool      string `json:"tool,omitempty"`
	RunID     string `json:"run_id,omitempty"` // Refinement run, empty for single executions
	Iteration int    `json:"iteration"`

	// Prompt traceability
	PromptHash string `json:"prompt_hash,omitempty"` // sha256 of the user prompt

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Attempts     int `json:"attempts"`

	// Response
	Response  string          `json:"response"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`

	// Status
	Success bool   `json:"success"`
	Status  string `json:"status"` // Result status, e.g. SUCCESS, SCHEMA_VALIDATION_FAILED
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	Agent     string
	Tool      string
	RunID     string
	Iteration int

	// Prompt is hashed, never stored.
	Prompt string

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64

	// Outcome as classified by the invoker. Overrides the transport view
	// when set: a successful HTTP call can still fail validation.
	Status string
	Error  string

	Attempts int

	// Optional logger for non-fatal serialization warnings.
	Logger *slog.Logger
}

// HashPrompt returns the hex sha256 of a prompt.
func HashPrompt(prompt string) string {
	if prompt == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// FromChatResult creates a Call from a ChatResult.
// A nil result yields a call carrying only the options (transport never answered).
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Agent:       opts.Agent,
		Tool:        opts.Tool,
		RunID:       opts.RunID,
		Iteration:   opts.Iteration,
		PromptHash:  HashPrompt(opts.Prompt),
		Temperature: opts.Temperature,
		Attempts:    opts.Attempts,
		Status:      opts.Status,
		Error:       opts.Error,
	}
	if call.Attempts == 0 {
		call.Attempts = 1
	}

	if result == nil {
		return call
	}

	call.LatencyMs = int(result.ExecutionTime.Milliseconds())
	call.Provider = result.Provider
	call.Model = result.ModelUsed
	call.InputTokens = result.PromptTokens
	call.OutputTokens = result.CompletionTokens
	call.Response = result.Content
	call.Success = result.Success

	if opts.Status != "" {
		call.Success = opts.Status == "SUCCESS"
	}
	if call.Error == "" && !result.Success {
		call.Error = result.ErrorMessage
	}

	// Serialize tool calls if present
	if len(result.ToolCalls) > 0 {
		if data, err := json.Marshal(result.ToolCalls); err != nil {
			logger := opts.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("failed to serialize tool calls for LLM call record",
				"error", err,
				"tool_call_count", len(result.ToolCalls))
		} else {
			call.ToolCalls = data
		}
	}

	return call
}
