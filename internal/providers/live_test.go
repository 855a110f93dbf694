package providers

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"
)

// TestLiveProviders_ToolCall exercises every provider with a real API key in
// the environment. It is opt-in: set INSIGHT_LIVE_TESTS=1.
func TestLiveProviders_ToolCall(t *testing.T) {
	if os.Getenv("INSIGHT_LIVE_TESTS") == "" {
		t.Skip("set INSIGHT_LIVE_TESTS=1 to call real providers")
	}
	cfg := LoadTestConfig()
	if !cfg.HasAnyLLM() {
		t.Skip("no provider API keys configured")
	}

	registry := NewRegistryFromConfig(cfg.ToRegistryConfig())
	params := json.RawMessage(`{
		"type": "object",
		"properties": {"mood": {"type": "string", "enum": ["happy", "sad", "neutral"]}},
		"required": ["mood"]
	}`)
	tool := NewFunctionTool("reflect_journal", "Record the mood of a journal entry", params)

	for name, client := range registry.LLMClients() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			req := &ChatRequest{
				Messages: []Message{
					{Role: RoleSystem, Content: "Call reflect_journal exactly once."},
					{Role: RoleUser, Content: "Closed two winning trades today and stuck to my plan."},
				},
				Temperature: Float(0),
				ToolChoice:  ToolChoiceRequired,
			}
			result, err := client.ChatWithTools(ctx, req, []Tool{tool})
			if err != nil {
				t.Fatalf("ChatWithTools() error = %v", err)
			}
			call, ok := result.FindToolCall("reflect_journal")
			if !ok {
				t.Fatalf("no reflect_journal call in %+v", result)
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				t.Fatalf("arguments not JSON: %v", err)
			}
			if _, ok := args["mood"]; !ok {
				t.Errorf("arguments missing mood: %s", call.Function.Arguments)
			}
			t.Logf("%s: %d prompt / %d completion tokens", result.ModelUsed, result.PromptTokens, result.CompletionTokens)
		})
	}
}
