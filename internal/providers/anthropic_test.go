package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClient_ChatWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if sys, _ := body["system"].([]any); len(sys) != 1 {
			t.Errorf("system = %v", body["system"])
		}
		choice, _ := body["tool_choice"].(map[string]any)
		if choice["type"] != "auto" {
			t.Errorf("tool_choice = %v", body["tool_choice"])
		}
		tools, _ := body["tools"].([]any)
		if len(tools) != 1 {
			t.Fatalf("tools = %v", body["tools"])
		}
		schema, _ := tools[0].(map[string]any)["input_schema"].(map[string]any)
		if schema["additionalProperties"] != false {
			t.Errorf("input_schema extras lost: %v", schema)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Calling the tool."},
				{"type": "tool_use", "id": "toolu_1", "name": "reflect_journal", "input": {"mood": "anxious"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	tool := NewFunctionTool("reflect_journal", "journaling coach",
		json.RawMessage(`{"type":"object","properties":{"mood":{"type":"string"}},"required":["mood"],"additionalProperties":false}`))

	result, err := client.ChatWithTools(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "respond by calling the function"},
			{Role: RoleUser, Content: "Rough day"},
		},
	}, []Tool{tool})
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	call, ok := result.FindToolCall("reflect_journal")
	if !ok {
		t.Fatalf("tool call missing: %+v", result.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not JSON: %v", err)
	}
	if args["mood"] != "anxious" {
		t.Errorf("mood = %v", args["mood"])
	}
	if result.Content != "Calling the tool." {
		t.Errorf("Content = %q", result.Content)
	}
	if result.TotalTokens != 42 {
		t.Errorf("TotalTokens = %d, want 42", result.TotalTokens)
	}
}

func TestAnthropicClient_ResponseFormatUsesForcedTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		choice, _ := body["tool_choice"].(map[string]any)
		if choice["type"] != "tool" || choice["name"] != "meta_analysis" {
			t.Errorf("tool_choice = %v", body["tool_choice"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "tool_use", "id": "toolu_2", "name": "meta_analysis", "input": {"qualityScore": 8}}],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	rf, _ := NewJSONSchemaFormat("meta_analysis", "critique", json.RawMessage(`{"type":"object","properties":{"qualityScore":{"type":"integer"}}}`))
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages:       []Message{{Role: RoleUser, Content: "critique"}},
		ResponseFormat: rf,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("format tool should not surface as a tool call: %+v", result.ToolCalls)
	}
	var parsed map[string]any
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		t.Fatalf("ParsedJSON invalid: %v", err)
	}
	if parsed["qualityScore"] != float64(8) {
		t.Errorf("ParsedJSON = %s", result.ParsedJSON)
	}
}

func TestAnthropicClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("status = %d", se.HTTPStatus())
	}
	if client.RateLimiter().Status().Last429Time.IsZero() {
		t.Error("expected 429 to be recorded")
	}
}
