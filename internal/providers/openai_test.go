package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClient_ChatWithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", body["model"])
		}
		if body["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v, want auto", body["tool_choice"])
		}
		if tools, _ := body["tools"].([]any); len(tools) != 1 {
			t.Errorf("tools = %v", body["tools"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"refusal": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "reflect_journal", "arguments": "{\"mood\":\"happy\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 6, "total_tokens": 26}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	tool := NewFunctionTool("reflect_journal", "journaling coach", json.RawMessage(`{"type":"object","properties":{"mood":{"type":"string"}}}`))

	result, err := client.ChatWithTools(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "respond by calling the function"},
			{Role: RoleUser, Content: "Great day"},
		},
		Temperature: Float(0.3),
	}, []Tool{tool})
	if err != nil {
		t.Fatalf("ChatWithTools() error = %v", err)
	}
	if result.ModelUsed != "gpt-4o-mini-2024-07-18" {
		t.Errorf("ModelUsed = %q", result.ModelUsed)
	}
	if result.TotalTokens != 26 {
		t.Errorf("TotalTokens = %d, want 26", result.TotalTokens)
	}
	call, ok := result.FindToolCall("reflect_journal")
	if !ok {
		t.Fatalf("tool call missing: %+v", result.ToolCalls)
	}
	if call.Function.Arguments != `{"mood":"happy"}` {
		t.Errorf("Arguments = %q", call.Function.Arguments)
	}
}

func TestOpenAIClient_StatusError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error","code":null,"param":null}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
	if result.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("result.StatusCode = %d", result.StatusCode)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (SDK retries disabled)", calls)
	}
}

func TestOpenAIClient_ResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		rf, _ := body["response_format"].(map[string]any)
		if rf["type"] != "json_schema" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		js, _ := rf["json_schema"].(map[string]any)
		if js["name"] != "meta_analysis" {
			t.Errorf("json_schema.name = %v", js["name"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"qualityScore\": 6}", "refusal": null}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, RPS: 100})
	rf, err := NewJSONSchemaFormat("meta_analysis", "critique", json.RawMessage(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("NewJSONSchemaFormat() error = %v", err)
	}
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages:       []Message{{Role: RoleUser, Content: "critique"}},
		ResponseFormat: rf,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if string(result.ParsedJSON) != `{"qualityScore":6}` {
		t.Errorf("ParsedJSON = %s", result.ParsedJSON)
	}
}
