package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockResponse is one scripted reply. A non-nil Err fails the call.
type MockResponse struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// MockToolResponse scripts a single function call with JSON arguments.
func MockToolResponse(name string, arguments any) MockResponse {
	b, err := json.Marshal(arguments)
	if err != nil {
		return MockResponse{Err: fmt.Errorf("mock: marshal arguments: %w", err)}
	}
	return MockResponse{ToolCalls: []ToolCall{{
		ID:       "mock-tool-call-1",
		Type:     "function",
		Function: ToolCallFunction{Name: name, Arguments: string(b)},
	}}}
}

// MockClient is an LLMClient for testing.
//
// Scripted Responses are consumed in order. Once they run out the client
// falls back to ResponseText/ResponseJSON.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage
	Responses    []MockResponse

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doRequest(ctx, req, nil)
}

// ChatWithTools sends a mock chat request with tools.
func (c *MockClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doRequest(ctx, req, tools)
}

func (c *MockClient) doRequest(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	var scripted *MockResponse
	if len(c.Responses) > 0 {
		next := c.Responses[0]
		c.Responses = c.Responses[1:]
		scripted = &next
	}
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		return result, result.fail("mock_failure", fmt.Errorf("mock client configured to fail"), start)
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return result, result.fail("mock_failure", fmt.Errorf("mock client failed after %d requests", c.FailAfter), start)
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return result, result.fail("context_cancelled", ctx.Err(), start)
		}
	} else if err := ctx.Err(); err != nil {
		return result, result.fail("context_cancelled", err, start)
	}

	if scripted != nil && scripted.Err != nil {
		return result, result.fail("http_error", scripted.Err, start)
	}

	result.Success = true
	switch {
	case scripted != nil:
		result.Content = scripted.Content
		result.ToolCalls = scripted.ToolCalls
	case len(tools) > 0:
		args := string(c.ResponseJSON)
		if args == "" {
			args = "{}"
		}
		result.ToolCalls = []ToolCall{{
			ID:       "mock-tool-call-1",
			Type:     "function",
			Function: ToolCallFunction{Name: tools[0].Function.Name, Arguments: args},
		}}
	case req.ResponseFormat != nil && len(c.ResponseJSON) > 0:
		result.Content = string(c.ResponseJSON)
	default:
		result.Content = c.ResponseText
	}
	if req.ResponseFormat != nil && result.Content != "" {
		if parsed, err := ParseStructuredJSON(result.Content); err == nil {
			result.ParsedJSON = parsed
		}
	}

	// Rough token estimate
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4
	}
	completionTokens := len(result.Content) / 4
	for _, tc := range result.ToolCalls {
		completionTokens += len(tc.Function.Arguments) / 4
	}
	result.PromptTokens = promptTokens
	result.CompletionTokens = completionTokens
	result.TotalTokens = promptTokens + completionTokens
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns copies of the requests received so far.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.requests...)
}

// Reset clears the request counter and history.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
