package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat sends a chat completion request.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with tool definitions.
func (c *OpenRouterClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *OpenRouterClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenRouterName,
		Attempts:  1,
	}

	orReq := openRouterRequest{
		Model:       model,
		Messages:    make([]openRouterMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Usage:       &openRouterUsageRequest{Include: true},
	}
	for _, m := range req.Messages {
		orReq.Messages = append(orReq.Messages, openRouterMessage{Role: m.Role, Content: m.Content})
	}

	if req.ResponseFormat != nil {
		rf, err := adaptedResponseFormat(model, req.ResponseFormat)
		if err != nil {
			return result, result.fail("schema_error", err, start)
		}
		orReq.ResponseFormat = rf
	}

	if len(tools) > 0 {
		orReq.Tools = tools
		orReq.ToolChoice = req.ToolChoice
		if orReq.ToolChoice == "" {
			orReq.ToolChoice = ToolChoiceAuto
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result, result.fail("context_cancelled", err, start)
	}
	result.QueueTime = time.Since(start)

	orResp, err := c.doRequest(ctx, "/chat/completions", &orReq)
	if err != nil {
		return result, result.fail("http_error", err, start)
	}

	if len(orResp.Choices) == 0 {
		return result, result.fail("empty_response",
			fmt.Errorf("%w: no choices (model=%s, id=%s)", ErrEmptyResponse, orResp.Model, orResp.ID), start)
	}

	content := ""
	if raw := orResp.Choices[0].Message.Content; raw != nil {
		switch v := raw.(type) {
		case string:
			content = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return result, result.fail("content_marshal_error", fmt.Errorf("failed to marshal content: %w", err), start)
			}
			content = string(b)
		}
	}

	result.Success = true
	result.Content = content
	result.ModelUsed = orResp.Model
	result.PromptTokens = orResp.Usage.PromptTokens
	result.CompletionTokens = orResp.Usage.CompletionTokens
	result.TotalTokens = orResp.Usage.TotalTokens
	result.ReasoningTokens = orResp.Usage.CompletionTokensDetails.ReasoningTokens
	result.CostUSD = orResp.Usage.Cost
	result.ExecutionTime = time.Since(start) - result.QueueTime
	result.TotalTime = time.Since(start)
	result.ToolCalls = orResp.Choices[0].Message.ToolCalls

	if req.ResponseFormat != nil && content != "" {
		if parsed, err := ParseStructuredJSON(content); err == nil {
			result.ParsedJSON = parsed
		}
	}

	return result, nil
}
