package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/tradepsych/insight/version"
)

const AnthropicName = "anthropic"

// anthropicDefaultMaxTokens is used when a request leaves MaxTokens unset;
// the Messages API requires it.
const anthropicDefaultMaxTokens = 4096

// AnthropicConfig holds configuration for the Anthropic Messages client.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RPS          float64
	HTTPClient   *http.Client // Optional (tests)
}

// AnthropicClient implements LLMClient using the Anthropic SDK.
//
// Response-format requests are served through a forced single tool, since
// the Messages API has no json_schema response format.
type AnthropicClient struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
	rps          float64
	limiter      *RateLimiter
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-5"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 2.0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		rps:          cfg.RPS,
		limiter:      NewRateLimiter(cfg.RPS),
	}
}

// Name returns the client identifier.
func (c *AnthropicClient) Name() string {
	return AnthropicName
}

// RateLimiter exposes the client's limiter for status reporting.
func (c *AnthropicClient) RateLimiter() *RateLimiter {
	return c.limiter
}

// Chat sends a message request.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a message request with tool definitions.
func (c *AnthropicClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *AnthropicClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
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
		Provider:  AnthropicName,
		Attempts:  1,
	}

	params, formatTool, err := c.buildParams(model, req, tools)
	if err != nil {
		return result, result.fail("request_error", err, start)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result, result.fail("context_cancelled", err, start)
	}
	result.QueueTime = time.Since(start)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		err = anthropicStatusError(err)
		if status, ok := statusOf(err); ok && status == http.StatusTooManyRequests {
			c.limiter.Record429()
		}
		return result, result.fail("http_error", err, start)
	}
	if len(msg.Content) == 0 {
		return result, result.fail("empty_response",
			fmt.Errorf("%w: no content blocks (model=%s, id=%s)", ErrEmptyResponse, msg.Model, msg.ID), start)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			use := block.AsToolUse()
			if formatTool != "" && use.Name == formatTool {
				// Forced format tool: its input is the structured answer.
				result.ParsedJSON = append(json.RawMessage(nil), use.Input...)
				continue
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   use.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      use.Name,
					Arguments: string(use.Input),
				},
			})
		}
	}

	result.Success = true
	result.Content = text.String()
	if result.ParsedJSON != nil {
		result.Content = string(result.ParsedJSON)
	}
	result.ModelUsed = string(msg.Model)
	result.PromptTokens = int(msg.Usage.InputTokens)
	result.CompletionTokens = int(msg.Usage.OutputTokens)
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.ExecutionTime = time.Since(start) - result.QueueTime
	result.TotalTime = time.Since(start)

	return result, nil
}

// buildParams maps a ChatRequest onto the Messages API. It returns the name
// of the synthetic format tool when ResponseFormat was translated into one.
func (c *AnthropicClient) buildParams(model string, req *ChatRequest, tools []Tool) (anthropic.MessageNewParams, string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	formatTool := ""
	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		var format JSONSchemaFormat
		if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &format); err != nil {
			return params, "", fmt.Errorf("invalid response format: %w", err)
		}
		tools = append([]Tool{NewFunctionTool(format.Name, format.Description, format.Schema)}, tools...)
		formatTool = format.Name
	}

	for _, t := range tools {
		schema, err := anthropicInputSchema(t.Function.Parameters)
		if err != nil {
			return params, "", fmt.Errorf("invalid parameters for tool %s: %w", t.Function.Name, err)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if t.Function.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Function.Description)
		}
		params.Tools = append(params.Tools, tool)
	}

	switch {
	case formatTool != "":
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: formatTool}}
	case len(tools) == 0:
	case req.ToolChoice == ToolChoiceRequired:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case req.ToolChoice == ToolChoiceNone:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	default:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	return params, formatTool, nil
}

// anthropicInputSchema splits a JSON schema object into the SDK's input
// schema form. Keys other than type/properties/required travel as extras.
func anthropicInputSchema(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if len(raw) == 0 {
		return schema, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return schema, err
	}
	schema.Properties = doc["properties"]
	if req, ok := doc["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	for k, v := range doc {
		switch k {
		case "type", "properties", "required":
			continue
		}
		if schema.ExtraFields == nil {
			schema.ExtraFields = make(map[string]any)
		}
		schema.ExtraFields[k] = v
	}
	return schema, nil
}

// anthropicStatusError converts SDK API errors to *StatusError.
func anthropicStatusError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: AnthropicName, StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	return err
}

var _ LLMClient = (*AnthropicClient)(nil)
