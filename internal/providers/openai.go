package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/tradepsych/insight/version"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for the OpenAI chat client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // Optional, defaults to the SDK default
	DefaultModel string
	Timeout      time.Duration
	RPS          float64
	HTTPClient   *http.Client // Optional (tests)
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	client       openai.Client
	apiKey       string
	defaultModel string
	rps          float64
	limiter      *RateLimiter
}

// NewOpenAIClient creates a new OpenAI chat client.
// The SDK's own retry loop is disabled; callers retry through internal/retry.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
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

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		rps:          cfg.RPS,
		limiter:      NewRateLimiter(cfg.RPS),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RateLimiter exposes the client's limiter for status reporting.
func (c *OpenAIClient) RateLimiter() *RateLimiter {
	return c.limiter
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with function tools.
func (c *OpenAIClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

func (c *OpenAIClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
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
		Provider:  OpenAIName,
		Attempts:  1,
	}

	params, err := c.buildParams(model, req, tools)
	if err != nil {
		return result, result.fail("request_error", err, start)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result, result.fail("context_cancelled", err, start)
	}
	result.QueueTime = time.Since(start)

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = openAIStatusError(err)
		if status, ok := statusOf(err); ok && status == http.StatusTooManyRequests {
			c.limiter.Record429()
		}
		return result, result.fail("http_error", err, start)
	}
	if len(completion.Choices) == 0 {
		return result, result.fail("empty_response",
			fmt.Errorf("%w: no choices (model=%s, id=%s)", ErrEmptyResponse, completion.Model, completion.ID), start)
	}

	msg := completion.Choices[0].Message
	result.Success = true
	result.Content = msg.Content
	result.ModelUsed = completion.Model
	result.PromptTokens = int(completion.Usage.PromptTokens)
	result.CompletionTokens = int(completion.Usage.CompletionTokens)
	result.TotalTokens = int(completion.Usage.TotalTokens)
	result.ReasoningTokens = int(completion.Usage.CompletionTokensDetails.ReasoningTokens)
	result.ExecutionTime = time.Since(start) - result.QueueTime
	result.TotalTime = time.Since(start)

	for _, tc := range msg.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	if req.ResponseFormat != nil && msg.Content != "" {
		if parsed, err := ParseStructuredJSON(msg.Content); err == nil {
			result.ParsedJSON = parsed
		}
	}

	return result, nil
}

func (c *OpenAIClient) buildParams(model string, req *ChatRequest, tools []Tool) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		var format JSONSchemaFormat
		if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &format); err != nil {
			return params, fmt.Errorf("invalid response format: %w", err)
		}
		var schema map[string]any
		if err := json.Unmarshal(format.Schema, &schema); err != nil {
			return params, fmt.Errorf("invalid response schema: %w", err)
		}
		jsonSchema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   format.Name,
			Strict: openai.Bool(format.Strict),
			Schema: schema,
		}
		if format.Description != "" {
			jsonSchema.Description = openai.String(format.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: jsonSchema},
		}
	}

	for _, t := range tools {
		var parameters openai.FunctionParameters
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &parameters); err != nil {
				return params, fmt.Errorf("invalid parameters for tool %s: %w", t.Function.Name, err)
			}
		}
		def := openai.FunctionDefinitionParam{
			Name:       t.Function.Name,
			Parameters: parameters,
		}
		if t.Function.Description != "" {
			def.Description = openai.String(t.Function.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(def))
	}
	if len(tools) > 0 {
		choice := req.ToolChoice
		if choice == "" {
			choice = ToolChoiceAuto
		}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
	}

	return params, nil
}

// openAIStatusError converts SDK API errors to *StatusError.
func openAIStatusError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if body == "" {
			body = apiErr.RawJSON()
		}
		return &StatusError{Provider: OpenAIName, StatusCode: apiErr.StatusCode, Body: body}
	}
	return err
}

var _ LLMClient = (*OpenAIClient)(nil)
