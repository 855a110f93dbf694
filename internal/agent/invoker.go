package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/schema"
)

const tracerName = "github.com/tradepsych/insight/internal/agent"

// DefaultSystemMessage is sent when a request names no system message.
const DefaultSystemMessage = "You are a helpful assistant that responds by calling the provided function."

// Mode selects how structured output is requested from the provider.
type Mode string

const (
	// ModeToolCall offers one function and reads its arguments.
	ModeToolCall Mode = "tool"
	// ModeResponseFormat asks for a json_schema response and parses the message content.
	ModeResponseFormat Mode = "response_format"
)

// Request is one structured invocation.
type Request struct {
	Prompt        string
	SystemMessage string
	Tool          ToolDescriptor

	// Optional overrides of the invoker defaults.
	Model       string
	Temperature *float64
	Mode        Mode
}

// Invoker sends structured requests to a provider and classifies the
// outcome. It never returns a Go error.
type Invoker struct {
	client      providers.LLMClient
	model       string
	temperature *float64
	maxTokens   int
	mode        Mode
	logger      *slog.Logger
	metrics     *metrics.Recorder
	calls       *llmcall.Recorder
	tracer      trace.Tracer
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithModel sets the default model.
func WithModel(model string) InvokerOption {
	return func(i *Invoker) { i.model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) InvokerOption {
	return func(i *Invoker) { i.temperature = &t }
}

// WithMaxTokens caps completion tokens.
func WithMaxTokens(n int) InvokerOption {
	return func(i *Invoker) { i.maxTokens = n }
}

// WithMode sets the default output mode.
func WithMode(m Mode) InvokerOption {
	return func(i *Invoker) { i.mode = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(m *metrics.Recorder) InvokerOption {
	return func(i *Invoker) { i.metrics = m }
}

// WithCallRecorder persists a record of every call.
func WithCallRecorder(r *llmcall.Recorder) InvokerOption {
	return func(i *Invoker) { i.calls = r }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) InvokerOption {
	return func(i *Invoker) {
		if t != nil {
			i.tracer = t
		}
	}
}

// NewInvoker creates an invoker over client. A nil client is allowed;
// every invocation then fails with UNKNOWN_ERROR.
func NewInvoker(client providers.LLMClient, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		client: client,
		mode:   ModeToolCall,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Provider returns the client's name, or "" when there is none.
func (inv *Invoker) Provider() string {
	if inv == nil || inv.client == nil {
		return ""
	}
	return inv.client.Name()
}

// Metrics returns the attached recorder (may be nil).
func (inv *Invoker) Metrics() *metrics.Recorder {
	if inv == nil {
		return nil
	}
	return inv.metrics
}

// Invoke performs one structured invocation. The returned Data is the
// validated JSON payload.
func (inv *Invoker) Invoke(ctx context.Context, req Request) *Result[json.RawMessage] {
	start := time.Now()
	if inv == nil {
		return Failure[json.RawMessage](ErrUnknown, "invoker not configured", req.Prompt)
	}
	meta := CallInfoFrom(ctx)

	ctx, span := inv.tracer.Start(ctx, "agent.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.name", meta.Agent),
			attribute.String("agent.tool", req.Tool.Name),
			attribute.String("agent.provider", inv.Provider()),
			attribute.String("agent.run_id", meta.RunID),
			attribute.Int("agent.iteration", meta.Iteration),
		),
	)
	defer span.End()

	chat, result := inv.invoke(ctx, req)

	status := result.Status()
	duration := time.Since(start)
	span.SetAttributes(attribute.String("agent.status", status))
	if !result.IsSuccess() {
		span.RecordError(errors.New(result.Error))
		span.SetStatus(codes.Error, status)
	}

	attrs := []any{
		"agent", meta.Agent,
		"tool", req.Tool.Name,
		"provider", inv.Provider(),
		"status", status,
		"attempt", meta.Attempt,
		"duration", duration,
	}
	if meta.RunID != "" {
		attrs = append(attrs, "run_id", meta.RunID, "iteration", meta.Iteration)
	}
	if result.IsSuccess() {
		inv.logger.Debug("structured invocation succeeded", attrs...)
	} else {
		attrs = append(attrs, "error", result.Error)
		inv.logger.Warn("structured invocation failed", attrs...)
	}

	var promptTokens, completionTokens int
	if chat != nil {
		promptTokens, completionTokens = chat.PromptTokens, chat.CompletionTokens
	}
	inv.metrics.ObserveInvocation(meta.Agent, inv.Provider(), status, promptTokens, completionTokens, duration)

	if inv.calls != nil {
		opts := llmcall.RecordOptions{
			Agent:       meta.Agent,
			Tool:        req.Tool.Name,
			RunID:       meta.RunID,
			Iteration:   meta.Iteration,
			Prompt:      req.Prompt,
			Temperature: inv.temperatureFor(req),
			Status:      status,
			Attempts:    meta.Attempt,
			Logger:      inv.logger,
		}
		if !result.IsSuccess() {
			opts.Error = result.Error
		}
		inv.calls.Record(chat, opts)
	}

	return result
}

func (inv *Invoker) temperatureFor(req Request) *float64 {
	if req.Temperature != nil {
		return req.Temperature
	}
	return inv.temperature
}

// invoke does the provider call and classification.
func (inv *Invoker) invoke(ctx context.Context, req Request) (*providers.ChatResult, *Result[json.RawMessage]) {
	prompt := req.Prompt
	if inv.client == nil {
		return nil, Failure[json.RawMessage](ErrUnknown, "no LLM client configured", prompt)
	}
	if err := req.Tool.Validate(); err != nil {
		return nil, Failure[json.RawMessage](ErrUnknown, err.Error(), prompt)
	}

	system := req.SystemMessage
	if system == "" {
		system = DefaultSystemMessage
	}
	model := req.Model
	if model == "" {
		model = inv.model
	}
	mode := req.Mode
	if mode == "" {
		mode = inv.mode
	}

	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: system},
			{Role: providers.RoleUser, Content: prompt},
		},
		Model:       model,
		Temperature: inv.temperatureFor(req),
		MaxTokens:   inv.maxTokens,
		ToolChoice:  providers.ToolChoiceAuto,
	}

	var (
		chat *providers.ChatResult
		err  error
	)
	switch mode {
	case ModeResponseFormat:
		rf, ferr := req.Tool.responseFormat()
		if ferr != nil {
			return nil, Failure[json.RawMessage](ErrUnknown, ferr.Error(), prompt)
		}
		chatReq.ResponseFormat = rf
		chat, err = inv.client.Chat(ctx, chatReq)
	default:
		tool, terr := req.Tool.providerTool()
		if terr != nil {
			return nil, Failure[json.RawMessage](ErrUnknown, terr.Error(), prompt)
		}
		chat, err = inv.client.ChatWithTools(ctx, chatReq, []providers.Tool{tool})
	}

	if err != nil {
		res := Failure[json.RawMessage](ErrAPI, err.Error(), prompt)
		if status, ok := statusCode(err); ok {
			res.HTTPStatus = status
		} else if chat != nil && chat.StatusCode != 0 {
			res.HTTPStatus = chat.StatusCode
		}
		return chat, res
	}
	if chat == nil {
		return nil, Failure[json.RawMessage](ErrUnknown, "provider returned no result", prompt)
	}

	var raw []byte
	switch mode {
	case ModeResponseFormat:
		switch {
		case len(chat.ParsedJSON) > 0:
			raw = chat.ParsedJSON
		case chat.Content == "":
			return chat, Failure[json.RawMessage](ErrNoFunctionCall, "response contained no content", prompt)
		default:
			parsed, perr := providers.ParseStructuredJSON(chat.Content)
			if perr != nil {
				return chat, Failure[json.RawMessage](ErrInvalidJSON, fmt.Sprintf("%v: %v", schema.ErrInvalidJSON, perr), prompt)
			}
			raw = parsed
		}
	default:
		call, ok := chat.FindToolCall(req.Tool.Name)
		if !ok {
			return chat, Failure[json.RawMessage](ErrNoFunctionCall,
				fmt.Sprintf("model did not call %s", req.Tool.Name), prompt)
		}
		raw = []byte(call.Function.Arguments)
	}

	value, verr := req.Tool.Shape.ValidateJSON(raw)
	if verr != nil {
		var ve *schema.ValidationError
		if errors.As(verr, &ve) {
			res := Failure[json.RawMessage](ErrSchemaValidation, ve.Error(), prompt)
			res.Fields = ve.Fields
			return chat, res
		}
		if errors.Is(verr, schema.ErrInvalidJSON) {
			return chat, Failure[json.RawMessage](ErrInvalidJSON, verr.Error(), prompt)
		}
		return chat, Failure[json.RawMessage](ErrUnknown, verr.Error(), prompt)
	}

	data, merr := json.Marshal(value)
	if merr != nil {
		return chat, Failure[json.RawMessage](ErrUnknown, merr.Error(), prompt)
	}
	model = chat.ModelUsed
	if model == "" {
		model = chatReq.Model
	}
	return chat, Success[json.RawMessage](data, model, prompt)
}

func statusCode(err error) (int, bool) {
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// Invoke performs a structured invocation and decodes the validated
// payload into T.
func Invoke[T any](ctx context.Context, inv *Invoker, prompt string, tool ToolDescriptor, systemMessage string) *Result[T] {
	return InvokeRequest[T](ctx, inv, Request{Prompt: prompt, Tool: tool, SystemMessage: systemMessage})
}

// InvokeRequest is Invoke with full request control.
func InvokeRequest[T any](ctx context.Context, inv *Invoker, req Request) *Result[T] {
	raw := inv.Invoke(ctx, req)
	return Decode[T](raw)
}

// Decode converts a JSON result into a typed one.
func Decode[T any](raw *Result[json.RawMessage]) *Result[T] {
	if raw == nil {
		return Failure[T](ErrUnknown, "nil result", "")
	}
	if !raw.IsSuccess() {
		out := Failure[T](raw.ErrorKind, raw.Error, raw.OriginalPrompt)
		out.Fields = raw.Fields
		out.HTTPStatus = raw.HTTPStatus
		out.Attempts = raw.Attempts
		return out
	}
	var data T
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		// The payload passed validation, so this is a Go type mismatch.
		return Failure[T](ErrUnknown, fmt.Sprintf("decode validated payload: %v", err), raw.OriginalPrompt)
	}
	out := Success(data, raw.Model, raw.OriginalPrompt)
	out.Attempts = raw.Attempts
	return out
}
