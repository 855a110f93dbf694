package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tradepsych/insight/internal/prompts"
	"github.com/tradepsych/insight/internal/retry"
)

// Agent turns typed params into a typed structured result.
type Agent[P, T any] interface {
	Name() string
	Tool() ToolDescriptor
	Execute(ctx context.Context, params P) *Result[T]
}

// Config describes a structured agent.
type Config[P any] struct {
	Name          string
	Builder       prompts.Builder[P]
	Tool          ToolDescriptor
	SystemMessage string

	// Policy governs retries of retryable API errors. The zero value
	// means retry.DefaultPolicy().
	Policy retry.Policy

	Model       string
	Temperature *float64
	Mode        Mode
}

// Structured is an Agent built from a prompt builder, one tool and a retry policy.
type Structured[P, T any] struct {
	cfg     Config[P]
	invoker *Invoker
	logger  *slog.Logger
	timer   retry.Timer
}

// StructuredOption configures a Structured agent.
type StructuredOption func(*structuredOptions)

type structuredOptions struct {
	logger *slog.Logger
	timer  retry.Timer
}

// WithAgentLogger sets the agent's logger (defaults to the invoker's).
func WithAgentLogger(logger *slog.Logger) StructuredOption {
	return func(o *structuredOptions) { o.logger = logger }
}

// WithRetryTimer replaces the retry wait clock. Used by tests.
func WithRetryTimer(t retry.Timer) StructuredOption {
	return func(o *structuredOptions) { o.timer = t }
}

// NewStructured creates a structured agent.
func NewStructured[P, T any](inv *Invoker, cfg Config[P], opts ...StructuredOption) *Structured[P, T] {
	o := structuredOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		if inv != nil {
			o.logger = inv.logger
		} else {
			o.logger = slog.Default()
		}
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	return &Structured[P, T]{cfg: cfg, invoker: inv, logger: o.logger, timer: o.timer}
}

// Name returns the agent name.
func (a *Structured[P, T]) Name() string {
	return a.cfg.Name
}

// Tool returns the agent's tool descriptor.
func (a *Structured[P, T]) Tool() ToolDescriptor {
	return a.cfg.Tool
}

// Prompt renders the user prompt for params.
func (a *Structured[P, T]) Prompt(params P) (string, error) {
	if a.cfg.Builder == nil {
		return "", fmt.Errorf("agent %s has no prompt builder", a.cfg.Name)
	}
	return a.cfg.Builder.Build(params)
}

// Execute builds the prompt and invokes the model, retrying retryable API
// errors according to the agent's policy. It never returns nil.
func (a *Structured[P, T]) Execute(ctx context.Context, params P) *Result[T] {
	prompt, err := a.Prompt(params)
	if err != nil {
		return Failure[T](ErrUnknown, fmt.Sprintf("build prompt: %v", err), "")
	}

	req := Request{
		Prompt:        prompt,
		SystemMessage: a.cfg.SystemMessage,
		Tool:          a.cfg.Tool,
		Model:         a.cfg.Model,
		Temperature:   a.cfg.Temperature,
		Mode:          a.cfg.Mode,
	}

	info := CallInfoFrom(ctx)
	if info.Agent == "" {
		info.Agent = a.cfg.Name
	}

	var last *Result[json.RawMessage]
	attempts := 0
	opts := []retry.Option{
		retry.WithName(info.Agent),
		retry.WithLogger(a.logger),
		retry.OnRetry(func(attempt int, err error) {
			status, _ := retry.StatusOf(err)
			a.invoker.Metrics().IncRetry(info.Agent, status)
		}),
	}
	if a.timer != nil {
		opts = append(opts, retry.WithTimer(a.timer))
	}

	_, err = retry.Do(ctx, a.cfg.Policy, func(ctx context.Context) (*Result[json.RawMessage], error) {
		attempts++
		call := info
		call.Attempt = attempts
		last = a.invoker.Invoke(WithCallInfo(ctx, call), req)
		return last, last.Err()
	}, opts...)

	if last == nil {
		// Nothing ran: the policy was invalid or ctx was already done.
		return Failure[T](ErrUnknown, fmt.Sprintf("execute %s: %v", a.cfg.Name, err), prompt)
	}
	a.invoker.Metrics().ObserveAttempts(info.Agent, attempts)

	out := Decode[T](last)
	out.Attempts = attempts
	return out
}

var _ Agent[struct{}, struct{}] = (*Structured[struct{}, struct{}])(nil)
