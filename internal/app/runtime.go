// Package app assembles the agents, invoker and refinement engine from the
// current configuration and runtime settings. The server builds a runtime
// per request so settings changes apply without a restart; the CLI builds
// one per command.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/prompts"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/refine"
	"github.com/tradepsych/insight/internal/retry"
)

// ErrNoProvider is returned when the selected provider is not registered.
var ErrNoProvider = errors.New("llm provider not available")

// Deps are the long-lived services a runtime is built from.
type Deps struct {
	Providers *providers.Registry
	// Settings is optional; without it settings come from the environment and defaults.
	Settings config.Store
	// Config returns the current file configuration. Optional.
	Config  func() *config.Config
	Metrics *metrics.Recorder
	Calls   *llmcall.Recorder
	Tracer  trace.Tracer
	Logger  *slog.Logger
	// Timer replaces retry waits. Used by tests.
	Timer retry.Timer
	// Override is applied over the loaded settings for this runtime only.
	Override *config.LLMSettingsPatch
}

// Runtime is one consistent snapshot of settings and the objects built from them.
type Runtime struct {
	Settings config.LLMSettings
	Provider string
	Invoker  *agent.Invoker
	Agents   *agents.Registry
	Engine   *refine.Engine
	// Iterations is the configured default for refinement requests.
	Iterations int
}

// Build loads the LLM settings and wires a runtime over the selected provider.
func Build(ctx context.Context, deps Deps) (*Runtime, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Providers == nil {
		return nil, fmt.Errorf("%w: no provider registry", ErrNoProvider)
	}

	cfg := config.DefaultConfig()
	if deps.Config != nil {
		if c := deps.Config(); c != nil {
			cfg = c
		}
	}

	settings, err := config.LoadLLMSettings(ctx, deps.Settings)
	if err != nil {
		return nil, err
	}
	if deps.Override != nil {
		settings = settings.Apply(*deps.Override)
		if err := settings.Validate(); err != nil {
			return nil, err
		}
	}

	provider := settings.Provider
	if provider == "" {
		provider = cfg.Defaults.LLMProvider
	}
	client, err := deps.Providers.GetLLM(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrNoProvider, provider, deps.Providers.ListLLM())
	}

	mode := agent.Mode(cfg.Defaults.Mode)
	if mode == "" {
		mode = agent.ModeToolCall
	}

	inv := agent.NewInvoker(client,
		agent.WithModel(settings.Model),
		agent.WithTemperature(settings.Temperature),
		agent.WithMode(mode),
		agent.WithLogger(logger),
		agent.WithMetrics(deps.Metrics),
		agent.WithCallRecorder(deps.Calls),
		agent.WithTracer(deps.Tracer),
	)

	var budget *prompts.TokenBudget
	if cfg.Refine.TokenBudget > 0 {
		if budget, err = prompts.NewTokenBudget(cfg.Refine.TokenBudget); err != nil {
			return nil, err
		}
	}

	policy := settings.RetryPolicy()
	registry := agents.NewRegistry(inv, agents.Options{
		Policy:        policy,
		SystemMessage: settings.SystemMessage,
		Budget:        budget,
		Logger:        logger,
		Timer:         deps.Timer,
	})

	eopts := []refine.Option{
		refine.WithLogger(logger),
		refine.WithCritiquePolicy(policy),
	}
	if deps.Metrics != nil {
		eopts = append(eopts, refine.WithMetrics(deps.Metrics))
	}
	if deps.Tracer != nil {
		eopts = append(eopts, refine.WithTracer(deps.Tracer))
	}
	if budget != nil {
		eopts = append(eopts, refine.WithTokenBudget(budget))
	}
	if deps.Timer != nil {
		eopts = append(eopts, refine.WithRetryTimer(deps.Timer))
	}

	return &Runtime{
		Settings:   settings,
		Provider:   provider,
		Invoker:    inv,
		Agents:     registry,
		Engine:     refine.NewEngine(inv, eopts...),
		Iterations: cfg.Refine.Iterations,
	}, nil
}

// Refine runs a refinement with the runtime's default iteration count
// when the request names none.
func (rt *Runtime) Refine(ctx context.Context, name string, req agents.RefineRequest) (*refine.ProgressiveResult[json.RawMessage], error) {
	h, err := rt.Agents.Lookup(name)
	if err != nil {
		return nil, err
	}
	if req.Iterations == 0 {
		req.Iterations = rt.Iterations
	}
	return h.Refine(ctx, rt.Engine, req)
}

// Execute runs one agent once.
func (rt *Runtime) Execute(ctx context.Context, name string, params json.RawMessage) (*agent.Result[json.RawMessage], error) {
	h, err := rt.Agents.Lookup(name)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, params)
}
