// Package refine runs progressive refinement: an agent is executed, its
// result is critiqued by the model, and the critique is fed back into the
// next execution. Rounds are strictly sequential.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/prompts"
	"github.com/tradepsych/insight/internal/retry"
)

const tracerName = "github.com/tradepsych/insight/internal/refine"

// DefaultIterations is used when Options.Iterations is zero.
const DefaultIterations = 3

var (
	// ErrHistoryTooLong is returned when more previous records are supplied
	// than iterations requested.
	ErrHistoryTooLong = errors.New("previous results exceed requested iterations")
	// ErrInvalidHistory is returned for previous records that cannot be resumed.
	ErrInvalidHistory = errors.New("invalid previous results")
	// ErrInvalidIterations is returned for a negative iteration count.
	ErrInvalidIterations = errors.New("iterations must not be negative")
)

// Target is the operation being improved.
type Target[P, T any] interface {
	Name() string
	Execute(ctx context.Context, params P) *agent.Result[T]
}

// Enhanceable params can carry refinement feedback into a prompt.
type Enhanceable[P any] interface {
	WithEnhancement(prompts.Enhancement) P
}

// Options controls one run.
type Options[T any] struct {
	// Iterations is the total number of records the run ends with.
	Iterations int
	// Previous are records from an earlier run to resume from. They are
	// copied, never modified.
	Previous []IterationRecord[T]
}

// Engine critiques results and drives refinement runs.
type Engine struct {
	critic  *agent.Structured[critiqueParams, MetaAnalysis]
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
	budget  *prompts.TokenBudget
	newID   func() string
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
	budget  *prompts.TokenBudget
	policy  retry.Policy
	timer   retry.Timer
	newID   func() string
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithMetrics records run outcomes and quality scores.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithTracer sets the tracer for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = t }
}

// WithTokenBudget limits how many tokens of a result are embedded in a
// critique prompt.
func WithTokenBudget(b *prompts.TokenBudget) Option {
	return func(o *engineOptions) { o.budget = b }
}

// WithCritiquePolicy sets the retry policy for critique calls.
func WithCritiquePolicy(p retry.Policy) Option {
	return func(o *engineOptions) { o.policy = p }
}

// WithRetryTimer replaces the retry wait clock for critique calls.
func WithRetryTimer(t retry.Timer) Option {
	return func(o *engineOptions) { o.timer = t }
}

// WithRunID replaces the run id generator.
func WithRunID(f func() string) Option {
	return func(o *engineOptions) { o.newID = f }
}

// NewEngine creates an engine whose critiques go through inv.
func NewEngine(inv *agent.Invoker, opts ...Option) *Engine {
	o := engineOptions{
		logger:  slog.Default(),
		metrics: inv.Metrics(),
		tracer:  otel.Tracer(tracerName),
		policy:  retry.DefaultPolicy(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	sopts := []agent.StructuredOption{agent.WithAgentLogger(o.logger)}
	if o.timer != nil {
		sopts = append(sopts, agent.WithRetryTimer(o.timer))
	}
	critic := agent.NewStructured[critiqueParams, MetaAnalysis](inv, agent.Config[critiqueParams]{
		Name:          CriticName,
		Builder:       critiqueBuilder,
		Tool:          MetaTool(),
		SystemMessage: criticSystemMessage,
		Policy:        o.policy,
	}, sopts...)

	return &Engine{
		critic:  critic,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		budget:  o.budget,
		newID:   o.newID,
	}
}

// Critique asks the model to review result, the latest of the run so far.
// iteration is the 1-based number of the iteration the critique prepares.
// An error result comes back as a *agent.ResultError.
func (e *Engine) Critique(ctx context.Context, agentName string, iteration int, result any, guidance []string) (*MetaAnalysis, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result for critique: %w", err)
	}
	text := string(data)
	if e.budget != nil {
		text = e.budget.Truncate(text, e.budget.MaxTokens)
	}

	res := e.critic.Execute(ctx, critiqueParams{
		Agent:     agentName,
		Iteration: iteration,
		Latest:    iteration - 1,
		Result:    text,
		Guidance:  guidance,
	})
	if !res.IsSuccess() {
		return nil, res.Err()
	}
	e.metrics.ObserveQualityScore(agentName, res.Data.QualityScore)
	return &res.Data, nil
}

// Refine runs target until there are opts.Iterations records, then picks the
// highest scoring one. Any error result aborts the run; no partial result is
// returned. ctx is checked between rounds.
func Refine[P Enhanceable[P], T any](ctx context.Context, e *Engine, target Target[P, T], params P, opts Options[T]) (*ProgressiveResult[T], error) {
	start := time.Now()
	name := target.Name()

	iterations := opts.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidIterations, iterations)
	}
	if len(opts.Previous) > iterations {
		return nil, fmt.Errorf("%w: %d records for %d iterations", ErrHistoryTooLong, len(opts.Previous), iterations)
	}
	for i, rec := range opts.Previous {
		if rec.Result == nil || !rec.Result.IsSuccess() {
			return nil, fmt.Errorf("%w: record %d is not a successful result", ErrInvalidHistory, i)
		}
		if rec.Index != i {
			return nil, fmt.Errorf("%w: record %d has index %d", ErrInvalidHistory, i, rec.Index)
		}
	}

	runID := e.newID()
	ctx, span := e.tracer.Start(ctx, "refine.run", trace.WithAttributes(
		attribute.String("refine.agent", name),
		attribute.String("refine.run_id", runID),
		attribute.Int("refine.iterations", iterations),
		attribute.Int("refine.previous", len(opts.Previous)),
	))
	defer span.End()

	logger := e.logger.With("agent", name, "run_id", runID)
	logger.Info("refinement started", "iterations", iterations, "previous", len(opts.Previous))

	out, err := run(ctx, e, target, params, iterations, opts.Previous, runID, logger)
	e.metrics.ObserveRefineRun(name, iterations, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("refinement failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	out.CompletionTime = time.Since(start)
	out.CompletionTimeMs = out.CompletionTime.Milliseconds()
	span.SetAttributes(
		attribute.Int("refine.final_index", out.FinalIterationIndex),
		attribute.Float64("refine.best_score", out.IterationResults[out.FinalIterationIndex].QualityScore),
	)
	logger.Info("refinement complete",
		"final_index", out.FinalIterationIndex,
		"score", out.IterationResults[out.FinalIterationIndex].QualityScore,
		"duration", out.CompletionTime)
	return out, nil
}

func run[P Enhanceable[P], T any](ctx context.Context, e *Engine, target Target[P, T], params P, iterations int, previous []IterationRecord[T], runID string, logger *slog.Logger) (*ProgressiveResult[T], error) {
	name := target.Name()

	records := make([]IterationRecord[T], len(previous), iterations)
	copy(records, previous)
	var guidance []string
	for _, rec := range records {
		if rec.ImprovementGuidance != "" {
			guidance = append(guidance, rec.ImprovementGuidance)
		}
	}

	callCtx := func(i int) context.Context {
		return agent.WithCallInfo(ctx, agent.CallInfo{Agent: name, RunID: runID, Iteration: i})
	}
	critiqueCtx := func(i int) context.Context {
		return agent.WithCallInfo(ctx, agent.CallInfo{Agent: CriticName, RunID: runID, Iteration: i})
	}

	// Supplied records without a score are critiqued so they can compete in
	// selection. The last record is scored below either way, and rescoring
	// does not add guidance.
	for j := 0; j < len(records)-1; j++ {
		rec := &records[j]
		if rec.QualityScore > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("refine %s: scoring history: %w", name, err)
		}
		meta, err := e.Critique(critiqueCtx(rec.Index), name, rec.Index+1, rec.Result.Data, guidance)
		if err != nil {
			return nil, fmt.Errorf("refine %s: critique of iteration %d: %w", name, rec.Index, err)
		}
		rec.QualityScore = meta.QualityScore
		logger.Debug("scored history record", "iteration", rec.Index, "score", meta.QualityScore)
	}

	if len(records) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := target.Execute(callCtx(0), params)
		if !res.IsSuccess() {
			return nil, fmt.Errorf("refine %s: iteration 0: %w", name, res.Err())
		}
		records = append(records, IterationRecord[T]{Index: 0, Result: res})
		logger.Debug("seed iteration complete")
	}

	for i := len(records); i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("refine %s: before iteration %d: %w", name, i, err)
		}

		last := &records[i-1]
		meta, err := e.Critique(critiqueCtx(i), name, i+1, last.Result.Data, guidance)
		if err != nil {
			return nil, fmt.Errorf("refine %s: critique of iteration %d: %w", name, i-1, err)
		}
		last.QualityScore = meta.QualityScore
		guidance = append(guidance, meta.ImprovementGuidance)

		previousJSON, err := json.Marshal(last.Result.Data)
		if err != nil {
			return nil, fmt.Errorf("refine %s: encode iteration %d: %w", name, i-1, err)
		}
		enhanced := params.WithEnhancement(prompts.Enhancement{
			Guidance:       meta.ImprovementGuidance,
			PreviousResult: previousJSON,
			Iteration:      i + 1,
		})

		res := target.Execute(callCtx(i), enhanced)
		if !res.IsSuccess() {
			return nil, fmt.Errorf("refine %s: iteration %d: %w", name, i, res.Err())
		}
		records = append(records, IterationRecord[T]{
			Index:               i,
			Result:              res,
			ImprovementGuidance: meta.ImprovementGuidance,
		})
		logger.Debug("iteration complete", "iteration", i, "previous_score", meta.QualityScore)
	}

	// Score the final round so every record competes.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refine %s: before selection: %w", name, err)
	}
	final := &records[len(records)-1]
	meta, err := e.Critique(critiqueCtx(len(records)), name, len(records)+1, final.Result.Data, guidance)
	if err != nil {
		return nil, fmt.Errorf("refine %s: critique of iteration %d: %w", name, final.Index, err)
	}
	final.QualityScore = meta.QualityScore

	best := selectBest(records)
	if guidance == nil {
		guidance = []string{}
	}
	return &ProgressiveResult[T]{
		RunID:               runID,
		BestResult:          records[best].Result,
		IterationResults:    records,
		ImprovementAnalysis: guidance,
		FinalIterationIndex: best,
	}, nil
}

// selectBest returns the index of the highest scoring record. Ties go to the
// later record.
func selectBest[T any](records []IterationRecord[T]) int {
	best := 0
	for i := 1; i < len(records); i++ {
		if records[i].QualityScore >= records[best].QualityScore {
			best = i
		}
	}
	return best
}
