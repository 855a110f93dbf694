package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/general_analysis"
	"github.com/tradepsych/insight/internal/agents/journal"
	"github.com/tradepsych/insight/internal/agents/journal_reflection"
	"github.com/tradepsych/insight/internal/agents/sentiment"
	"github.com/tradepsych/insight/internal/refine"
)

// ErrInvalidParams is returned when request params cannot be decoded.
var ErrInvalidParams = errors.New("invalid agent params")

// Registry holds one instance of every agent, built from the same invoker
// and settings. It is cheap to build; build a new one when settings change.
type Registry struct {
	reflection *agent.Structured[journal.Entry, journal_reflection.Result]
	sentiment  *agent.Structured[journal.Entry, sentiment.Result]
	general    *agent.Structured[journal.Entry, general_analysis.Result]
}

// NewRegistry creates every agent.
func NewRegistry(inv *agent.Invoker, opts Options) *Registry {
	return &Registry{
		reflection: NewJournalReflectionAgent(inv, opts),
		sentiment:  NewSentimentAgent(inv, opts),
		general:    NewGeneralAnalysisAgent(inv, opts),
	}
}

func (r *Registry) JournalReflection() *agent.Structured[journal.Entry, journal_reflection.Result] {
	return r.reflection
}

func (r *Registry) Sentiment() *agent.Structured[journal.Entry, sentiment.Result] {
	return r.sentiment
}

func (r *Registry) GeneralAnalysis() *agent.Structured[journal.Entry, general_analysis.Result] {
	return r.general
}

// Handle returns the type-erased handle for name.
func (r *Registry) Handle(name Name) (Handle, error) {
	switch name {
	case JournalReflection:
		return handle[journal_reflection.Result]{name: name, agent: r.reflection}, nil
	case Sentiment:
		return handle[sentiment.Result]{name: name, agent: r.sentiment}, nil
	case GeneralAnalysis:
		return handle[general_analysis.Result]{name: name, agent: r.general}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
}

// Lookup parses s and returns its handle.
func (r *Registry) Lookup(s string) (Handle, error) {
	name, err := ParseName(s)
	if err != nil {
		return nil, err
	}
	return r.Handle(name)
}

// Info describes an agent for listings.
type Info struct {
	Name Name                 `json:"name"`
	Tool agent.ToolDescriptor `json:"tool"`
}

// List describes every agent.
func (r *Registry) List() []Info {
	names := Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		h, err := r.Handle(name)
		if err != nil {
			continue
		}
		out = append(out, Info{Name: name, Tool: h.Tool()})
	}
	return out
}

// RefineRequest is a refinement request at the boundary.
type RefineRequest struct {
	Params     json.RawMessage                           `json:"params"`
	Iterations int                                       `json:"iterations,omitempty"`
	Previous   []refine.IterationRecord[json.RawMessage] `json:"previous,omitempty"`
}

// Handle executes or refines one agent with JSON params and results.
type Handle interface {
	Name() Name
	Tool() agent.ToolDescriptor
	// Execute returns an error only for params that cannot be decoded;
	// invocation failures are error results.
	Execute(ctx context.Context, params json.RawMessage) (*agent.Result[json.RawMessage], error)
	Refine(ctx context.Context, engine *refine.Engine, req RefineRequest) (*refine.ProgressiveResult[json.RawMessage], error)
}

type handle[T any] struct {
	name  Name
	agent *agent.Structured[journal.Entry, T]
}

func (h handle[T]) Name() Name                 { return h.name }
func (h handle[T]) Tool() agent.ToolDescriptor { return h.agent.Tool() }

func (h handle[T]) Execute(ctx context.Context, params json.RawMessage) (*agent.Result[json.RawMessage], error) {
	entry, err := decodeEntry(params)
	if err != nil {
		return nil, err
	}
	return h.agent.Execute(ctx, entry).Erase(), nil
}

func (h handle[T]) Refine(ctx context.Context, engine *refine.Engine, req RefineRequest) (*refine.ProgressiveResult[json.RawMessage], error) {
	entry, err := decodeEntry(req.Params)
	if err != nil {
		return nil, err
	}
	previous, err := refine.DecodeHistory[T](h.agent.Tool().Shape, req.Previous)
	if err != nil {
		return nil, err
	}
	out, err := refine.Refine[journal.Entry, T](ctx, engine, h.agent, entry, refine.Options[T]{
		Iterations: req.Iterations,
		Previous:   previous,
	})
	if err != nil {
		return nil, err
	}
	return out.Erase(), nil
}

func decodeEntry(raw json.RawMessage) (journal.Entry, error) {
	var entry journal.Entry
	if len(raw) == 0 {
		return entry, fmt.Errorf("%w: %w", ErrInvalidParams, journal.ErrEmptyEntry)
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := entry.Validate(); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return entry, nil
}
