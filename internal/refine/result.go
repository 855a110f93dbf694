package refine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/schema"
)

// IterationRecord is one round of a refinement run.
type IterationRecord[T any] struct {
	Index  int              `json:"index"`
	Result *agent.Result[T] `json:"result"`
	// ImprovementGuidance is the guidance this round was run with. Empty for
	// the seed round.
	ImprovementGuidance string `json:"improvementGuidance,omitempty"`
	// QualityScore is the critique score of Result, 0 when never scored.
	QualityScore float64 `json:"qualityScore,omitempty"`
}

// ProgressiveResult is the outcome of a refinement run. BestResult is the
// same pointer as IterationResults[FinalIterationIndex].Result.
type ProgressiveResult[T any] struct {
	RunID               string               `json:"runId"`
	BestResult          *agent.Result[T]     `json:"bestResult"`
	IterationResults    []IterationRecord[T] `json:"iterationResults"`
	ImprovementAnalysis []string             `json:"improvementAnalysis"`
	FinalIterationIndex int                  `json:"finalIterationIndex"`
	CompletionTime      time.Duration        `json:"-"`
	CompletionTimeMs    int64                `json:"completionTimeMs"`
}

// Erase converts the result to JSON payloads, keeping BestResult pointing
// into IterationResults.
func (r *ProgressiveResult[T]) Erase() *ProgressiveResult[json.RawMessage] {
	if r == nil {
		return nil
	}
	out := &ProgressiveResult[json.RawMessage]{
		RunID:               r.RunID,
		IterationResults:    make([]IterationRecord[json.RawMessage], len(r.IterationResults)),
		ImprovementAnalysis: r.ImprovementAnalysis,
		FinalIterationIndex: r.FinalIterationIndex,
		CompletionTime:      r.CompletionTime,
		CompletionTimeMs:    r.CompletionTimeMs,
	}
	for i, rec := range r.IterationResults {
		out.IterationResults[i] = IterationRecord[json.RawMessage]{
			Index:               rec.Index,
			Result:              rec.Result.Erase(),
			ImprovementGuidance: rec.ImprovementGuidance,
			QualityScore:        rec.QualityScore,
		}
	}
	if r.FinalIterationIndex >= 0 && r.FinalIterationIndex < len(out.IterationResults) {
		out.BestResult = out.IterationResults[r.FinalIterationIndex].Result
	}
	return out
}

// DecodeHistory converts JSON iteration records, as received at the HTTP
// boundary, into typed records for a resumed run. Successful records must
// carry data that satisfies shape; a nil shape only requires data to be
// present and to decode into T.
func DecodeHistory[T any](shape *schema.Shape, records []IterationRecord[json.RawMessage]) ([]IterationRecord[T], error) {
	out := make([]IterationRecord[T], 0, len(records))
	for i, rec := range records {
		if rec.Result == nil {
			return nil, fmt.Errorf("%w: record %d has no result", ErrInvalidHistory, i)
		}
		typed, err := decodeRecord[T](shape, rec.Result)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidHistory, i, err)
		}
		out = append(out, IterationRecord[T]{
			Index:               rec.Index,
			Result:              typed,
			ImprovementGuidance: rec.ImprovementGuidance,
			QualityScore:        rec.QualityScore,
		})
	}
	return out, nil
}

func decodeRecord[T any](shape *schema.Shape, res *agent.Result[json.RawMessage]) (*agent.Result[T], error) {
	if !res.IsSuccess() {
		return agent.Decode[T](res), nil
	}
	raw := bytes.TrimSpace(res.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("successful result has no data")
	}
	var data T
	var err error
	if shape != nil {
		data, err = schema.Decode[T](shape, raw)
	} else {
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, err
	}
	out := agent.Success(data, res.Model, res.OriginalPrompt)
	out.Attempts = res.Attempts
	return out, nil
}
