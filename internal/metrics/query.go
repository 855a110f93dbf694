package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Query provides usage summaries over recorded LLM calls.
type Query struct {
	db *sql.DB
}

// NewQuery creates a new metrics query helper.
func NewQuery(db *sql.DB) *Query {
	return &Query{db: db}
}

// Filter specifies query filters.
type Filter struct {
	Agent    string
	RunID    string
	Provider string
	Model    string
	After    time.Time
	Before   time.Time
	Success  *bool // nil = any, true = success only, false = errors only
}

// Summary provides a summary of calls for a filter.
type Summary struct {
	Count             int     `json:"count"`
	SuccessCount      int     `json:"success_count"`
	ErrorCount        int     `json:"error_count"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	TotalAttempts     int     `json:"total_attempts"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// buildWhere builds a SQL WHERE clause from a Filter.
func buildWhere(f Filter) (string, []any) {
	var parts []string
	var args []any

	add := func(cond string, v any) {
		parts = append(parts, cond)
		args = append(args, v)
	}
	if f.Agent != "" {
		add("agent = ?", f.Agent)
	}
	if f.RunID != "" {
		add("run_id = ?", f.RunID)
	}
	if f.Provider != "" {
		add("provider = ?", f.Provider)
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if !f.After.IsZero() {
		add("timestamp > ?", f.After.UTC())
	}
	if !f.Before.IsZero() {
		add("timestamp < ?", f.Before.UTC())
	}
	if f.Success != nil {
		add("success = ?", *f.Success)
	}

	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

const summaryColumns = `COUNT(*),
	COALESCE(SUM(success), 0),
	COALESCE(SUM(input_tokens), 0),
	COALESCE(SUM(output_tokens), 0),
	COALESCE(SUM(attempts), 0),
	COALESCE(AVG(latency_ms), 0)`

// GetSummary returns a summary of calls matching the filter.
func (q *Query) GetSummary(ctx context.Context, f Filter) (*Summary, error) {
	where, args := buildWhere(f)
	row := q.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM llm_calls`+where, args...)

	s, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("summary query failed: %w", err)
	}
	return s, nil
}

// SummaryByAgent returns one summary per agent for calls matching the filter.
func (q *Query) SummaryByAgent(ctx context.Context, f Filter) (map[string]*Summary, error) {
	where, args := buildWhere(f)
	rows, err := q.db.QueryContext(ctx,
		`SELECT agent, `+summaryColumns+` FROM llm_calls`+where+` GROUP BY agent`, args...)
	if err != nil {
		return nil, fmt.Errorf("summary query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Summary)
	for rows.Next() {
		var agent string
		s, err := scanSummary(rowsWithPrefix{rows: rows, prefix: []any{&agent}})
		if err != nil {
			return nil, err
		}
		out[agent] = s
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// rowsWithPrefix scans leading group-by columns before the summary columns.
type rowsWithPrefix struct {
	rows   *sql.Rows
	prefix []any
}

func (r rowsWithPrefix) Scan(dest ...any) error {
	return r.rows.Scan(append(r.prefix, dest...)...)
}

func scanSummary(row scanner) (*Summary, error) {
	var s Summary
	var avgLatencyMs float64
	if err := row.Scan(&s.Count, &s.SuccessCount, &s.InputTokens, &s.OutputTokens, &s.TotalAttempts, &avgLatencyMs); err != nil {
		return nil, err
	}
	s.ErrorCount = s.Count - s.SuccessCount
	s.AvgLatencySeconds = avgLatencyMs / 1000
	return &s, nil
}
