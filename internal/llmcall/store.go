package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// Store provides access to LLM call records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new call store. The llm_calls table must exist
// (see store.Initialize).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	Agent    string
	RunID    string
	Provider string
	Model    string
	Status   string
	After    *time.Time
	Before   *time.Time
	Success  *bool
	Limit    int
	Offset   int
}

const callColumns = `id, timestamp, latency_ms, agent, tool, run_id, iteration, prompt_hash,
	provider, model, temperature, input_tokens, output_tokens, attempts,
	response, tool_calls, success, status, error`

// Insert stores a call.
func (s *Store) Insert(ctx context.Context, c *Call) error {
	if c == nil {
		return fmt.Errorf("nil call")
	}
	var temperature any
	if c.Temperature != nil {
		temperature = *c.Temperature
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_calls (`+callColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Timestamp.UTC(), c.LatencyMs, c.Agent, c.Tool, c.RunID, c.Iteration, c.PromptHash,
		c.Provider, c.Model, temperature, c.InputTokens, c.OutputTokens, c.Attempts,
		c.Response, string(c.ToolCalls), c.Success, c.Status, c.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert llm call: %w", err)
	}
	return nil
}

// Get retrieves a single LLM call by ID. Returns nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM llm_calls WHERE id = ?`, id)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return c, nil
}

// List retrieves LLM calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var conditions []string
	var args []any

	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}
	if filter.Agent != "" {
		add("agent = ?", filter.Agent)
	}
	if filter.RunID != "" {
		add("run_id = ?", filter.RunID)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}
	if filter.After != nil {
		add("timestamp > ?", filter.After.UTC())
	}
	if filter.Before != nil {
		add("timestamp < ?", filter.Before.UTC())
	}

	query := `SELECT ` + callColumns + ` FROM llm_calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, iteration DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm call: %w", err)
		}
		calls = append(calls, *c)
	}
	return calls, rows.Err()
}

// CountByAgent returns call counts grouped by agent name.
// An empty runID counts every call.
func (s *Store) CountByAgent(ctx context.Context, runID string) (map[string]int, error) {
	query := `SELECT agent, COUNT(*) FROM llm_calls`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY agent`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var agent string
		var n int
		if err := rows.Scan(&agent, &n); err != nil {
			return nil, err
		}
		counts[agent] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*Call, error) {
	var (
		c           Call
		temperature sql.NullFloat64
		toolCalls   string
	)
	err := row.Scan(&c.ID, &c.Timestamp, &c.LatencyMs, &c.Agent, &c.Tool, &c.RunID, &c.Iteration,
		&c.PromptHash, &c.Provider, &c.Model, &temperature, &c.InputTokens, &c.OutputTokens,
		&c.Attempts, &c.Response, &toolCalls, &c.Success, &c.Status, &c.Error)
	if err != nil {
		return nil, err
	}
	if temperature.Valid {
		t := temperature.Float64
		c.Temperature = &t
	}
	if toolCalls != "" {
		c.ToolCalls = []byte(toolCalls)
	}
	return &c, nil
}
