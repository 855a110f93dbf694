package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/store"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveInvocation("sentiment", "mock", "SUCCESS", 100, 40, 2*time.Second)
	r.ObserveInvocation("sentiment", "mock", "API_ERROR", 0, 0, time.Second)
	r.IncRetry("sentiment", 503)
	r.ObserveAttempts("sentiment", 2)
	r.ObserveQualityScore("sentiment", 7)
	r.ObserveRefineRun("sentiment", 3, nil)
	r.ObserveRefineRun("sentiment", 0, errors.New("critique failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.invocationsTotal.WithLabelValues("sentiment", "mock", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.invocationsTotal.WithLabelValues("sentiment", "mock", "API_ERROR")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.tokensTotal.WithLabelValues("sentiment", "mock", "prompt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retriesTotal.WithLabelValues("sentiment", "503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.refineRunsTotal.WithLabelValues("sentiment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.refineRunsTotal.WithLabelValues("sentiment", "success")))

	n, err := testutil.GatherAndCount(reg, "insight_quality_score")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.ObserveInvocation("a", "b", "c", 1, 1, time.Second)
	r.IncRetry("a", 0)
	r.ObserveAttempts("a", 1)
	r.ObserveQualityScore("a", 5)
	r.ObserveRefineRun("a", 1, nil)
}

func TestQuery_Summary(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.MemoryPath, nil)
	require.NoError(t, err)
	defer db.Close()

	calls := llmcall.NewStore(db)
	now := time.Now()
	for _, c := range []*llmcall.Call{
		{ID: "1", Timestamp: now, Agent: "sentiment", LatencyMs: 1000, InputTokens: 10, OutputTokens: 5, Attempts: 1, Success: true},
		{ID: "2", Timestamp: now, Agent: "sentiment", LatencyMs: 3000, InputTokens: 20, OutputTokens: 5, Attempts: 3, Success: false},
		{ID: "3", Timestamp: now, Agent: "meta_analysis", LatencyMs: 500, InputTokens: 7, OutputTokens: 3, Attempts: 1, Success: true},
	} {
		require.NoError(t, calls.Insert(ctx, c))
	}

	q := NewQuery(db)

	s, err := q.GetSummary(ctx, Filter{Agent: "sentiment"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 30, s.InputTokens)
	assert.Equal(t, 4, s.TotalAttempts)
	assert.InDelta(t, 2.0, s.AvgLatencySeconds, 0.001)

	empty, err := q.GetSummary(ctx, Filter{Agent: "none"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)

	byAgent, err := q.SummaryByAgent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, byAgent, 2)
	assert.Equal(t, 1, byAgent["meta_analysis"].Count)
	assert.Equal(t, 2, byAgent["sentiment"].Count)
}
