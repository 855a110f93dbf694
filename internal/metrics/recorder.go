// Package metrics provides Prometheus instrumentation for structured
// invocations and refinement runs, and usage summaries over recorded calls.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records invocation and refinement metrics.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	invocationsTotal   *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	attempts           *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	refineRunsTotal    *prometheus.CounterVec
	refineIterations   *prometheus.HistogramVec
	qualityScore       *prometheus.HistogramVec
}

// NewRecorder registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		invocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_invocations_total",
				Help: "Structured LLM invocations by agent, provider and result status",
			},
			[]string{"agent", "provider", "status"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_tokens_total",
				Help: "Tokens used by structured invocations",
			},
			[]string{"agent", "provider", "type"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_invocation_duration_seconds",
				Help:    "Duration of structured invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent", "provider"},
		),
		attempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_execution_attempts",
				Help:    "Attempts needed per agent execution",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"agent"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_retries_total",
				Help: "Retries scheduled after a retryable failure",
			},
			[]string{"agent", "status_code"},
		),
		refineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_refine_runs_total",
				Help: "Progressive refinement runs by agent and outcome",
			},
			[]string{"agent", "outcome"},
		),
		refineIterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_refine_iterations",
				Help:    "Iterations recorded per completed refinement run",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"agent"},
		),
		qualityScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_quality_score",
				Help:    "Critique quality scores (1-10)",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
			[]string{"agent"},
		),
	}
}

// ObserveInvocation records one structured invocation.
func (r *Recorder) ObserveInvocation(agent, provider, status string, promptTokens, completionTokens int, duration time.Duration) {
	if r == nil {
		return
	}
	r.invocationsTotal.WithLabelValues(agent, provider, status).Inc()
	r.tokensTotal.WithLabelValues(agent, provider, "prompt").Add(float64(promptTokens))
	r.tokensTotal.WithLabelValues(agent, provider, "completion").Add(float64(completionTokens))
	r.invocationDuration.WithLabelValues(agent, provider).Observe(duration.Seconds())
}

// ObserveAttempts records how many attempts an agent execution used.
func (r *Recorder) ObserveAttempts(agent string, attempts int) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(agent).Observe(float64(attempts))
}

// IncRetry counts a scheduled retry. statusCode 0 means unknown.
func (r *Recorder) IncRetry(agent string, statusCode int) {
	if r == nil {
		return
	}
	r.retriesTotal.WithLabelValues(agent, strconv.Itoa(statusCode)).Inc()
}

// ObserveQualityScore records a critique score.
func (r *Recorder) ObserveQualityScore(agent string, score float64) {
	if r == nil {
		return
	}
	r.qualityScore.WithLabelValues(agent).Observe(score)
}

// ObserveRefineRun records a finished refinement run. Iterations are only
// observed for successful runs.
func (r *Recorder) ObserveRefineRun(agent string, iterations int, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.refineRunsTotal.WithLabelValues(agent, outcome).Inc()
	if err == nil {
		r.refineIterations.WithLabelValues(agent).Observe(float64(iterations))
	}
}
