package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/svcctx"
)

// MetricsSummaryResponse is the response for summary queries. ByAgent is
// set only when by_agent=true was requested.
type MetricsSummaryResponse struct {
	metrics.Summary
	ByAgent map[string]*metrics.Summary `json:"by_agent,omitempty"`
}

// MetricsSummaryEndpoint handles GET /api/metrics/summary.
type MetricsSummaryEndpoint struct{}

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/summary", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Invocation summary
//	@Description	Aggregates recorded LLM calls: counts, tokens, attempts and latency
//	@Tags			metrics
//	@Produce		json
//	@Param			agent		query		string	false	"Filter by agent"
//	@Param			run_id		query		string	false	"Filter by refinement run ID"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			success		query		bool	false	"Filter by success"
//	@Param			after		query		string	false	"RFC3339 lower bound"
//	@Param			before		query		string	false	"RFC3339 upper bound"
//	@Param			by_agent	query		bool	false	"Also break the summary down per agent"
//	@Success		200			{object}	MetricsSummaryResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Router			/api/metrics/summary [get]
func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := svcctx.MetricsQueryFrom(r.Context())
	if query == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics query not initialized")
		return
	}

	q := r.URL.Query()
	f := metrics.Filter{
		Agent:    q.Get("agent"),
		RunID:    q.Get("run_id"),
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid success filter: %q must be true or false", v))
			return
		}
		f.Success = &b
	}
	after, err := parseTimeParam(q, "after")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if after != nil {
		f.After = *after
	}
	before, err := parseTimeParam(q, "before")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if before != nil {
		f.Before = *before
	}

	summary, err := query.GetSummary(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := MetricsSummaryResponse{Summary: *summary}

	if byAgent, _ := strconv.ParseBool(q.Get("by_agent")); byAgent {
		if resp.ByAgent, err = query.SummaryByAgent(r.Context(), f); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var agentName, runID, provider, model string
	var byAgent bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Get invocation metrics summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			params := url.Values{}
			setIf(params, "agent", agentName)
			setIf(params, "run_id", runID)
			setIf(params, "provider", provider)
			setIf(params, "model", model)
			if byAgent {
				params.Set("by_agent", "true")
			}
			path := "/api/metrics/summary"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp MetricsSummaryResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			if !api.Human() {
				return api.Output(resp)
			}

			fmt.Printf("Metrics Summary\n")
			fmt.Printf("===============\n")
			printSummary("", &resp.Summary)

			names := make([]string, 0, len(resp.ByAgent))
			for name := range resp.ByAgent {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println()
				fmt.Printf("  %s\n", name)
				printSummary("  ", resp.ByAgent[name])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Filter by agent")
	cmd.Flags().StringVar(&runID, "run-id", "", "Filter by refinement run ID")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	cmd.Flags().BoolVar(&byAgent, "by-agent", false, "Break the summary down per agent")

	return cmd
}

func printSummary(indent string, s *metrics.Summary) {
	fmt.Printf("%s  Count:         %d\n", indent, s.Count)
	fmt.Printf("%s  Success:       %d\n", indent, s.SuccessCount)
	fmt.Printf("%s  Errors:        %d\n", indent, s.ErrorCount)
	fmt.Printf("%s  Input Tokens:  %d\n", indent, s.InputTokens)
	fmt.Printf("%s  Output Tokens: %d\n", indent, s.OutputTokens)
	fmt.Printf("%s  Attempts:      %d\n", indent, s.TotalAttempts)
	fmt.Printf("%s  Avg Latency:   %.2fs\n", indent, s.AvgLatencySeconds)
}
