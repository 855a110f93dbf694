package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents/journal_reflection"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/refine"
	"github.com/tradepsych/insight/internal/server/endpoints"
	"github.com/tradepsych/insight/internal/store"
)

type instantTimer struct{}

func (instantTimer) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

var reflection = map[string]any{
	"date":        "2024-03-01",
	"mood":        "neutral",
	"highlights":  []string{"waited for setups"},
	"challenges":  []string{"early exit"},
	"actionItems": []string{"trail stops"},
}

func critique(score float64) map[string]any {
	return map[string]any{
		"strengths":           []map[string]any{{"aspect": "tone", "description": "balanced"}},
		"weaknesses":          []map[string]any{{"aspect": "depth", "description": "generic", "improvementSuggestion": "cite the trade"}},
		"improvementGuidance": "Reference the specific trade.",
		"focusAreas":          []string{"specificity"},
		"qualityScore":        score,
	}
}

// newTestServer builds an initialized server whose only provider is mock.
func newTestServer(t *testing.T, mock *providers.MockClient) (*Server, *httptest.Server) {
	t.Helper()
	t.Setenv(config.EnvPrefix+"_LLM_PROVIDER", "mock")

	reg := providers.NewRegistry()
	reg.RegisterLLM("mock", mock)

	srv, err := New(Config{
		DatabasePath: store.MemoryPath,
		Providers:    reg,
		Timer:        instantTimer{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_RequiresInit(t *testing.T) {
	srv, err := New(Config{DatabasePath: store.MemoryPath})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if code := doJSON(t, "GET", ts.URL+"/health", nil, nil); code != http.StatusOK {
		t.Errorf("health status = %d, want %d", code, http.StatusOK)
	}
	if code := doJSON(t, "GET", ts.URL+"/ready", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if code := doJSON(t, "GET", ts.URL+"/api/agents", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("agents status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestServer_HealthAndStatus(t *testing.T) {
	_, ts := newTestServer(t, providers.NewMockClient())

	var ready endpoints.HealthResponse
	if code := doJSON(t, "GET", ts.URL+"/ready", nil, &ready); code != http.StatusOK {
		t.Fatalf("ready status = %d", code)
	}
	if ready.Database != "ok" {
		t.Errorf("ready.Database = %q, want ok", ready.Database)
	}

	var status endpoints.StatusResponse
	if code := doJSON(t, "GET", ts.URL+"/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Database != "healthy" {
		t.Errorf("status.Database = %q, want healthy", status.Database)
	}
	if status.Active.Provider != "mock" {
		t.Errorf("status.Active.Provider = %q, want mock", status.Active.Provider)
	}
}

func TestServer_ListAgents(t *testing.T) {
	_, ts := newTestServer(t, providers.NewMockClient())

	var resp endpoints.ListAgentsResponse
	if code := doJSON(t, "GET", ts.URL+"/api/agents", nil, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Agents) != 3 {
		t.Fatalf("got %d agents, want 3", len(resp.Agents))
	}
}

func TestServer_ExecuteAgent(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection),
	}
	_, ts := newTestServer(t, mock)

	var res agent.Result[json.RawMessage]
	code := doJSON(t, "POST", ts.URL+"/api/agents/journal-reflection/execute",
		map[string]string{"journalEntry": "Waited for my setup and took it."}, &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d, result = %+v", code, res)
	}
	if !res.IsSuccess() {
		t.Fatalf("result not successful: %+v", res)
	}
	var out journal_reflection.Result
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out.Mood != "neutral" {
		t.Errorf("Mood = %q, want neutral", out.Mood)
	}
	if !strings.Contains(res.OriginalPrompt, "Waited for my setup") {
		t.Errorf("OriginalPrompt missing entry: %q", res.OriginalPrompt)
	}
}

func TestServer_ExecuteAgentErrors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      any
		responses []providers.MockResponse
		want      int
		wantKind  agent.ErrorKind
	}{
		{
			name: "unknown agent",
			path: "/api/agents/horoscope/execute",
			body: map[string]string{"journalEntry": "x"},
			want: http.StatusNotFound,
		},
		{
			name: "missing entry",
			path: "/api/agents/sentiment/execute",
			body: map[string]string{},
			want: http.StatusBadRequest,
		},
		{
			name:      "schema violation",
			path:      "/api/agents/journal_reflection/execute",
			body:      map[string]string{"journalEntry": "x"},
			responses: []providers.MockResponse{providers.MockToolResponse(journal_reflection.ToolName, map[string]any{"mood": "calm"})},
			want:      http.StatusUnprocessableEntity,
			wantKind:  agent.ErrSchemaValidation,
		},
		{
			name:      "provider rejects request",
			path:      "/api/agents/journal_reflection/execute",
			body:      map[string]string{"journalEntry": "x"},
			responses: []providers.MockResponse{{Err: &providers.StatusError{Provider: "mock", StatusCode: 400}}},
			want:      http.StatusBadGateway,
			wantKind:  agent.ErrAPI,
		},
		{
			name:      "no function call",
			path:      "/api/agents/journal_reflection/execute",
			body:      map[string]string{"journalEntry": "x"},
			responses: []providers.MockResponse{{Content: "plain text"}},
			want:      http.StatusBadGateway,
			wantKind:  agent.ErrNoFunctionCall,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockClient()
			mock.Responses = tt.responses
			_, ts := newTestServer(t, mock)

			var res agent.Result[json.RawMessage]
			code := doJSON(t, "POST", ts.URL+tt.path, tt.body, &res)
			if code != tt.want {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.want, res)
			}
			if tt.wantKind != "" && res.ErrorKind != tt.wantKind {
				t.Errorf("ErrorKind = %q, want %q", res.ErrorKind, tt.wantKind)
			}
		})
	}
}

func TestServer_RefineAgent(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection),
		providers.MockToolResponse(refine.MetaTool().Name, critique(5)),
		providers.MockToolResponse(journal_reflection.ToolName, reflection),
		providers.MockToolResponse(refine.MetaTool().Name, critique(9)),
	}
	_, ts := newTestServer(t, mock)

	var out refine.ProgressiveResult[json.RawMessage]
	code := doJSON(t, "POST", ts.URL+"/api/agents/journal_reflection/refine", map[string]any{
		"params":     map[string]string{"journalEntry": "Chased a breakout."},
		"iterations": 2,
	}, &out)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(out.IterationResults) != 2 {
		t.Fatalf("got %d iterations, want 2", len(out.IterationResults))
	}
	if out.FinalIterationIndex != 1 {
		t.Errorf("FinalIterationIndex = %d, want 1", out.FinalIterationIndex)
	}
	if out.BestResult == nil || !out.BestResult.IsSuccess() {
		t.Errorf("BestResult = %+v, want success", out.BestResult)
	}
	if out.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestServer_RefineRejectsLongHistory(t *testing.T) {
	_, ts := newTestServer(t, providers.NewMockClient())

	prev := refine.IterationRecord[json.RawMessage]{
		Result: agent.Success[json.RawMessage](mustJSON(t, reflection), "m", "p"),
	}
	code := doJSON(t, "POST", ts.URL+"/api/agents/journal_reflection/refine", map[string]any{
		"params":     map[string]string{"journalEntry": "x"},
		"iterations": 1,
		"previous":   []any{prev, prev},
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestServer_RefineRejectsHistoryWithoutData(t *testing.T) {
	mock := providers.NewMockClient()
	_, ts := newTestServer(t, mock)

	for _, data := range []string{`null`, `{}`, `{"mood":"calm"}`} {
		prev := map[string]any{
			"index":  0,
			"result": map[string]any{"kind": "SUCCESS", "originalPrompt": "p", "data": json.RawMessage(data)},
		}
		var resp map[string]any
		code := doJSON(t, "POST", ts.URL+"/api/agents/journal_reflection/refine", map[string]any{
			"params":     map[string]string{"journalEntry": "x"},
			"iterations": 2,
			"previous":   []any{prev},
		}, &resp)
		if code != http.StatusBadRequest {
			t.Errorf("data %s: status = %d, want %d (%v)", data, code, http.StatusBadRequest, resp)
		}
	}
	if n := mock.RequestCount(); n != 0 {
		t.Errorf("provider called %d times for rejected history", n)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestServer_LLMSettings(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection),
	}
	_, ts := newTestServer(t, mock)

	var settings config.LLMSettings
	if code := doJSON(t, "GET", ts.URL+"/api/settings/llm", nil, &settings); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if settings.Model != config.DefaultLLMSettings().Model {
		t.Errorf("Model = %q, want default", settings.Model)
	}

	code := doJSON(t, "PATCH", ts.URL+"/api/settings/llm", map[string]any{"model": "gpt-4o-mini", "temperature": 0.2}, &settings)
	if code != http.StatusOK {
		t.Fatalf("patch status = %d", code)
	}
	if settings.Model != "gpt-4o-mini" || settings.Temperature != 0.2 {
		t.Errorf("settings = %+v", settings)
	}

	if code := doJSON(t, "PATCH", ts.URL+"/api/settings/llm", map[string]any{"temperature": 1.5}, nil); code != http.StatusBadRequest {
		t.Errorf("invalid patch status = %d, want %d", code, http.StatusBadRequest)
	}

	// The next invocation uses the new model without a restart.
	code = doJSON(t, "POST", ts.URL+"/api/agents/journal_reflection/execute", map[string]string{"journalEntry": "x"}, nil)
	if code != http.StatusOK {
		t.Fatalf("execute status = %d", code)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].Model != "gpt-4o-mini" {
		t.Errorf("requests = %+v, want one request for gpt-4o-mini", reqs)
	}
}

func TestServer_SettingsCRUD(t *testing.T) {
	_, ts := newTestServer(t, providers.NewMockClient())

	var list endpoints.SettingsResponse
	if code := doJSON(t, "GET", ts.URL+"/api/settings", nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if _, ok := list.Lookup(config.KeyLLMModel); !ok {
		t.Errorf("seeded key %q missing from %+v", config.KeyLLMModel, list.Settings)
	}

	var llmOnly endpoints.SettingsResponse
	doJSON(t, "GET", ts.URL+"/api/settings?prefix=llm.", nil, &llmOnly)
	for _, e := range llmOnly.Settings {
		if !strings.HasPrefix(e.Key, "llm.") {
			t.Errorf("prefix filter returned %q", e.Key)
		}
	}

	var one endpoints.SettingResponse
	code := doJSON(t, "PUT", ts.URL+"/api/settings/llm.max_retries", map[string]any{"value": 5}, &one)
	if code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}

	code = doJSON(t, "PUT", ts.URL+"/api/settings/llm.temperature", map[string]any{"value": 5}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("out-of-range temperature status = %d, want %d", code, http.StatusBadRequest)
	}

	code = doJSON(t, "DELETE", ts.URL+"/api/settings/llm.max_retries", nil, &one)
	if code != http.StatusOK {
		t.Fatalf("reset status = %d", code)
	}
	if one.Entry == nil || fmt.Sprint(one.Entry.Value) != "3" {
		t.Errorf("reset entry = %+v, want default 3", one.Entry)
	}

	if code := doJSON(t, "GET", ts.URL+"/api/settings/nope.key", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing key status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestServer_PrometheusMetrics(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Responses = []providers.MockResponse{
		providers.MockToolResponse(journal_reflection.ToolName, reflection),
	}
	_, ts := newTestServer(t, mock)

	doJSON(t, "POST", ts.URL+"/api/agents/journal_reflection/execute", map[string]string{"journalEntry": "x"}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "insight_invocations_total") {
		t.Errorf("metrics output missing insight_invocations_total")
	}
}

func TestServer_MetricsAndCallHistory(t *testing.T) {
	_, ts := newTestServer(t, providers.NewMockClient())

	var summary endpoints.MetricsSummaryResponse
	if code := doJSON(t, "GET", ts.URL+"/api/metrics/summary?by_agent=true", nil, &summary); code != http.StatusOK {
		t.Fatalf("summary status = %d", code)
	}

	var calls endpoints.LLMCallsResponse
	if code := doJSON(t, "GET", ts.URL+"/api/llmcalls?agent=sentiment&success=true", nil, &calls); code != http.StatusOK {
		t.Fatalf("llmcalls status = %d", code)
	}
	if code := doJSON(t, "GET", ts.URL+"/api/llmcalls?after=yesterday", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad after status = %d, want %d", code, http.StatusBadRequest)
	}
	if code := doJSON(t, "GET", ts.URL+"/api/llmcalls/does-not-exist", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing call status = %d, want %d", code, http.StatusNotFound)
	}

	var counts endpoints.LLMCallCountsResponse
	if code := doJSON(t, "GET", ts.URL+"/api/llmcalls/counts", nil, &counts); code != http.StatusOK {
		t.Fatalf("counts status = %d", code)
	}
}

// TestServer_ContextCancellation tests that the server properly handles context cancellation.
func TestServer_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	port := freePort(t)
	srv, err := New(Config{
		Host:         "127.0.0.1",
		Port:         port,
		DatabasePath: t.TempDir() + "/insight.db",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)
	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%s", port)
	if err := waitForServer(ctx, baseURL, 10*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	// Try to start again - should fail
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should return error")
	}

	serverCancel()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Errorf("Start() returned %v after cancellation", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("server did not respond to context cancellation")
	}
	if srv.IsRunning() {
		t.Error("server still reports running")
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	_, port, _ := net.SplitHostPort(l.Addr().String())
	return port
}

// waitForServer polls the server until it responds or timeout.
func waitForServer(ctx context.Context, baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/ready", nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %s", timeout)
}
