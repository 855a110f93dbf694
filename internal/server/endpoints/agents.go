package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/agent"
	"github.com/tradepsych/insight/internal/agents"
	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/app"
	"github.com/tradepsych/insight/internal/refine"
	"github.com/tradepsych/insight/internal/svcctx"
)

// maxRequestBody bounds agent request bodies.
const maxRequestBody = 1 << 20

// ListAgentsResponse lists the available agents.
type ListAgentsResponse struct {
	Agents []agents.Info `json:"agents"`
}

// ListAgentsEndpoint handles GET /api/agents.
type ListAgentsEndpoint struct{}

func (e *ListAgentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/agents", e.handler
}

func (e *ListAgentsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List agents
//	@Description	Agents with their tool name and parameter schema
//	@Tags			agents
//	@Produce		json
//	@Success		200	{object}	ListAgentsResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/agents [get]
func (e *ListAgentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rt, ok := runtimeOrError(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ListAgentsResponse{Agents: rt.Agents.List()})
}

func (e *ListAgentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListAgentsResponse
			if err := client.Get(cmd.Context(), "/api/agents", &resp); err != nil {
				return err
			}
			if !api.Human() {
				return api.Output(resp)
			}
			for _, a := range resp.Agents {
				fmt.Printf("%-20s %s\n", a.Name, a.Tool.Description)
			}
			return nil
		},
	}
}

// ExecuteAgentEndpoint handles POST /api/agents/{name}/execute.
type ExecuteAgentEndpoint struct{}

func (e *ExecuteAgentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/agents/{name}/execute", e.handler
}

func (e *ExecuteAgentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Execute an agent
//	@Description	Runs one structured invocation. The body is the agent's params, e.g. {"journalEntry": "..."}.
//	@Description	Failed invocations return the error result with a status mapped from its error kind.
//	@Tags			agents
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string	true	"Agent name (journal_reflection, sentiment, general_analysis)"
//	@Success		200		{object}	agent.Result[json.RawMessage]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	agent.Result[json.RawMessage]
//	@Failure		502		{object}	agent.Result[json.RawMessage]
//	@Failure		503		{object}	agent.Result[json.RawMessage]
//	@Router			/api/agents/{name}/execute [post]
func (e *ExecuteAgentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}

	rt, ok := runtimeOrError(w, r)
	if !ok {
		return
	}

	res, err := rt.Execute(r.Context(), r.PathValue("name"), body)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if !res.IsSuccess() {
		writeJSON(w, res.ErrorKind.HTTPStatus(res.HTTPStatus), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *ExecuteAgentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var entry string
	cmd := &cobra.Command{
		Use:   "execute <agent>",
		Short: "Run an agent once against a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := ReadEntry(entry)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp agent.Result[json.RawMessage]
			path := "/api/agents/" + args[0] + "/execute"
			err = client.Post(cmd.Context(), path, map[string]string{"journalEntry": text}, &resp)
			if apiErr, ok := api.AsError(err); ok {
				// Failed invocations come back as a result body.
				if json.Unmarshal(apiErr.Body, &resp) != nil || resp.Kind == "" {
					return err
				}
				if oerr := api.Output(resp); oerr != nil {
					return oerr
				}
				return resp.Err()
			}
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "-", "Journal entry text, @file to read a file, or - for stdin")
	return cmd
}

// RefineAgentEndpoint handles POST /api/agents/{name}/refine.
type RefineAgentEndpoint struct{}

func (e *RefineAgentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/agents/{name}/refine", e.handler
}

func (e *RefineAgentEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Refine an agent result
//	@Description	Runs an agent repeatedly, critiquing each result and feeding the guidance back.
//	@Description	Pass previous iteration records to resume a run.
//	@Tags			agents
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string					true	"Agent name"
//	@Param			body	body		agents.RefineRequest	true	"Params, iterations and optional history"
//	@Success		200		{object}	refine.ProgressiveResult[json.RawMessage]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/agents/{name}/refine [post]
func (e *RefineAgentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req agents.RefineRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rt, ok := runtimeOrError(w, r)
	if !ok {
		return
	}

	out, err := rt.Refine(r.Context(), r.PathValue("name"), req)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (e *RefineAgentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var entry string
	var iterations int
	cmd := &cobra.Command{
		Use:   "refine <agent>",
		Short: "Progressively refine an agent's analysis of a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := ReadEntry(entry)
			if err != nil {
				return err
			}
			params, err := json.Marshal(map[string]string{"journalEntry": text})
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp refine.ProgressiveResult[json.RawMessage]
			path := "/api/agents/" + args[0] + "/refine"
			req := agents.RefineRequest{Params: params, Iterations: iterations}
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&entry, "entry", "-", "Journal entry text, @file to read a file, or - for stdin")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "Iterations to run (0 uses the server default)")
	return cmd
}

// runtimeOrError builds the request runtime, answering 503 when no
// provider can serve it.
func runtimeOrError(w http.ResponseWriter, r *http.Request) (*app.Runtime, bool) {
	rt, err := svcctx.RuntimeFrom(r.Context())
	if err != nil {
		writeAgentError(w, err)
		return nil, false
	}
	if rt == nil {
		writeError(w, http.StatusServiceUnavailable, "agent runtime not available")
		return nil, false
	}
	return rt, true
}

// writeAgentError maps agent, refinement and runtime errors to statuses.
func writeAgentError(w http.ResponseWriter, err error) {
	if re, ok := agent.AsResultError(err); ok {
		writeError(w, re.StatusCode(), err.Error())
		return
	}
	switch {
	case errors.Is(err, agents.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agents.ErrInvalidParams),
		errors.Is(err, refine.ErrHistoryTooLong),
		errors.Is(err, refine.ErrInvalidHistory),
		errors.Is(err, refine.ErrInvalidIterations):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoProvider):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ReadEntry resolves the --entry flag: literal text, @path, or - for stdin.
func ReadEntry(v string) (string, error) {
	var data []byte
	var err error
	switch {
	case v == "-":
		data, err = io.ReadAll(os.Stdin)
	case strings.HasPrefix(v, "@"):
		data, err = os.ReadFile(v[1:])
	default:
		data = []byte(v)
	}
	if err != nil {
		return "", fmt.Errorf("read entry: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("journal entry is empty")
	}
	return text, nil
}
