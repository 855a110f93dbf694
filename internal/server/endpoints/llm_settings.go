package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/svcctx"
)

// GetLLMSettingsEndpoint handles GET /api/settings/llm.
type GetLLMSettingsEndpoint struct{}

func (e *GetLLMSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings/llm", e.handler
}

func (e *GetLLMSettingsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get LLM settings
//	@Description	The model, temperature, retry and provider settings agent calls use
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	config.LLMSettings
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/settings/llm [get]
func (e *GetLLMSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	settings, err := config.LoadLLMSettings(r.Context(), svcctx.ConfigStoreFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (e *GetLLMSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "llm",
		Short: "Show LLM settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp config.LLMSettings
			if err := client.Get(cmd.Context(), "/api/settings/llm", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UpdateLLMSettingsEndpoint handles PATCH /api/settings/llm.
type UpdateLLMSettingsEndpoint struct{}

func (e *UpdateLLMSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/settings/llm", e.handler
}

func (e *UpdateLLMSettingsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update LLM settings
//	@Description	Partial update. Omitted fields keep their value. The whole result is validated before anything is saved.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		config.LLMSettingsPatch	true	"Fields to change"
//	@Success		200		{object}	config.LLMSettings
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/settings/llm [patch]
func (e *UpdateLLMSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var patch config.LLMSettingsPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	store := svcctx.ConfigStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "config store not available")
		return
	}

	settings, err := config.SaveLLMSettings(r.Context(), store, patch)
	if err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
		logger.Info("llm settings updated", "model", settings.Model, "provider", settings.Provider)
	}
	writeJSON(w, http.StatusOK, settings)
}

func (e *UpdateLLMSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		model, systemMessage, provider string
		temperature                    float64
		maxRetries, retryDelay         int
	)
	cmd := &cobra.Command{
		Use:   "set-llm",
		Short: "Update LLM settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch config.LLMSettingsPatch
			flags := cmd.Flags()
			if flags.Changed("model") {
				patch.Model = &model
			}
			if flags.Changed("temperature") {
				patch.Temperature = &temperature
			}
			if flags.Changed("max-retries") {
				patch.MaxRetries = &maxRetries
			}
			if flags.Changed("retry-delay") {
				patch.RetryDelay = &retryDelay
			}
			if flags.Changed("system-message") {
				patch.SystemMessage = &systemMessage
			}
			if flags.Changed("provider") {
				patch.Provider = &provider
			}

			client := api.NewClient(getServerURL())
			var resp config.LLMSettings
			if err := client.Patch(cmd.Context(), "/api/settings/llm", patch, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model name")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (0-1)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Retries after the first attempt")
	cmd.Flags().IntVar(&retryDelay, "retry-delay", 0, "Initial retry delay in milliseconds")
	cmd.Flags().StringVar(&systemMessage, "system-message", "", "System message override (empty clears it)")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider name")
	return cmd
}
