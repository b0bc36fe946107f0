package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/export"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/store"
	"github.com/jackzampolin/problembook/internal/svcctx"
	"github.com/jackzampolin/problembook/version"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status     string `json:"status"`
	JobManager string `json:"job_manager,omitempty"`
	Store      string `json:"store,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Readiness check
//	@Description	Reports whether the job manager and result store are up
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", JobManager: "ok", Store: "ok"}
	status := http.StatusOK

	if svcctx.JobManagerFrom(r.Context()) == nil {
		resp.JobManager = "not_initialized"
		status = http.StatusServiceUnavailable
	}
	if svcctx.StoreFrom(r.Context()) == nil {
		resp.Store = "not_initialized"
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			err := client.Get(cmd.Context(), "/ready", &resp)
			if err != nil && api.StatusCode(err) != http.StatusServiceUnavailable {
				return err
			}
			fmt.Printf("Status:      %s\n", resp.Status)
			fmt.Printf("Job manager: %s\n", resp.JobManager)
			fmt.Printf("Store:       %s\n", resp.Store)
			return err
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string              `json:"server"`
	Version   string              `json:"version"`
	Providers []string            `json:"providers"`
	Jobs      map[jobs.Status]int `json:"jobs"`
	Running   int                 `json:"running"`
	Batches   int                 `json:"batches"`
	// Calls summarizes provider calls over the last StatusCallWindow.
	Calls  []llmcall.ProviderSummary `json:"calls"`
	Config *ConfigSummary            `json:"config,omitempty"`
}

// StatusCallWindow bounds the provider call summary in /status.
const StatusCallWindow = time.Hour

// ConfigSummary shows the settings that shape job execution.
type ConfigSummary struct {
	File            string `json:"file,omitempty"`
	MaxConcurrent   int    `json:"max_concurrent"`
	RetentionHours  int    `json:"retention_hours"`
	CacheBackend    string `json:"cache_backend"`
	StoreBackend    string `json:"store_backend"`
	ExtractProvider string `json:"extract_provider,omitempty"`
	SolveProvider   string `json:"solve_provider,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Server status
//	@Description	Registered providers, job counts, recent provider call outcomes
//	@Description	and the active configuration
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:    "running",
		Version:   version.GitRelease,
		Providers: []string{},
		Jobs:      map[jobs.Status]int{},
		Calls:     []llmcall.ProviderSummary{},
	}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Providers = registry.List()
	}
	if jm := svcctx.JobManagerFrom(r.Context()); jm != nil {
		resp.Jobs = jm.Counts()
		resp.Running = jm.Running()
	}
	if bc := svcctx.BatchesFrom(r.Context()); bc != nil {
		resp.Batches = len(bc.List())
	}
	if st := svcctx.StoreFrom(r.Context()); st != nil {
		calls, err := st.Calls(r.Context(), llmcall.Filter{Since: time.Now().Add(-StatusCallWindow)})
		if err != nil {
			svcctx.LoggerFrom(r.Context()).Warn("failed to read provider calls", "error", err)
		} else {
			resp.Calls = llmcall.Summarize(calls)
		}
	}
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		cfg := cm.Get()
		resp.Config = &ConfigSummary{
			File:            cm.ConfigFile(),
			MaxConcurrent:   cfg.Jobs.MaxConcurrent,
			RetentionHours:  cfg.Jobs.RetentionHours,
			CacheBackend:    cfg.Cache.Backend,
			StoreBackend:    cfg.Store.Backend,
			ExtractProvider: cfg.Defaults.ExtractProvider,
			SolveProvider:   cfg.Defaults.SolveProvider,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service error onto an HTTP status and reason code.
func writeServiceError(w http.ResponseWriter, err error) {
	var coded interface{ ReasonCode() string }
	switch {
	case batch.IsValidation(err):
		errors.As(err, &coded)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: coded.ReasonCode()})
	case errors.Is(err, home.ErrInvalidBookID), errors.Is(err, export.ErrUnknownFormat):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: jobs.ReasonValidation})
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, batch.ErrNotFound),
		errors.Is(err, store.ErrNotFound), errors.Is(err, pages.ErrNoText):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: jobs.ReasonInternal})
	}
}
