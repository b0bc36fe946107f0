package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs []jobs.Record `json:"jobs"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List jobs in submission order with optional filters
//	@Tags			jobs
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"
//	@Param			kind		query		string	false	"Filter by job kind"
//	@Param			batch_id	query		string	false	"Filter by batch"
//	@Param			limit		query		int		false	"Maximum number of jobs"
//	@Success		200			{object}	ListJobsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	q := r.URL.Query()
	filter := jobs.ListFilter{
		Status:  jobs.Status(q.Get("status")),
		Kind:    jobs.Kind(q.Get("kind")),
		BatchID: q.Get("batch_id"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jm.List(filter)})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status, kind, batchID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if kind != "" {
				params.Set("kind", kind)
			}
			if batchID != "" {
				params.Set("batch_id", batchID)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/jobs"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListJobsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by job kind")
	cmd.Flags().StringVar(&batchID, "batch", "", "Filter by batch ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job by ID
//	@Description	Poll a job's status, progress and result reference
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}
	rec, err := jm.Poll(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp jobs.Record
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// JobCallsResponse lists the provider calls made by one job.
type JobCallsResponse struct {
	JobID string         `json:"job_id"`
	Calls []llmcall.Call `json:"calls"`
}

// JobCallsEndpoint handles GET /api/jobs/{id}/calls.
type JobCallsEndpoint struct{}

func (e *JobCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/calls", e.handler
}

func (e *JobCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List a job's provider calls
//	@Description	Every provider attempt the job made, oldest first, with outcome and latency
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	JobCallsResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/calls [get]
func (e *JobCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	st := svcctx.StoreFrom(r.Context())
	if jm == nil || st == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}
	id := r.PathValue("id")
	if _, err := jm.Poll(id); err != nil {
		writeServiceError(w, err)
		return
	}
	calls, err := st.Calls(r.Context(), llmcall.Filter{JobID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if calls == nil {
		calls = []llmcall.Call{}
	}
	writeJSON(w, http.StatusOK, JobCallsResponse{JobID: id, Calls: calls})
}

func (e *JobCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "calls <id>",
		Short: "List the provider calls a job made",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobCallsResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0])+"/calls", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelJobEndpoint handles POST /api/jobs/{id}/cancel.
type CancelJobEndpoint struct{}

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/cancel", e.handler
}

func (e *CancelJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a job
//	@Description	Request cancellation. Cancelling a finished job has no effect.
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/cancel [post]
func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}
	id := r.PathValue("id")
	if err := jm.Cancel(id); err != nil {
		writeServiceError(w, err)
		return
	}
	rec, err := jm.Poll(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *CancelJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp jobs.Record
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Job %s: %s\n", resp.ID, resp.Status)
			return nil
		},
	}
}
