package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/jobs/ocr_page"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// SubmitOCRBatchEndpoint handles POST /api/batches/ocr.
type SubmitOCRBatchEndpoint struct{}

func (e *SubmitOCRBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/batches/ocr", e.handler
}

func (e *SubmitOCRBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit an OCR batch
//	@Description	Extract problems and theory from a list of pages or a page range.
//	@Description	The whole batch is rejected if any target is invalid.
//	@Tags			batches
//	@Accept			json
//	@Produce		json
//	@Param			request	body		batch.OCRRequest	true	"Pages to extract"
//	@Success		202		{object}	batch.Handle
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/batches/ocr [post]
func (e *SubmitOCRBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req batch.OCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}

	handle, err := bc.SubmitOCR(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("ocr batch submitted",
		"batch_id", handle.ID, "jobs", len(handle.JobIDs))
	writeJSON(w, http.StatusAccepted, handle)
}

func (e *SubmitOCRBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req batch.OCRRequest
	var pages []int
	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Submit an OCR batch",
		Long: `Submit an OCR batch for a page range or an explicit page list.

Examples:
  problembook api batches ocr --book alg --start 1 --end 40
  problembook api batches ocr --book alg --pages 3,4,9 --chapter 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(pages) > 0 {
				for _, p := range pages {
					req.Targets = append(req.Targets, ocr_page.Target{BookID: req.BookID, Page: p, Chapter: req.Chapter})
				}
				req.BookID = ""
			}
			client := api.NewClient(getServerURL())
			var resp batch.Handle
			if err := client.Post(cmd.Context(), "/api/batches/ocr", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.BookID, "book", "", "Book ID")
	cmd.Flags().IntVar(&req.StartPage, "start", 0, "First page of the range")
	cmd.Flags().IntVar(&req.EndPage, "end", 0, "Last page of the range (inclusive)")
	cmd.Flags().IntSliceVar(&pages, "pages", nil, "Explicit page numbers instead of a range")
	cmd.Flags().IntVar(&req.Chapter, "chapter", 0, "Chapter to assume when a page has no heading")
	cmd.Flags().BoolVar(&req.Incremental, "incremental", false, "Skip pages that already have results")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Re-extract even in incremental mode")
	cmd.MarkFlagRequired("book")
	return cmd
}

// SubmitSolveBatchEndpoint handles POST /api/batches/solve.
type SubmitSolveBatchEndpoint struct{}

func (e *SubmitSolveBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/batches/solve", e.handler
}

func (e *SubmitSolveBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit a solve batch
//	@Description	Solve a list of extracted problems with one provider.
//	@Tags			batches
//	@Accept			json
//	@Produce		json
//	@Param			request	body		batch.SolveRequest	true	"Problems to solve"
//	@Success		202		{object}	batch.Handle
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/batches/solve [post]
func (e *SubmitSolveBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req batch.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}

	handle, err := bc.SubmitSolve(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("solve batch submitted",
		"batch_id", handle.ID, "jobs", len(handle.JobIDs), "provider", req.Provider)
	writeJSON(w, http.StatusAccepted, handle)
}

func (e *SubmitSolveBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req batch.SolveRequest
	cmd := &cobra.Command{
		Use:   "solve <problem-id>...",
		Short: "Submit a solve batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ProblemIDs = args
			client := api.NewClient(getServerURL())
			var resp batch.Handle
			if err := client.Post(cmd.Context(), "/api/batches/solve", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "Provider to solve with (default from config)")
	cmd.Flags().BoolVar(&req.Force, "force", false, "Solve again even if a solution exists")
	return cmd
}

// ListBatchesResponse is the response for listing batches.
type ListBatchesResponse struct {
	Batches []batch.Status `json:"batches"`
}

// ListBatchesEndpoint handles GET /api/batches.
type ListBatchesEndpoint struct{}

func (e *ListBatchesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/batches", e.handler
}

func (e *ListBatchesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List batches
//	@Tags		batches
//	@Produce	json
//	@Success	200	{object}	ListBatchesResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/batches [get]
func (e *ListBatchesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}
	writeJSON(w, http.StatusOK, ListBatchesResponse{Batches: bc.List()})
}

func (e *ListBatchesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBatchesResponse
			if err := client.Get(cmd.Context(), "/api/batches", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetBatchEndpoint handles GET /api/batches/{id}.
type GetBatchEndpoint struct{}

func (e *GetBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/batches/{id}", e.handler
}

func (e *GetBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get batch status
//	@Description	Aggregate status, per-status counts and every job record of a batch
//	@Tags			batches
//	@Produce		json
//	@Param			id	path		string	true	"Batch ID"
//	@Success		200	{object}	batch.Status
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/batches/{id} [get]
func (e *GetBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}
	st, err := bc.Status(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (e *GetBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get batch status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp batch.Status
			if err := client.Get(cmd.Context(), "/api/batches/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelResponse reports how many jobs a cancel request reached.
type CancelResponse struct {
	ID        string `json:"id"`
	Cancelled int    `json:"cancelled"`
}

// CancelBatchEndpoint handles POST /api/batches/{id}/cancel.
type CancelBatchEndpoint struct{}

func (e *CancelBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/batches/{id}/cancel", e.handler
}

func (e *CancelBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a batch
//	@Description	Cancel every job of the batch that has not finished yet
//	@Tags			batches
//	@Produce		json
//	@Param			id	path		string	true	"Batch ID"
//	@Success		200	{object}	CancelResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/batches/{id}/cancel [post]
func (e *CancelBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bc := svcctx.BatchesFrom(r.Context())
	if bc == nil {
		writeError(w, http.StatusServiceUnavailable, "batch coordinator not initialized")
		return
	}
	id := r.PathValue("id")
	n, err := bc.Cancel(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{ID: id, Cancelled: n})
}

func (e *CancelBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelResponse
			if err := client.Post(cmd.Context(), "/api/batches/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Cancelled %d job(s) in batch %s\n", resp.Cancelled, resp.ID)
			return nil
		},
	}
}
