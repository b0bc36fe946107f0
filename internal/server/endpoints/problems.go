package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// GetProblemEndpoint handles GET /api/problems/{id}.
type GetProblemEndpoint struct{}

func (e *GetProblemEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/problems/{id}", e.handler
}

func (e *GetProblemEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get an extracted problem
//	@Tags		problems
//	@Produce	json
//	@Param		id	path		string	true	"Problem ID ({book}:{chapter}:{number})"
//	@Success	200	{object}	extract.Problem
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/problems/{id} [get]
func (e *GetProblemEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}
	p, err := store.LinkedProblem(r.Context(), st, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetProblemEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an extracted problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp extract.Problem
			if err := client.Get(cmd.Context(), "/api/problems/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListSolutionsResponse is the response for listing a problem's solutions.
type ListSolutionsResponse struct {
	ProblemID string           `json:"problem_id"`
	Solutions []solve.Solution `json:"solutions"`
}

// ListSolutionsEndpoint handles GET /api/problems/{id}/solutions.
type ListSolutionsEndpoint struct{}

func (e *ListSolutionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/problems/{id}/solutions", e.handler
}

func (e *ListSolutionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List solutions of a problem
//	@Tags		problems
//	@Produce	json
//	@Param		id	path		string	true	"Problem ID"
//	@Success	200	{object}	ListSolutionsResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/problems/{id}/solutions [get]
func (e *ListSolutionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}
	id := r.PathValue("id")
	if _, err := st.Problem(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	sols, err := st.Solutions(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sols == nil {
		sols = []solve.Solution{}
	}
	writeJSON(w, http.StatusOK, ListSolutionsResponse{ProblemID: id, Solutions: sols})
}

func (e *ListSolutionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "solutions <id>",
		Short: "List solutions of a problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSolutionsResponse
			path := "/api/problems/" + url.PathEscape(args[0]) + "/solutions"
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
