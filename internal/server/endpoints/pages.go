package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/store"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// pageParams reads and checks the {book} and {page} path values.
func pageParams(r *http.Request) (string, int, error) {
	book := r.PathValue("book")
	if !home.ValidBookID(book) {
		return "", 0, &batch.ValidationError{Field: "book", Message: "book id must be letters, digits, '-' or '_'"}
	}
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		return "", 0, &batch.ValidationError{Field: "page", Message: "page must be a positive integer"}
	}
	return book, page, nil
}

// GetPageEndpoint handles GET /api/pages/{book}/{page}.
type GetPageEndpoint struct{}

func (e *GetPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/pages/{book}/{page}", e.handler
}

func (e *GetPageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get page extraction
//	@Description	Problems and theory blocks extracted from one page
//	@Tags			pages
//	@Produce		json
//	@Param			book	path		string	true	"Book ID"
//	@Param			page	path		int		true	"Page number"
//	@Success		200		{object}	store.PageRecord
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pages/{book}/{page} [get]
func (e *GetPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	book, page, err := pageParams(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}
	rec, err := store.LinkedPage(r.Context(), st, book, page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (e *GetPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <book> <page>",
		Short: "Get the extraction result of a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.PageRecord
			if err := client.Get(cmd.Context(), "/api/pages/"+args[0]+"/"+args[1], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PageTextRequest carries the OCR text of a page.
type PageTextRequest struct {
	Text string `json:"text"`
}

// PageTextResponse confirms a stored page text.
type PageTextResponse struct {
	BookID string `json:"book_id"`
	Page   int    `json:"page"`
	Bytes  int    `json:"bytes"`
}

// PutPageTextEndpoint handles PUT /api/pages/{book}/{page}/text.
type PutPageTextEndpoint struct{}

func (e *PutPageTextEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/pages/{book}/{page}/text", e.handler
}

func (e *PutPageTextEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Store page text
//	@Description	Save the OCR text of a page so it can be extracted by an OCR batch.
//	@Description	Blank text is accepted for blank pages.
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			book	path		string			true	"Book ID"
//	@Param			page	path		int				true	"Page number"
//	@Param			request	body		PageTextRequest	true	"Page text"
//	@Success		200		{object}	PageTextResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pages/{book}/{page}/text [put]
func (e *PutPageTextEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	book, page, err := pageParams(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req PageTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	src := svcctx.PagesFrom(r.Context())
	if src == nil {
		writeError(w, http.StatusServiceUnavailable, "page source not initialized")
		return
	}
	if err := src.SaveText(book, page, req.Text); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PageTextResponse{BookID: book, Page: page, Bytes: len(req.Text)})
}

func (e *PutPageTextEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "put-text <book> <page> <file>",
		Short: "Upload the OCR text of a page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[2], err)
			}
			client := api.NewClient(getServerURL())
			var resp PageTextResponse
			path := "/api/pages/" + args[0] + "/" + args[1] + "/text"
			if err := client.Put(cmd.Context(), path, PageTextRequest{Text: string(data)}, &resp); err != nil {
				return err
			}
			fmt.Printf("Stored %d bytes for %s page %d\n", resp.Bytes, resp.BookID, resp.Page)
			return nil
		},
	}
}
