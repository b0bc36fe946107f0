package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/export"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// ExportBookEndpoint handles GET /api/export/{book}.
type ExportBookEndpoint struct{}

func (e *ExportBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/export/{book}", e.handler
}

func (e *ExportBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Export a book
//	@Description	Render extracted problems and their latest solutions.
//	@Description	Problems split across pages are exported once, joined.
//	@Tags			export
//	@Produce		text/markdown,application/x-latex,application/json,text/html,text/tab-separated-values
//	@Param			book	path		string	true	"Book ID"
//	@Param			format	query		string	false	"markdown (default), latex, json, html or anki"
//	@Param			chapter	query		int		false	"Export one chapter only"
//	@Success		200		{string}	string
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/export/{book} [get]
func (e *ExportBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	book := r.PathValue("book")
	if !home.ValidBookID(book) {
		writeServiceError(w, &batch.ValidationError{Field: "book", Message: "book id must be letters, digits, '-' or '_'"})
		return
	}
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeServiceError(w, &batch.ValidationError{Field: "format", Message: err.Error()})
		return
	}
	chapter := export.AllChapters
	if v := q.Get("chapter"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(w, &batch.ValidationError{Field: "chapter", Message: "chapter must be a non-negative integer"})
			return
		}
		chapter = n
	}

	ex := svcctx.ExporterFrom(r.Context())
	if ex == nil {
		writeError(w, http.StatusServiceUnavailable, "exporter not initialized")
		return
	}
	out, err := ex.Export(r.Context(), book, chapter, format)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(book, chapter, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (e *ExportBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var format, out string
	var chapter int
	cmd := &cobra.Command{
		Use:   "book <book>",
		Short: "Export a book as markdown, latex, json, html or anki",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("format", format)
			if chapter >= 0 {
				q.Set("chapter", strconv.Itoa(chapter))
			}
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(cmd.Context(), "/api/export/"+url.PathEscape(args[0])+"?"+q.Encode())
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Export format: markdown, latex, json, html or anki")
	cmd.Flags().IntVarP(&chapter, "chapter", "c", -1, "Export one chapter only")
	cmd.Flags().StringVar(&out, "file", "", "Write to a file instead of stdout")
	return cmd
}
