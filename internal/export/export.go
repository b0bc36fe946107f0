// Package export renders a book's extracted problems and their latest
// solutions as Markdown, LaTeX, JSON, HTML or an Anki import file.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
)

// Format is an export output format.
type Format string

const (
	Markdown Format = "markdown"
	LaTeX    Format = "latex"
	JSON     Format = "json"
	HTML     Format = "html"
	Anki     Format = "anki"
)

// AllChapters selects the whole book.
const AllChapters = -1

// ErrUnknownFormat is returned for a format name ParseFormat does not know.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a format name or its file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "latex", "tex":
		return LaTeX, nil
	case "json":
		return JSON, nil
	case "html", "htm":
		return HTML, nil
	case "anki":
		return Anki, nil
	}
	return "", fmt.Errorf("%w %q: use markdown, latex, json, html or anki", ErrUnknownFormat, s)
}

// Extension is the file extension for f.
func (f Format) Extension() string {
	switch f {
	case LaTeX:
		return "tex"
	case JSON:
		return "json"
	case HTML:
		return "html"
	case Anki:
		return "txt"
	}
	return "md"
}

// ContentType is the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case LaTeX:
		return "application/x-latex; charset=utf-8"
	case JSON:
		return "application/json"
	case HTML:
		return "text/html; charset=utf-8"
	case Anki:
		return "text/tab-separated-values; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Filename is the suggested download name.
func Filename(bookID string, chapter int, f Format) string {
	if chapter == AllChapters {
		return fmt.Sprintf("%s_export.%s", bookID, f.Extension())
	}
	return fmt.Sprintf("%s_chapter_%d_export.%s", bookID, chapter, f.Extension())
}

// Source is the subset of store.Store an Exporter reads.
type Source interface {
	Pages(ctx context.Context, bookID string) ([]store.PageRecord, error)
	Solutions(ctx context.Context, problemID string) ([]solve.Solution, error)
}

// Book is the export document.
type Book struct {
	ID       string    `json:"id"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter groups problems in page order.
type Chapter struct {
	Number   int     `json:"number"`
	Problems []Entry `json:"problems"`
}

// Entry is one problem with its latest solution. A problem split across
// pages appears once, with the text of every part.
type Entry struct {
	ID          string               `json:"id"`
	Number      string               `json:"number"`
	Content     string               `json:"content"`
	SubProblems []extract.SubProblem `json:"sub_problems,omitempty"`
	Formulas    []string             `json:"latex_formulas,omitempty"`
	PageNumber  int                  `json:"page_number,omitempty"`
	HasSolution bool                 `json:"has_solution"`
	Solution    *solve.Solution      `json:"solution,omitempty"`
}

// Exporter builds export documents from stored pages.
type Exporter struct {
	src    Source
	logger *slog.Logger
}

// New creates an exporter over src.
func New(src Source, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{src: src, logger: logger.With("component", "exporter")}
}

// Export renders one chapter, or the whole book for AllChapters. A book
// with no extracted pages, or a chapter with no problems, is
// store.ErrNotFound.
func (e *Exporter) Export(ctx context.Context, bookID string, chapter int, f Format) ([]byte, error) {
	book, err := e.Collect(ctx, bookID, chapter)
	if err != nil {
		return nil, err
	}
	out, err := Render(book, chapter, f)
	if err != nil {
		return nil, err
	}
	e.logger.Info("book exported",
		"book_id", bookID,
		"chapter", chapter,
		"format", f,
		"chapters", len(book.Chapters),
		"bytes", len(out))
	return out, nil
}

// Collect gathers the problems of one chapter, or of every chapter, with
// cross-page parts joined.
func (e *Exporter) Collect(ctx context.Context, bookID string, chapter int) (*Book, error) {
	pages, err := e.src.Pages(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("book %s: %w", bookID, store.ErrNotFound)
	}
	store.LinkPageRecords(pages)

	byNumber := make(map[int]*Chapter)
	var last *Entry
	for _, rec := range pages {
		if rec.Result == nil || (chapter != AllChapters && rec.Chapter != chapter) {
			last = nil
			continue
		}
		ch, ok := byNumber[rec.Chapter]
		if !ok {
			ch = &Chapter{Number: rec.Chapter}
			byNumber[rec.Chapter] = ch
		}
		for _, p := range rec.Result.Problems {
			if p.ContinuedFrom != "" && last != nil && last.ID == p.ContinuedFrom {
				last.Content = joinParts(last.Content, p.Content)
				last.SubProblems = append(last.SubProblems, p.SubProblems...)
				last.Formulas = append(last.Formulas, p.Formulas...)
				if last.Solution == nil {
					if err := e.attachSolution(ctx, last, p.ID); err != nil {
						return nil, err
					}
				}
				continue
			}
			entry := Entry{
				ID:          p.ID,
				Number:      p.Number,
				Content:     p.FullContent(),
				SubProblems: append([]extract.SubProblem(nil), p.SubProblems...),
				Formulas:    append([]string(nil), p.Formulas...),
				PageNumber:  p.PageNumber,
			}
			if err := e.attachSolution(ctx, &entry, p.ID); err != nil {
				return nil, err
			}
			ch.Problems = append(ch.Problems, entry)
			last = &ch.Problems[len(ch.Problems)-1]
		}
	}

	book := &Book{ID: bookID}
	for _, ch := range byNumber {
		if len(ch.Problems) > 0 {
			book.Chapters = append(book.Chapters, *ch)
		}
	}
	sort.Slice(book.Chapters, func(i, j int) bool { return book.Chapters[i].Number < book.Chapters[j].Number })
	if len(book.Chapters) == 0 {
		if chapter == AllChapters {
			return nil, fmt.Errorf("book %s has no problems: %w", bookID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("book %s chapter %d: %w", bookID, chapter, store.ErrNotFound)
	}
	return book, nil
}

func (e *Exporter) attachSolution(ctx context.Context, entry *Entry, problemID string) error {
	sols, err := e.src.Solutions(ctx, problemID)
	if err != nil {
		return fmt.Errorf("failed to load solutions for %s: %w", problemID, err)
	}
	if len(sols) == 0 {
		return nil
	}
	latest := sols[len(sols)-1]
	entry.Solution = &latest
	entry.HasSolution = true
	return nil
}

func joinParts(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
