// Package pages supplies OCR page text and book page counts from the home
// directory. Rendering and OCR happen upstream; this package only reads
// their output.
package pages

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/problembook/internal/home"
)

// ErrNoText is returned when a page has no OCR text on disk.
var ErrNoText = errors.New("page text not found")

// ErrNoPDF is returned when a book has no original PDFs.
var ErrNoPDF = errors.New("no original PDFs")

// Source reads page text laid out as
// {home}/data/books/{book}/pages/page_NNNN.md.
type Source struct {
	home *home.Dir
}

// NewSource creates a page source rooted at h.
func NewSource(h *home.Dir) *Source {
	return &Source{home: h}
}

// Text returns the OCR text of a page. Page numbers are 1-indexed.
func (s *Source) Text(bookID string, page int) (string, error) {
	if err := home.CheckBookID(bookID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.home.PageTextPath(bookID, page))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s page %d", ErrNoText, bookID, page)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return string(data), nil
}

// SaveText writes the OCR text of a page.
func (s *Source) SaveText(bookID string, page int, text string) error {
	if err := home.CheckBookID(bookID); err != nil {
		return err
	}
	if page < 1 {
		return fmt.Errorf("page must be positive, got %d", page)
	}
	if err := s.home.EnsurePagesDir(bookID); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}
	return os.WriteFile(s.home.PageTextPath(bookID, page), []byte(text), 0o644)
}

// HasText reports whether a page has OCR text on disk.
func (s *Source) HasText(bookID string, page int) bool {
	if !home.ValidBookID(bookID) {
		return false
	}
	_, err := os.Stat(s.home.PageTextPath(bookID, page))
	return err == nil
}

// PDFInfo describes one original PDF and the book pages it covers.
type PDFInfo struct {
	Path      string
	StartPage int // 1-indexed, cumulative across PDFs
	EndPage   int // inclusive
}

// PDFs scans the book's originals directory and assigns cumulative page
// ranges. Files named book-1.pdf, book-2.pdf, ... are ordered numerically.
func (s *Source) PDFs(bookID string) ([]PDFInfo, error) {
	if err := home.CheckBookID(bookID); err != nil {
		return nil, err
	}
	dir := s.home.OriginalsDir(bookID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoPDF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read originals directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, ErrNoPDF
	}
	paths = sortPDFsByNumber(paths)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var pdfs []PDFInfo
	next := 1
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open PDF %s: %w", p, err)
		}
		count, err := api.PageCount(f, conf)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to get page count for %s: %w", p, err)
		}
		pdfs = append(pdfs, PDFInfo{Path: p, StartPage: next, EndPage: next + count - 1})
		next += count
	}
	return pdfs, nil
}

// PageCount returns the total number of pages across a book's PDFs.
func (s *Source) PageCount(bookID string) (int, error) {
	pdfs, err := s.PDFs(bookID)
	if err != nil {
		return 0, err
	}
	return pdfs[len(pdfs)-1].EndPage, nil
}

var pdfNumberRe = regexp.MustCompile(`-(\d+)\.pdf$`)

func sortPDFsByNumber(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool {
		mi := pdfNumberRe.FindStringSubmatch(strings.ToLower(sorted[i]))
		mj := pdfNumberRe.FindStringSubmatch(strings.ToLower(sorted[j]))
		if len(mi) > 1 && len(mj) > 1 {
			var ni, nj int
			fmt.Sscanf(mi[1], "%d", &ni)
			fmt.Sscanf(mj[1], "%d", &nj)
			return ni < nj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}
