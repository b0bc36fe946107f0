// Package ocr_page turns one page of OCR text into stored problems and
// theory blocks.
package ocr_page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/store"
)

// JobType is the job kind this package produces.
const JobType = jobs.KindOCRPage

// Progress steps: text loaded, extracted, saved.
const (
	stepLoaded = iota + 1
	stepExtracted
	stepSaved
	totalSteps = stepSaved
)

// maxLookback bounds how many earlier pages are read to find a chapter.
const maxLookback = 200

// Deps are the collaborators shared by all OCR page jobs.
type Deps struct {
	Pages     *pages.Source
	Extractor extract.Extractor
	Store     store.Store
	Logger    *slog.Logger
}

// Target selects one page.
type Target struct {
	BookID string `json:"book_id" validate:"required,bookid"`
	Page   int    `json:"page" validate:"min=1"`
	// Chapter is used when the page text carries no chapter heading.
	Chapter int `json:"chapter,omitempty" validate:"min=0"`
}

// Options apply to every page of a batch.
type Options struct {
	// Incremental skips pages that are already stored.
	Incremental bool
	// Force re-extracts stored pages even when Incremental is set.
	Force bool
}

// PageRef is the result reference of a stored page.
func PageRef(bookID string, page int) string {
	return fmt.Sprintf("page:%s:%d", bookID, page)
}

// ParsePageRef splits a reference built by PageRef.
func ParsePageRef(ref string) (bookID string, page int, ok bool) {
	rest, found := strings.CutPrefix(ref, "page:")
	if !found {
		return "", 0, false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", 0, false
	}
	page, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:i], page, true
}

// Job extracts a single page.
type Job struct {
	deps   Deps
	target Target
	opts   Options
	logger *slog.Logger
}

// New creates a job for one page.
func New(deps Deps, target Target, opts Options) *Job {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		deps:   deps,
		target: target,
		opts:   opts,
		logger: logger.With("job_type", JobType, "book_id", target.BookID, "page", target.Page),
	}
}

func (j *Job) Kind() jobs.Kind { return JobType }

func (j *Job) Total() int { return totalSteps }

// Run loads the page text, resolves its chapter, extracts and stores it.
func (j *Job) Run(ctx context.Context, progress jobs.Reporter) (string, error) {
	t := j.target
	ref := PageRef(t.BookID, t.Page)

	if j.opts.Incremental && !j.opts.Force {
		if _, err := j.deps.Store.Page(ctx, t.BookID, t.Page); err == nil {
			j.logger.Debug("page already stored, skipping")
			progress.Set(totalSteps)
			return ref, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("failed to check stored page: %w", err)
		}
	}

	text, err := j.deps.Pages.Text(t.BookID, t.Page)
	if err != nil {
		return "", err
	}
	body, carry := extract.SplitTrailingChapterHeading(text)
	body, chapter := j.resolveChapter(body)
	progress.Set(stepLoaded)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	result, err := j.deps.Extractor.Extract(ctx, extract.Input{
		BookID:  t.BookID,
		Chapter: chapter,
		Page:    t.Page,
		Text:    body,
	})
	if err != nil {
		return "", err
	}
	progress.Set(stepExtracted)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	err = j.deps.Store.SavePage(ctx, store.PageRecord{
		BookID:    t.BookID,
		Page:      t.Page,
		Chapter:   chapter,
		CarryOver: carry,
		Result:    result,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save page: %w", err)
	}
	progress.Set(stepSaved)

	j.logger.Info("page extracted",
		"chapter", chapter,
		"source", result.Source,
		"problems", len(result.Problems),
		"theory_blocks", len(result.TheoryBlocks))
	return ref, nil
}

// resolveChapter prepends a heading carried over from the previous page
// and picks the chapter number. A heading opening the page wins over the
// target's chapter, which wins over the last heading found on earlier
// pages. Only page text is consulted, so the result does not depend on
// which pages were extracted before.
func (j *Job) resolveChapter(body string) (string, int) {
	t := j.target
	if t.Page > 1 {
		if prev, err := j.deps.Pages.Text(t.BookID, t.Page-1); err == nil {
			if _, heading := extract.SplitTrailingChapterHeading(prev); heading != "" {
				body = heading + "\n\n" + body
			}
		}
	}

	if n := extract.ChapterNumber(extract.LeadingChapterHeading(body)); n > 0 {
		return body, n
	}
	if t.Chapter > 0 {
		return body, t.Chapter
	}
	return body, j.precedingChapter()
}

// precedingChapter walks back through earlier pages' text for the most
// recent chapter heading. It stops at the first page without text.
func (j *Job) precedingChapter() int {
	t := j.target
	for p := t.Page - 1; p >= 1 && p >= t.Page-maxLookback; p-- {
		text, err := j.deps.Pages.Text(t.BookID, p)
		if err != nil {
			return 0
		}
		if n := extract.ChapterNumber(extract.LastChapterHeading(text)); n > 0 {
			return n
		}
	}
	return 0
}

// Metadata labels the job record with the page it covers.
func (j *Job) Metadata() map[string]string {
	return map[string]string{
		"book_id": j.target.BookID,
		"page":    strconv.Itoa(j.target.Page),
	}
}
