// Package store persists extraction results and solutions. Records are
// addressed by the stable identifiers the extractors assign.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/solve"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// PageRecord is the stored extraction result for one page.
type PageRecord struct {
	BookID  string `json:"book_id"`
	Page    int    `json:"page"`
	Chapter int    `json:"chapter"`
	// CarryOver is a chapter heading moved from the end of this page to
	// the start of the next one.
	CarryOver string          `json:"carry_over,omitempty"`
	Result    *extract.Result `json:"result"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the persistence boundary for pages, problems, solutions and
// provider call records.
type Store interface {
	// SavePage replaces the record for (BookID, Page) and its problems.
	SavePage(ctx context.Context, rec PageRecord) error
	Page(ctx context.Context, bookID string, page int) (*PageRecord, error)
	Pages(ctx context.Context, bookID string) ([]PageRecord, error)
	Problem(ctx context.Context, id string) (*extract.Problem, error)
	// Theory returns the theory blocks of one chapter in page order.
	Theory(ctx context.Context, bookID string, chapter int) ([]extract.TheoryBlock, error)
	SaveSolution(ctx context.Context, s solve.Solution) error
	// Solutions returns a problem's solutions, oldest first.
	Solutions(ctx context.Context, problemID string) ([]solve.Solution, error)

	// SaveCall records one provider call.
	SaveCall(ctx context.Context, c llmcall.Call) error
	// Calls returns recorded calls matching f, oldest first.
	Calls(ctx context.Context, f llmcall.Filter) ([]llmcall.Call, error)
	// PruneCalls drops calls recorded before cutoff and reports how many.
	PruneCalls(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

func sortPages(pages []PageRecord) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
}

func sortSolutions(sols []solve.Solution) {
	sort.SliceStable(sols, func(i, j int) bool { return sols[i].CreatedAt.Before(sols[j].CreatedAt) })
}

// selectCalls sorts matching calls oldest first and keeps the newest
// f.Limit of them.
func selectCalls(calls []llmcall.Call, f llmcall.Filter) []llmcall.Call {
	out := make([]llmcall.Call, 0, len(calls))
	for _, c := range calls {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func chapterTheory(pages []PageRecord, chapter int) []extract.TheoryBlock {
	var out []extract.TheoryBlock
	for _, p := range pages {
		if p.Chapter != chapter || p.Result == nil {
			continue
		}
		out = append(out, p.Result.TheoryBlocks...)
	}
	return out
}
