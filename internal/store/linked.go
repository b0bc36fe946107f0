package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/problembook/internal/extract"
)

// LinkedPage returns the record for one page with its first problem joined
// to the last problem of the previous page. Links are computed on every
// read, so the order pages were extracted in does not matter.
func LinkedPage(ctx context.Context, st Store, bookID string, page int) (*PageRecord, error) {
	rec, err := st.Page(ctx, bookID, page)
	if err != nil {
		return nil, err
	}
	out := *rec
	out.Result = rec.Result.Clone()

	var prev *extract.Result
	if page > 1 {
		p, err := st.Page(ctx, bookID, page-1)
		switch {
		case err == nil:
			prev = p.Result
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("failed to load page %d: %w", page-1, err)
		}
	}
	extract.LinkPages(prev, out.Result)
	return &out, nil
}

// LinkPageRecords links every page in pages to the page before it. pages
// must be sorted by page number, as Store.Pages returns them. Records are
// modified in place.
func LinkPageRecords(pages []PageRecord) {
	for i := range pages {
		var prev *extract.Result
		if i > 0 && pages[i-1].Page == pages[i].Page-1 {
			prev = pages[i-1].Result
		}
		extract.LinkPages(prev, pages[i].Result)
	}
}

// LinkedProblem returns a problem with the tail carried over from the
// previous page, when it continues one.
func LinkedProblem(ctx context.Context, st Store, id string) (*extract.Problem, error) {
	p, err := st.Problem(ctx, id)
	if err != nil {
		return nil, err
	}
	bookID, _, ok := strings.Cut(id, ":")
	if !ok || p.PageNumber < 2 {
		return p, nil
	}
	rec, err := LinkedPage(ctx, st, bookID, p.PageNumber)
	if errors.Is(err, ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	for _, lp := range rec.Result.Problems {
		if lp.ID == id {
			return &lp, nil
		}
	}
	return p, nil
}
