package extract

import (
	"fmt"
	"strings"
)

// ProblemID builds the stable identifier "{book}:{chapter}:{number}".
func ProblemID(bookID string, chapter int, number string) string {
	return fmt.Sprintf("%s:%d:%s", bookID, chapter, strings.TrimSpace(number))
}

// TheoryID builds the stable identifier "{book}:{chapter}:T:{n}".
func TheoryID(bookID string, chapter int, n string) string {
	return fmt.Sprintf("%s:%d:T:%s", bookID, chapter, n)
}

// ChapterOf returns the "{book}:{chapter}" prefix of a problem or theory ID.
func ChapterOf(id string) string {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) < 2 {
		return id
	}
	return parts[0] + ":" + parts[1]
}

// AssignIDs fills in identifiers for every block of r. Blocks are numbered
// by position on the page, so re-running on the same input yields the same
// IDs. Problems without a number get "p{page}-{i}". Duplicate numbers on
// one page get a "~{n}" suffix.
func AssignIDs(r *Result, in Input) {
	seen := make(map[string]int)
	for i := range r.Problems {
		p := &r.Problems[i]
		p.Number = normalizeNumber(p.Number)
		if p.Number == "" {
			p.Number = fmt.Sprintf("p%d-%d", in.Page, i+1)
		}
		if p.PageNumber == 0 {
			p.PageNumber = in.Page
		}
		id := ProblemID(in.BookID, in.Chapter, p.Number)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s~%d", id, n)
		}
		p.ID = id
	}
	for i := range r.TheoryBlocks {
		t := &r.TheoryBlocks[i]
		if t.PageNumber == 0 {
			t.PageNumber = in.Page
		}
		n := fmt.Sprint(i + 1)
		if in.Page > 0 {
			n = fmt.Sprintf("%d.%d", in.Page, i+1)
		}
		t.ID = TheoryID(in.BookID, in.Chapter, n)
	}
}

func normalizeNumber(n string) string {
	n = strings.TrimSpace(n)
	n = strings.TrimLeft(n, "№#")
	n = strings.TrimRight(n, ".):")
	return strings.TrimSpace(n)
}
