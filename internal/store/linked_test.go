package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
)

func continuedPages(tail string) (PageRecord, PageRecord) {
	in4 := extract.Input{BookID: "alg", Chapter: 3, Page: 4}
	r4 := &extract.Result{Problems: []extract.Problem{
		{Number: "290", Content: "290. Найдите $x$."},
		{Number: "291", Content: "291. Решите\n" + tail, ContinuesToNext: true},
	}}
	extract.AssignIDs(r4, in4)

	in5 := extract.Input{BookID: "alg", Chapter: 3, Page: 5}
	r5 := &extract.Result{Problems: []extract.Problem{
		{Content: "найдите сумму корней.", ContinuesFromPrev: true},
		{Number: "292", Content: "292. Упростите."},
	}}
	extract.AssignIDs(r5, in5)

	now := time.Now()
	return PageRecord{BookID: "alg", Page: 4, Chapter: 3, Result: r4, UpdatedAt: now},
		PageRecord{BookID: "alg", Page: 5, Chapter: 3, Result: r5, UpdatedAt: now}
}

func TestLinkedPage(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	p4, p5 := continuedPages("уравнение $x^2 = 4$ и")

	// The later page is saved first.
	if err := s.SavePage(ctx, p5); err != nil {
		t.Fatal(err)
	}
	rec, err := LinkedPage(ctx, s, "alg", 5)
	if err != nil {
		t.Fatalf("LinkedPage() error = %v", err)
	}
	if rec.Result.Problems[0].PrevTail != "" {
		t.Errorf("linked without a previous page: %+v", rec.Result.Problems[0])
	}

	if err := s.SavePage(ctx, p4); err != nil {
		t.Fatal(err)
	}
	rec, err = LinkedPage(ctx, s, "alg", 5)
	if err != nil {
		t.Fatalf("LinkedPage() error = %v", err)
	}
	first := rec.Result.Problems[0]
	if first.ContinuedFrom != "alg:3:291" || first.PrevTail != "уравнение $x^2 = 4$ и" {
		t.Errorf("first = %+v", first)
	}

	// Stored records are untouched.
	stored, _ := s.Page(ctx, "alg", 5)
	if stored.Result.Problems[0].PrevTail != "" {
		t.Error("LinkedPage() modified the stored record")
	}

	// Re-extracting the previous page replaces the tail instead of adding to it.
	p4, _ = continuedPages("уравнение $x^2 = 9$ и")
	s.SavePage(ctx, p4)
	p, err := LinkedProblem(ctx, s, "alg:3:p5-1")
	if err != nil {
		t.Fatalf("LinkedProblem() error = %v", err)
	}
	want := "уравнение $x^2 = 9$ и\n\nнайдите сумму корней."
	if got := p.FullContent(); got != want {
		t.Errorf("FullContent() = %q, want %q", got, want)
	}

	other, err := LinkedProblem(ctx, s, "alg:3:292")
	if err != nil || other.PrevTail != "" {
		t.Errorf("LinkedProblem(292) = %+v, %v", other, err)
	}
}

func TestLinkPageRecords(t *testing.T) {
	p4, p5 := continuedPages("уравнение и")
	gap := p5
	gap.Page = 7

	pages := []PageRecord{p4, p5}
	LinkPageRecords(pages)
	if pages[1].Result.Problems[0].PrevTail != "уравнение и" {
		t.Errorf("adjacent pages not linked: %+v", pages[1].Result.Problems[0])
	}

	pages = []PageRecord{p4, gap}
	LinkPageRecords(pages)
	if pages[1].Result.Problems[0].PrevTail != "" {
		t.Error("pages with a gap were linked")
	}
}
