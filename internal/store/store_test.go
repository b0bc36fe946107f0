package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/solve"
)

func pageRecord(book string, page, chapter int, problems ...string) PageRecord {
	r := &extract.Result{Source: extract.SourceRuleBased}
	for _, n := range problems {
		r.Problems = append(r.Problems, extract.Problem{Number: n, Content: "Задача " + n + "."})
	}
	r.TheoryBlocks = []extract.TheoryBlock{{Type: extract.TheoryDefinition, Content: "def"}}
	extract.AssignIDs(r, extract.Input{BookID: book, Chapter: chapter, Page: page})
	return PageRecord{BookID: book, Page: page, Chapter: chapter, Result: r, UpdatedAt: time.Now()}
}

func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and read page", func(t *testing.T) {
		s := open(t)
		if err := s.SavePage(ctx, pageRecord("book", 3, 1, "10", "11")); err != nil {
			t.Fatalf("SavePage() error = %v", err)
		}

		rec, err := s.Page(ctx, "book", 3)
		if err != nil {
			t.Fatalf("Page() error = %v", err)
		}
		if rec.Chapter != 1 || len(rec.Result.Problems) != 2 {
			t.Errorf("Page() = %+v", rec)
		}

		p, err := s.Problem(ctx, "book:1:11")
		if err != nil {
			t.Fatalf("Problem() error = %v", err)
		}
		if p.Content != "Задача 11." {
			t.Errorf("Problem().Content = %q", p.Content)
		}

		if _, err := s.Page(ctx, "book", 4); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing page error = %v, want ErrNotFound", err)
		}
		if _, err := s.Problem(ctx, "book:1:99"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing problem error = %v, want ErrNotFound", err)
		}
	})

	t.Run("resave replaces problems", func(t *testing.T) {
		s := open(t)
		s.SavePage(ctx, pageRecord("book", 3, 1, "10", "11"))
		s.SavePage(ctx, pageRecord("book", 3, 1, "10"))

		if _, err := s.Problem(ctx, "book:1:11"); !errors.Is(err, ErrNotFound) {
			t.Errorf("stale problem still present: %v", err)
		}
		if _, err := s.Problem(ctx, "book:1:10"); err != nil {
			t.Errorf("Problem() error = %v", err)
		}
	})

	t.Run("pages and chapter theory", func(t *testing.T) {
		s := open(t)
		s.SavePage(ctx, pageRecord("book", 12, 2, "20"))
		s.SavePage(ctx, pageRecord("book", 2, 1, "1"))
		s.SavePage(ctx, pageRecord("book", 11, 2, "19"))
		s.SavePage(ctx, pageRecord("other", 1, 2, "1"))

		pages, err := s.Pages(ctx, "book")
		if err != nil {
			t.Fatalf("Pages() error = %v", err)
		}
		if len(pages) != 3 || pages[0].Page != 2 || pages[2].Page != 12 {
			t.Errorf("Pages() order = %+v", pages)
		}

		theory, err := s.Theory(ctx, "book", 2)
		if err != nil {
			t.Fatalf("Theory() error = %v", err)
		}
		if len(theory) != 2 || theory[0].ID != "book:2:T:11.1" {
			t.Errorf("Theory() = %+v", theory)
		}
	})

	t.Run("solutions", func(t *testing.T) {
		s := open(t)
		now := time.Now()
		second := solve.Solution{ID: "b:1:1:S:2", ProblemID: "b:1:1", Content: "two", CreatedAt: now}
		first := solve.Solution{ID: "b:1:1:S:1", ProblemID: "b:1:1", Content: "one", CreatedAt: now.Add(-time.Minute)}
		other := solve.Solution{ID: "b:1:10:S:1", ProblemID: "b:1:10", Content: "x", CreatedAt: now}
		for _, sol := range []solve.Solution{second, first, other} {
			if err := s.SaveSolution(ctx, sol); err != nil {
				t.Fatalf("SaveSolution() error = %v", err)
			}
		}

		sols, err := s.Solutions(ctx, "b:1:1")
		if err != nil {
			t.Fatalf("Solutions() error = %v", err)
		}
		if len(sols) != 2 || sols[0].Content != "one" || sols[1].Content != "two" {
			t.Errorf("Solutions() = %+v", sols)
		}

		none, err := s.Solutions(ctx, "b:1:2")
		if err != nil || len(none) != 0 {
			t.Errorf("Solutions(unsolved) = %v, %v", none, err)
		}
	})

	t.Run("provider calls", func(t *testing.T) {
		s := open(t)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		calls := []llmcall.Call{
			{ID: "c3", Timestamp: base.Add(3 * time.Minute), JobID: "j2", Provider: "openai", Outcome: llmcall.OutcomeSuccess},
			{ID: "c1", Timestamp: base.Add(time.Minute), JobID: "j1", Provider: "anthropic", Outcome: llmcall.OutcomeTransient},
			{ID: "c2", Timestamp: base.Add(2 * time.Minute), JobID: "j1", Provider: "anthropic", Outcome: llmcall.OutcomeSuccess},
		}
		for _, c := range calls {
			if err := s.SaveCall(ctx, c); err != nil {
				t.Fatalf("SaveCall() error = %v", err)
			}
		}

		all, err := s.Calls(ctx, llmcall.Filter{})
		if err != nil {
			t.Fatalf("Calls() error = %v", err)
		}
		if len(all) != 3 || all[0].ID != "c1" || all[2].ID != "c3" {
			t.Errorf("Calls() = %+v, want oldest first", all)
		}

		byJob, _ := s.Calls(ctx, llmcall.Filter{JobID: "j1"})
		if len(byJob) != 2 {
			t.Errorf("Calls(job j1) = %+v", byJob)
		}
		since, _ := s.Calls(ctx, llmcall.Filter{Since: base.Add(2 * time.Minute)})
		if len(since) != 2 || since[0].ID != "c2" {
			t.Errorf("Calls(since) = %+v", since)
		}
		newest, _ := s.Calls(ctx, llmcall.Filter{Provider: "anthropic", Limit: 1})
		if len(newest) != 1 || newest[0].ID != "c2" {
			t.Errorf("Calls(limit 1) = %+v", newest)
		}

		n, err := s.PruneCalls(ctx, base.Add(150*time.Second))
		if err != nil || n != 2 {
			t.Fatalf("PruneCalls() = %d, %v; want 2", n, err)
		}
		left, _ := s.Calls(ctx, llmcall.Filter{})
		if len(left) != 1 || left[0].ID != "c3" {
			t.Errorf("Calls() after prune = %+v", left)
		}
	})
}

func TestMemory(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemory()
	})
}

func TestBadger(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := OpenBadger("")
		if err != nil {
			t.Fatalf("OpenBadger() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadger_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	if err := s.SavePage(ctx, pageRecord("book", 1, 1, "1")); err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenBadger(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if _, err := s.Problem(ctx, "book:1:1"); err != nil {
		t.Errorf("Problem() after reopen error = %v", err)
	}
}
