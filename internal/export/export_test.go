package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
)

func savePage(t *testing.T, st store.Store, page, chapter int, problems ...extract.Problem) {
	t.Helper()
	r := &extract.Result{Source: extract.SourceRuleBased, Problems: problems}
	extract.AssignIDs(r, extract.Input{BookID: "alg-7", Chapter: chapter, Page: page})
	rec := store.PageRecord{BookID: "alg-7", Page: page, Chapter: chapter, Result: r, UpdatedAt: time.Now()}
	if err := st.SavePage(context.Background(), rec); err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}
}

func fixture(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemory()
	savePage(t, st, 1, 1,
		extract.Problem{Number: "1", Content: "Вычислите $2 + 2$.", SubProblems: []extract.SubProblem{{Letter: "а", Content: "$x_1 * x_2$"}}},
		extract.Problem{Number: "2", Content: "Решите систему\n$x + y = 3$", ContinuesToNext: true},
	)
	savePage(t, st, 2, 1,
		extract.Problem{Content: "и $x - y = 1$.", ContinuesFromPrev: true},
		extract.Problem{Number: "3", Content: "Найдите $$\\frac{1}{2} + \\frac{1}{3}$$"},
	)
	savePage(t, st, 3, 2,
		extract.Problem{Number: "4", Content: "Докажите\tтеорему."},
	)
	err := st.SaveSolution(context.Background(), solve.Solution{
		ID: "alg-7:1:1:S:1", ProblemID: "alg-7:1:1", Provider: "mock", Content: "$4$", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         Markdown,
		"md":       Markdown,
		"Markdown": Markdown,
		"tex":      LaTeX,
		"json":     JSON,
		"html":     HTML,
		"anki":     Anki,
	}
	for in, want := range tests {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(docx) error = %v, want ErrUnknownFormat", err)
	}
	if got := Filename("alg-7", AllChapters, LaTeX); got != "alg-7_export.tex" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestCollect(t *testing.T) {
	e := New(fixture(t), nil)
	book, err := e.Collect(context.Background(), "alg-7", AllChapters)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(book.Chapters) != 2 || book.Chapters[0].Number != 1 || book.Chapters[1].Number != 2 {
		t.Fatalf("chapters = %+v", book.Chapters)
	}

	ch1 := book.Chapters[0].Problems
	if len(ch1) != 3 {
		t.Fatalf("chapter 1 problems = %+v, want the split problem once", ch1)
	}
	if ch1[1].ID != "alg-7:1:2" || ch1[1].Content != "Решите систему\n$x + y = 3$\n\nи $x - y = 1$." {
		t.Errorf("joined problem = %+v", ch1[1])
	}
	if !ch1[0].HasSolution || ch1[0].Solution.Content != "$4$" || ch1[2].HasSolution {
		t.Errorf("solutions = %+v / %+v", ch1[0], ch1[2])
	}

	one, err := e.Collect(context.Background(), "alg-7", 2)
	if err != nil || len(one.Chapters) != 1 || one.Chapters[0].Problems[0].Number != "4" {
		t.Errorf("Collect(chapter 2) = %+v, %v", one, err)
	}

	if _, err := e.Collect(context.Background(), "alg-7", 9); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing chapter error = %v, want ErrNotFound", err)
	}
	if _, err := e.Collect(context.Background(), "geo", AllChapters); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing book error = %v, want ErrNotFound", err)
	}
}

func TestExport_Formats(t *testing.T) {
	e := New(fixture(t), nil)
	ctx := context.Background()

	t.Run("markdown", func(t *testing.T) {
		out, err := e.Export(ctx, "alg-7", AllChapters, Markdown)
		if err != nil {
			t.Fatal(err)
		}
		s := string(out)
		for _, want := range []string{"# alg-7\n", "## Глава 1", "#### Задача 1", "**а).** $x_1 * x_2$", "**Решение:**\n\n$4$", "---"} {
			if !strings.Contains(s, want) {
				t.Errorf("markdown missing %q:\n%s", want, s)
			}
		}
		if strings.Contains(s, "Задача p2-1") {
			t.Error("continuation fragment exported as its own problem")
		}
	})

	t.Run("latex", func(t *testing.T) {
		out, err := e.Export(ctx, "alg-7", 1, LaTeX)
		if err != nil {
			t.Fatal(err)
		}
		s := string(out)
		for _, want := range []string{`\documentclass{article}`, `\title{alg-7 - Глава 1}`, `\section*{Глава 1}`, `\textbf{Задача 3.}`, `\[\frac{1}{2} + \frac{1}{3}\]`, `\begin{enumerate}[label=\alph*)]`, `\end{document}`} {
			if !strings.Contains(s, want) {
				t.Errorf("latex missing %q:\n%s", want, s)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := e.Export(ctx, "alg-7", AllChapters, JSON)
		if err != nil {
			t.Fatal(err)
		}
		var book Book
		if err := json.Unmarshal(out, &book); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if book.ID != "alg-7" || len(book.Chapters) != 2 {
			t.Errorf("book = %+v", book)
		}
	})

	t.Run("html", func(t *testing.T) {
		out, err := e.Export(ctx, "alg-7", AllChapters, HTML)
		if err != nil {
			t.Fatal(err)
		}
		s := string(out)
		for _, want := range []string{"<!DOCTYPE html>", "<h4>Задача 1</h4>", "$x_1 * x_2$", "<hr"} {
			if !strings.Contains(s, want) {
				t.Errorf("html missing %q:\n%s", want, s)
			}
		}
		if strings.Contains(s, "MATHSPAN") {
			t.Error("placeholder left in html")
		}
	})

	t.Run("anki", func(t *testing.T) {
		out, err := e.Export(ctx, "alg-7", AllChapters, Anki)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if lines[0] != "#separator:tab" {
			t.Errorf("header = %q", lines[0])
		}
		var notes []string
		for _, l := range lines {
			if !strings.HasPrefix(l, "#") {
				notes = append(notes, l)
			}
		}
		if len(notes) != 4 {
			t.Fatalf("notes = %d, want 4:\n%s", len(notes), out)
		}
		for _, n := range notes {
			if cols := strings.Split(n, "\t"); len(cols) != 4 {
				t.Errorf("note has %d columns: %q", len(cols), n)
			}
		}
		if !strings.Contains(notes[0], "&#36;4&#36;") || !strings.HasSuffix(notes[0], "alg_7::chapter_1") {
			t.Errorf("first note = %q", notes[0])
		}
		if !strings.Contains(notes[1], noSolution) {
			t.Errorf("unsolved note = %q", notes[1])
		}
	})
}
