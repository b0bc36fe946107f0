package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/jobs/ocr_page"
	"github.com/jackzampolin/problembook/internal/jobs/solve_problem"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/retry"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
)

type fixture struct {
	coord  *Coordinator
	jobs   *jobs.Manager
	pages  *pages.Source
	store  store.Store
	caller *providers.MockCaller
}

func newFixture(t *testing.T, withProvider bool) *fixture {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	src := pages.NewSource(h)
	st := store.NewMemory()

	reg := providers.NewRegistry()
	caller := providers.NewMockCaller()
	caller.ProviderName = providers.AnthropicName
	caller.Response = "Ответ: $x = 2$"
	if withProvider {
		reg.Register(providers.AnthropicName, caller)
	}

	m := jobs.NewManager(jobs.Config{MaxConcurrent: 2})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})

	coord := New(Config{
		Jobs: m,
		OCR: ocr_page.Deps{
			Pages:     src,
			Extractor: extract.NewHybrid(extract.HybridConfig{}),
			Store:     st,
		},
		Solve: solve_problem.Deps{
			Solver: solve.New(solve.Config{
				Providers: reg,
				Policy:    retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
			}),
			Store: st,
		},
	})
	return &fixture{coord: coord, jobs: m, pages: src, store: st, caller: caller}
}

func (f *fixture) writePages(t *testing.T, book string, texts ...string) {
	t.Helper()
	for i, text := range texts {
		if err := f.pages.SaveText(book, i+1, text); err != nil {
			t.Fatalf("SaveText() error = %v", err)
		}
	}
}

func waitDone(t *testing.T, c *Coordinator, id string) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := c.Status(id)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if s.Done() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s did not finish", id)
	return Status{}
}

func TestCoordinator_PartialFailure(t *testing.T) {
	f := newFixture(t, true)
	f.writePages(t, "geo",
		"1. Постройте треугольник.",
		"   ",
		"2. Найдите площадь.",
		"\n\n",
		"3. Докажите равенство.",
	)

	var targets []ocr_page.Target
	for p := 1; p <= 5; p++ {
		targets = append(targets, ocr_page.Target{BookID: "geo", Page: p, Chapter: 1})
	}
	h, err := f.coord.SubmitOCR(context.Background(), OCRRequest{Targets: targets})
	if err != nil {
		t.Fatalf("SubmitOCR() error = %v", err)
	}
	if len(h.JobIDs) != 5 || h.Kind != jobs.KindOCRPage {
		t.Fatalf("handle = %+v", h)
	}

	s := waitDone(t, f.coord, h.ID)
	if s.Overall != OverallPartiallyFailed {
		t.Errorf("Overall = %s, want %s", s.Overall, OverallPartiallyFailed)
	}
	if s.Counts[jobs.StatusSucceeded] != 3 || s.Counts[jobs.StatusFailed] != 2 {
		t.Errorf("Counts = %v", s.Counts)
	}
	for i, rec := range s.Jobs {
		failed := i == 1 || i == 3
		if failed && (rec.Status != jobs.StatusFailed || rec.Error.Code != extract.ReasonEmpty) {
			t.Errorf("job %d = %s %+v, want extraction_empty failure", i+1, rec.Status, rec.Error)
		}
		if !failed && rec.ResultRef != ocr_page.PageRef("geo", i+1) {
			t.Errorf("job %d result ref = %q", i+1, rec.ResultRef)
		}
	}

	for _, id := range []string{"geo:1:1", "geo:1:2", "geo:1:3"} {
		if _, err := f.store.Problem(context.Background(), id); err != nil {
			t.Errorf("Problem(%s) error = %v", id, err)
		}
	}
}

func TestCoordinator_RejectsOverCap(t *testing.T) {
	f := newFixture(t, true)

	targets := make([]ocr_page.Target, MaxOCRTargets+1)
	for i := range targets {
		targets[i] = ocr_page.Target{BookID: "geo", Page: i + 1}
	}
	_, err := f.coord.SubmitOCR(context.Background(), OCRRequest{Targets: targets})
	if !IsValidation(err) {
		t.Fatalf("SubmitOCR(101 targets) error = %v, want ValidationError", err)
	}
	if got := jobs.ErrorFrom(err).Code; got != jobs.ReasonValidation {
		t.Errorf("reason = %s", got)
	}

	_, err = f.coord.SubmitOCR(context.Background(), OCRRequest{BookID: "geo", StartPage: 1, EndPage: 101})
	if !IsValidation(err) {
		t.Errorf("SubmitOCR(range of 101) error = %v", err)
	}

	ids := make([]string, MaxSolveTargets+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("geo:1:%d", i+1)
	}
	_, err = f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: ids})
	if !IsValidation(err) {
		t.Errorf("SubmitSolve(51) error = %v", err)
	}

	if n := len(f.jobs.List(jobs.ListFilter{})); n != 0 {
		t.Errorf("rejected batches created %d jobs", n)
	}
	if n := len(f.coord.List()); n != 0 {
		t.Errorf("rejected batches tracked: %d", n)
	}
}

func TestCoordinator_Validation(t *testing.T) {
	f := newFixture(t, false)
	f.writePages(t, "geo", "1. Задача.")

	tests := []struct {
		name string
		req  OCRRequest
	}{
		{"empty", OCRRequest{}},
		{"range without book", OCRRequest{StartPage: 1, EndPage: 2}},
		{"inverted range", OCRRequest{BookID: "geo", StartPage: 3, EndPage: 2}},
		{"targets and range", OCRRequest{BookID: "geo", StartPage: 1, EndPage: 1, Targets: []ocr_page.Target{{BookID: "geo", Page: 1}}}},
		{"bad target", OCRRequest{Targets: []ocr_page.Target{{BookID: "", Page: 1}}}},
		{"page zero", OCRRequest{Targets: []ocr_page.Target{{BookID: "geo", Page: 0}}}},
		{"missing text", OCRRequest{BookID: "geo", StartPage: 1, EndPage: 2}},
		{"path in target book", OCRRequest{Targets: []ocr_page.Target{{BookID: "../../escaped", Page: 1}}}},
		{"path in range book", OCRRequest{BookID: "geo/../../x", StartPage: 1, EndPage: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.coord.SubmitOCR(context.Background(), tt.req); !IsValidation(err) {
				t.Errorf("SubmitOCR() error = %v, want ValidationError", err)
			}
		})
	}

	t.Run("no solve provider", func(t *testing.T) {
		_, err := f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: []string{"geo:1:1"}})
		if !IsValidation(err) {
			t.Errorf("SubmitSolve() error = %v, want ValidationError", err)
		}
	})
	t.Run("empty solve", func(t *testing.T) {
		_, err := f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: []string{}})
		if !IsValidation(err) {
			t.Errorf("SubmitSolve() error = %v, want ValidationError", err)
		}
	})

	if n := len(f.jobs.List(jobs.ListFilter{})); n != 0 {
		t.Errorf("invalid requests created %d jobs", n)
	}
}

func TestCoordinator_SolveBatch(t *testing.T) {
	f := newFixture(t, true)
	f.writePages(t, "alg", "1. Решите $x + 1 = 3$.\n2. Решите $2x = 4$.")

	h, err := f.coord.SubmitOCR(context.Background(), OCRRequest{BookID: "alg", StartPage: 1, EndPage: 1, Chapter: 1})
	if err != nil {
		t.Fatalf("SubmitOCR() error = %v", err)
	}
	if s := waitDone(t, f.coord, h.ID); s.Overall != OverallSucceeded {
		t.Fatalf("ocr batch = %s %v", s.Overall, s.Counts)
	}

	_, err = f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: []string{"alg:1:1", "alg:1:9"}})
	if !IsValidation(err) {
		t.Errorf("unknown problem error = %v", err)
	}

	h, err = f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: []string{"alg:1:1", "alg:1:2"}})
	if err != nil {
		t.Fatalf("SubmitSolve() error = %v", err)
	}
	s := waitDone(t, f.coord, h.ID)
	if s.Overall != OverallSucceeded {
		t.Fatalf("solve batch = %s %v", s.Overall, s.Counts)
	}
	sols, err := f.store.Solutions(context.Background(), "alg:1:2")
	if err != nil || len(sols) != 1 || sols[0].ID != s.Jobs[1].ResultRef {
		t.Errorf("Solutions() = %+v, %v", sols, err)
	}
	if s.Jobs[0].Metadata["problem_id"] != "alg:1:1" {
		t.Errorf("metadata = %v", s.Jobs[0].Metadata)
	}

	// The configured default applies when the request names no provider.
	f.coord.defaultSolveProvider = func() string { return providers.GeminiName }
	_, err = f.coord.SubmitSolve(context.Background(), SolveRequest{ProblemIDs: []string{"alg:1:1"}})
	if !IsValidation(err) {
		t.Errorf("unregistered default provider error = %v", err)
	}
}

func TestCoordinator_Subscribe(t *testing.T) {
	f := newFixture(t, true)
	f.writePages(t, "geo", "1. А.", "2. Б.", "3. В.")

	h, err := f.coord.SubmitOCR(context.Background(), OCRRequest{BookID: "geo", StartPage: 1, EndPage: 3})
	if err != nil {
		t.Fatalf("SubmitOCR() error = %v", err)
	}
	events, err := f.coord.Subscribe(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	terminal := make(map[string]bool)
	var last Event
	for ev := range events {
		if last.Type == EventBatchSummary {
			t.Fatal("event after batch summary")
		}
		last = ev
		if ev.Type == EventJobUpdate && ev.Job.Status.Terminal() {
			terminal[ev.Job.JobID] = true
		}
	}
	if len(terminal) != 3 {
		t.Errorf("terminal job updates = %d, want 3", len(terminal))
	}
	if last.Type != EventBatchSummary || last.Batch.Overall != OverallSucceeded {
		t.Errorf("last event = %+v", last)
	}

	if _, err := f.coord.Subscribe(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Subscribe(missing) error = %v", err)
	}
}

func TestCoordinator_CancelAndSweep(t *testing.T) {
	f := newFixture(t, true)
	f.writePages(t, "geo", "1. А.", "2. Б.")
	now := time.Now().UTC()
	f.coord.now = func() time.Time { return now }

	h, err := f.coord.SubmitOCR(context.Background(), OCRRequest{BookID: "geo", StartPage: 1, EndPage: 2})
	if err != nil {
		t.Fatalf("SubmitOCR() error = %v", err)
	}
	if _, err := f.coord.Cancel(h.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	waitDone(t, f.coord, h.ID)

	if n := f.jobs.Sweep(0); n != 0 {
		t.Errorf("manager swept %d held jobs", n)
	}
	if n := f.coord.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep() before retention = %d", n)
	}

	f.coord.mu.Lock()
	now = now.Add(2 * time.Hour)
	f.coord.mu.Unlock()
	if n := f.coord.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, err := f.coord.Status(h.ID); err != ErrNotFound {
		t.Errorf("Status() after sweep error = %v", err)
	}
	if n := f.jobs.Sweep(0); n != 2 {
		t.Errorf("manager swept %d released jobs, want 2", n)
	}

	if _, err := f.coord.Cancel("missing"); err != ErrNotFound {
		t.Errorf("Cancel(missing) error = %v", err)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		counts map[jobs.Status]int
		want   Overall
	}{
		{map[jobs.Status]int{jobs.StatusQueued: 1, jobs.StatusSucceeded: 2}, OverallRunning},
		{map[jobs.Status]int{jobs.StatusRunning: 1, jobs.StatusFailed: 2}, OverallRunning},
		{map[jobs.Status]int{jobs.StatusSucceeded: 3}, OverallSucceeded},
		{map[jobs.Status]int{jobs.StatusFailed: 3}, OverallFailed},
		{map[jobs.Status]int{jobs.StatusCancelled: 3}, OverallCancelled},
		{map[jobs.Status]int{jobs.StatusSucceeded: 1, jobs.StatusCancelled: 2}, OverallPartiallyFailed},
		{map[jobs.Status]int{jobs.StatusFailed: 1, jobs.StatusCancelled: 2}, OverallPartiallyFailed},
	}
	for _, tt := range tests {
		if got := overall(tt.counts, 3); got != tt.want {
			t.Errorf("overall(%v) = %s, want %s", tt.counts, got, tt.want)
		}
	}
}
