// Package batch turns one batch request into independently tracked jobs
// and aggregates their outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/jobs/ocr_page"
	"github.com/jackzampolin/problembook/internal/jobs/solve_problem"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/store"
)

// ErrNotFound is returned for unknown batch IDs.
var ErrNotFound = errors.New("batch not found")

// Overall is the aggregated state of a batch.
type Overall string

const (
	OverallRunning         Overall = "running"
	OverallSucceeded       Overall = "succeeded"
	OverallPartiallyFailed Overall = "partially_failed"
	OverallFailed          Overall = "failed"
	OverallCancelled       Overall = "cancelled"
)

// Handle identifies a submitted batch. It never changes after creation.
type Handle struct {
	ID        string    `json:"batch_id"`
	Kind      jobs.Kind `json:"kind"`
	JobIDs    []string  `json:"job_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a point-in-time summary of a batch.
type Status struct {
	Handle
	Overall Overall             `json:"overall"`
	Counts  map[jobs.Status]int `json:"counts"`
	Jobs    []jobs.Record       `json:"jobs,omitempty"`
}

// Done reports whether every job of the batch is terminal.
func (s Status) Done() bool { return s.Overall != OverallRunning }

// Config configures a Coordinator.
type Config struct {
	Jobs   *jobs.Manager
	OCR    ocr_page.Deps
	Solve  solve_problem.Deps
	// DefaultSolveProvider names the provider for solve requests that do
	// not pick one. It is read on every request so config reloads apply.
	DefaultSolveProvider func() string
	Logger               *slog.Logger
}

type tracked struct {
	handle Handle
	// doneAt is set once Status first observes every job terminal.
	doneAt *time.Time
}

// Coordinator creates batches on top of a job manager. While a batch is
// tracked its jobs are held, so the manager never sweeps them first.
type Coordinator struct {
	jobs   *jobs.Manager
	ocr    ocr_page.Deps
	solve  solve_problem.Deps
	logger *slog.Logger

	defaultSolveProvider func() string

	mu      sync.Mutex
	batches map[string]*tracked
	now     func() time.Time
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OCR.Logger == nil {
		cfg.OCR.Logger = logger
	}
	if cfg.Solve.Logger == nil {
		cfg.Solve.Logger = logger
	}
	return &Coordinator{
		jobs:                 cfg.Jobs,
		ocr:                  cfg.OCR,
		solve:                cfg.Solve,
		defaultSolveProvider: cfg.DefaultSolveProvider,
		logger:               logger.With("component", "batch_coordinator"),
		batches:              make(map[string]*tracked),
		now:                  func() time.Time { return time.Now().UTC() },
	}
}

// SubmitOCR validates an OCR request and queues one job per page. An
// invalid request returns *ValidationError and creates no job.
func (c *Coordinator) SubmitOCR(ctx context.Context, req OCRRequest) (Handle, error) {
	if err := checkStruct(req); err != nil {
		return Handle{}, err
	}
	targets, err := req.expand()
	if err != nil {
		return Handle{}, err
	}
	if err := c.checkPages(req, targets); err != nil {
		return Handle{}, err
	}

	opts := ocr_page.Options{Incremental: req.Incremental, Force: req.Force}
	works := make([]jobs.Work, len(targets))
	for i, t := range targets {
		works[i] = ocr_page.New(c.ocr, t, opts)
	}
	return c.submit(ocr_page.JobType, works)
}

// checkPages rejects pages without OCR text and ranges past the end of the
// book's PDFs, when PDFs are present.
func (c *Coordinator) checkPages(req OCRRequest, targets []ocr_page.Target) error {
	if req.BookID != "" && len(req.Targets) == 0 {
		count, err := c.ocr.Pages.PageCount(req.BookID)
		switch {
		case errors.Is(err, pages.ErrNoPDF):
		case err != nil:
			return fmt.Errorf("failed to count book pages: %w", err)
		case req.EndPage > count:
			return &ValidationError{Field: "end_page", Message: fmt.Sprintf("book %s has %d pages", req.BookID, count)}
		}
	}
	for _, t := range targets {
		if !c.ocr.Pages.HasText(t.BookID, t.Page) {
			return &ValidationError{Field: "targets", Message: fmt.Sprintf("no OCR text for %s page %d", t.BookID, t.Page)}
		}
	}
	return nil
}

// SubmitSolve validates a solve request and queues one job per problem.
func (c *Coordinator) SubmitSolve(ctx context.Context, req SolveRequest) (Handle, error) {
	if len(req.ProblemIDs) > MaxSolveTargets {
		return Handle{}, capError(len(req.ProblemIDs), MaxSolveTargets)
	}
	if err := checkStruct(req); err != nil {
		return Handle{}, err
	}
	if req.Provider == "" && c.defaultSolveProvider != nil {
		req.Provider = c.defaultSolveProvider()
	}
	if !c.solve.Solver.HasProvider(req.Provider) {
		name := req.Provider
		if name == "" {
			name = "default"
		}
		return Handle{}, &ValidationError{Field: "provider", Message: fmt.Sprintf("provider %s is not available", name)}
	}
	for _, id := range req.ProblemIDs {
		if _, err := c.solve.Store.Problem(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Handle{}, &ValidationError{Field: "problem_ids", Message: fmt.Sprintf("unknown problem %s", id)}
			}
			return Handle{}, fmt.Errorf("failed to look up problem: %w", err)
		}
	}

	opts := solve_problem.Options{Provider: req.Provider, Force: req.Force}
	works := make([]jobs.Work, len(req.ProblemIDs))
	for i, id := range req.ProblemIDs {
		works[i] = solve_problem.New(c.solve, solve_problem.Target{ProblemID: id}, opts)
	}
	return c.submit(solve_problem.JobType, works)
}

// submit holds the batch before its jobs exist, so none can be swept
// between creation and tracking.
func (c *Coordinator) submit(kind jobs.Kind, works []jobs.Work) (Handle, error) {
	id := uuid.New().String()
	c.jobs.Hold(id)
	ids, err := c.jobs.SubmitAll(works, jobs.WithBatch(id))
	if err != nil {
		c.jobs.Release(id)
		return Handle{}, err
	}

	h := Handle{ID: id, Kind: kind, JobIDs: ids, CreatedAt: c.now()}
	c.mu.Lock()
	c.batches[id] = &tracked{handle: h}
	c.mu.Unlock()

	c.logger.Info("batch submitted", "batch_id", id, "kind", kind, "jobs", len(ids))
	return h, nil
}

// Status aggregates the current state of a batch's jobs.
func (c *Coordinator) Status(id string) (Status, error) {
	c.mu.Lock()
	t, ok := c.batches[id]
	c.mu.Unlock()
	if !ok {
		return Status{}, ErrNotFound
	}
	return c.status(t), nil
}

func (c *Coordinator) status(t *tracked) Status {
	s := Status{
		Handle: t.handle,
		Counts: make(map[jobs.Status]int),
		Jobs:   make([]jobs.Record, 0, len(t.handle.JobIDs)),
	}
	for _, jid := range t.handle.JobIDs {
		rec, err := c.jobs.Poll(jid)
		if err != nil {
			// Held jobs are never swept; a missing one means the manager
			// was replaced underneath us.
			c.logger.Warn("batch job missing", "batch_id", t.handle.ID, "job_id", jid)
			continue
		}
		s.Counts[rec.Status]++
		s.Jobs = append(s.Jobs, rec)
	}
	s.Overall = overall(s.Counts, len(t.handle.JobIDs))

	if s.Done() {
		c.mu.Lock()
		if t.doneAt == nil {
			now := c.now()
			t.doneAt = &now
		}
		c.mu.Unlock()
	}
	return s
}

// overall folds per-status counts into the batch state.
func overall(counts map[jobs.Status]int, total int) Overall {
	succeeded := counts[jobs.StatusSucceeded]
	failed := counts[jobs.StatusFailed]
	cancelled := counts[jobs.StatusCancelled]
	switch {
	case counts[jobs.StatusQueued]+counts[jobs.StatusRunning] > 0:
		return OverallRunning
	case succeeded == total:
		return OverallSucceeded
	case failed == total:
		return OverallFailed
	case cancelled == total:
		return OverallCancelled
	default:
		return OverallPartiallyFailed
	}
}

// List returns every tracked batch, oldest first, without job records.
func (c *Coordinator) List() []Status {
	c.mu.Lock()
	ts := make([]*tracked, 0, len(c.batches))
	for _, t := range c.batches {
		ts = append(ts, t)
	}
	c.mu.Unlock()

	sort.Slice(ts, func(i, j int) bool { return ts[i].handle.CreatedAt.Before(ts[j].handle.CreatedAt) })
	out := make([]Status, 0, len(ts))
	for _, t := range ts {
		s := c.status(t)
		s.Jobs = nil
		out = append(out, s)
	}
	return out
}

// Cancel cancels every unfinished job of a batch and returns how many
// were still active.
func (c *Coordinator) Cancel(id string) (int, error) {
	c.mu.Lock()
	_, ok := c.batches[id]
	c.mu.Unlock()
	if !ok {
		return 0, ErrNotFound
	}
	n := c.jobs.CancelBatch(id)
	c.logger.Info("batch cancelled", "batch_id", id, "active_jobs", n)
	return n, nil
}

// Sweep forgets batches that finished more than retention ago and
// releases their jobs to the manager's sweep. It returns the number of
// batches removed.
func (c *Coordinator) Sweep(retention time.Duration) int {
	c.mu.Lock()
	ts := make([]*tracked, 0, len(c.batches))
	for _, t := range c.batches {
		ts = append(ts, t)
	}
	c.mu.Unlock()

	// Refresh completion times before deciding.
	for _, t := range ts {
		c.status(t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-retention)
	n := 0
	for id, t := range c.batches {
		if t.doneAt == nil || t.doneAt.After(cutoff) {
			continue
		}
		delete(c.batches, id)
		c.jobs.Release(id)
		n++
	}
	if n > 0 {
		c.logger.Info("swept finished batches", "count", n, "remaining", len(c.batches))
	}
	return n
}
