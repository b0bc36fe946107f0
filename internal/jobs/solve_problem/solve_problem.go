// Package solve_problem asks an AI provider to solve one stored problem.
package solve_problem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
)

// JobType is the job kind this package produces.
const JobType = jobs.KindSolveProblem

// maxTheoryChars bounds the chapter theory sent along with a problem.
const maxTheoryChars = 6000

const (
	stepLoaded = iota + 1
	stepSolved
	stepSaved
	totalSteps = stepSaved
)

// Deps are the collaborators shared by all solve jobs.
type Deps struct {
	Solver *solve.Solver
	Store  store.Store
	Logger *slog.Logger
}

// Target selects one problem.
type Target struct {
	ProblemID string `json:"problem_id" validate:"required"`
}

// Options apply to every problem of a batch.
type Options struct {
	// Provider names the solve provider; empty uses the default order.
	Provider string
	// Force solves again even when a solution is stored.
	Force bool
}

// Job solves a single problem.
type Job struct {
	deps   Deps
	target Target
	opts   Options
	logger *slog.Logger
}

// New creates a job for one problem.
func New(deps Deps, target Target, opts Options) *Job {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		deps:   deps,
		target: target,
		opts:   opts,
		logger: logger.With("job_type", JobType, "problem_id", target.ProblemID),
	}
}

func (j *Job) Kind() jobs.Kind { return JobType }

func (j *Job) Total() int { return totalSteps }

// Run solves the problem and returns the solution ID. A problem that is
// already solved returns its latest solution unless Force is set.
func (j *Job) Run(ctx context.Context, progress jobs.Reporter) (string, error) {
	problem, err := store.LinkedProblem(ctx, j.deps.Store, j.target.ProblemID)
	if err != nil {
		return "", fmt.Errorf("failed to load problem %s: %w", j.target.ProblemID, err)
	}

	if !j.opts.Force {
		existing, err := j.deps.Store.Solutions(ctx, problem.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load solutions: %w", err)
		}
		if len(existing) > 0 {
			latest := existing[len(existing)-1]
			j.logger.Debug("problem already solved, skipping", "solution_id", latest.ID)
			progress.Set(totalSteps)
			return latest.ID, nil
		}
	}

	theory, err := j.theory(ctx, problem.ID)
	if err != nil {
		return "", err
	}
	progress.Set(stepLoaded)

	sol, err := j.deps.Solver.Solve(ctx, solve.Request{
		Problem:  *problem,
		Context:  theory,
		Provider: j.opts.Provider,
	})
	if err != nil {
		return "", err
	}
	progress.Set(stepSolved)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := j.deps.Store.SaveSolution(ctx, *sol); err != nil {
		return "", fmt.Errorf("failed to save solution: %w", err)
	}
	progress.Set(stepSaved)

	j.logger.Info("problem solved", "solution_id", sol.ID, "provider", sol.Provider)
	return sol.ID, nil
}

// theory collects the theory blocks of the problem's chapter.
func (j *Job) theory(ctx context.Context, problemID string) (string, error) {
	bookID, chapter, ok := splitChapter(extract.ChapterOf(problemID))
	if !ok {
		return "", nil
	}
	blocks, err := j.deps.Store.Theory(ctx, bookID, chapter)
	if err != nil {
		return "", fmt.Errorf("failed to load chapter theory: %w", err)
	}
	return formatTheory(blocks), nil
}

func splitChapter(prefix string) (string, int, bool) {
	i := strings.LastIndex(prefix, ":")
	if i <= 0 {
		return "", 0, false
	}
	chapter, err := strconv.Atoi(prefix[i+1:])
	if err != nil {
		return "", 0, false
	}
	return prefix[:i], chapter, true
}

func formatTheory(blocks []extract.TheoryBlock) string {
	var b strings.Builder
	for _, t := range blocks {
		entry := string(t.Type)
		if t.Title != "" {
			entry += ": " + t.Title
		}
		entry += "\n" + strings.TrimSpace(t.Content) + "\n\n"
		if b.Len()+len(entry) > maxTheoryChars {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}

// Metadata labels the job record with the problem it covers.
func (j *Job) Metadata() map[string]string {
	md := map[string]string{"problem_id": j.target.ProblemID}
	if j.opts.Provider != "" {
		md["provider"] = j.opts.Provider
	}
	return md
}
