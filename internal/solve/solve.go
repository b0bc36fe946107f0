// Package solve generates step-by-step solutions for extracted problems.
package solve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/retry"
)

// Solution is an AI-generated solution to one problem.
type Solution struct {
	ID        string    `json:"id"`
	ProblemID string    `json:"problem_id"`
	Provider  string    `json:"provider"`
	Content   string    `json:"content"`
	Formulas  []string  `json:"formulas,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SolutionID builds "{problem_id}:S:{uuid}".
func SolutionID(problemID string) string {
	return problemID + ":S:" + uuid.New().String()
}

// Request asks for a solution to one problem.
type Request struct {
	Problem extract.Problem
	// Context is relevant theory from the same chapter, if any.
	Context string
	// Provider names the provider to use; empty selects the default.
	Provider string
}

// Config configures a Solver.
type Config struct {
	Providers   *providers.Registry
	Policy      retry.Policy
	Temperature float64 // default: 0.3
	MaxTokens   int     // default: 4096
	// Recorder, when set, records every provider attempt.
	Recorder *llmcall.Recorder
	Logger   *slog.Logger
}

// Solver asks a provider for a solution under the retry policy.
type Solver struct {
	providers   *providers.Registry
	policy      retry.Policy
	temperature float64
	maxTokens   int
	recorder    *llmcall.Recorder
	logger      *slog.Logger
}

// New creates a Solver.
func New(cfg Config) *Solver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &Solver{
		providers:   cfg.Providers,
		policy:      cfg.Policy,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		recorder:    cfg.Recorder,
		logger:      logger.With("component", "solver"),
	}
}

// HasProvider reports whether name resolves to a registered provider.
// An empty name asks whether any provider is available.
func (s *Solver) HasProvider(name string) bool {
	_, err := s.providers.Resolve(name)
	return err == nil
}

// Solve produces a solution. Errors are ctx.Err(), a provider lookup
// failure, or the retry policy's *retry.ExhaustedError and
// *retry.PermanentError.
func (s *Solver) Solve(ctx context.Context, req Request) (*Solution, error) {
	caller, err := s.providers.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	caller = s.recorder.Wrap(caller, llmcall.OpSolve)

	policy := s.policy
	policy.Name = "solve/" + caller.Name()
	policy.Logger = s.logger

	preq := &providers.Request{
		Prompt:      buildPrompt(req.Problem.FullContent(), req.Context),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}
	content, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return caller.Call(ctx, preq)
	})
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	s.logger.Debug("solution generated", "problem_id", req.Problem.ID, "provider", caller.Name(), "chars", len(content))
	return &Solution{
		ID:        SolutionID(req.Problem.ID),
		ProblemID: req.Problem.ID,
		Provider:  caller.Name(),
		Content:   content,
		Formulas:  extract.Formulas(content),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func buildPrompt(problem, theory string) string {
	if strings.TrimSpace(theory) == "" {
		theory = "None provided"
	}
	return fmt.Sprintf(`Solve the following math problem step by step. Explain each step clearly.

Problem:
%s

Relevant theory/context from textbook:
%s

Requirements:
1. Provide a detailed, step-by-step solution
2. Explain the reasoning behind each step
3. Use LaTeX for all mathematical expressions ($...$ for inline, $$...$$ for display math)
4. If multiple solution methods exist, show the most straightforward one
5. State the final answer clearly at the end
6. Write the explanation in the language of the problem

Solution:`, problem, theory)
}
