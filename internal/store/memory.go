package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/solve"
)

type pageKey struct {
	bookID string
	page   int
}

// Memory is an in-process Store.
type Memory struct {
	mu        sync.RWMutex
	pages     map[pageKey]PageRecord
	problems  map[string]extract.Problem
	solutions map[string][]solve.Solution
	calls     []llmcall.Call
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pages:     make(map[pageKey]PageRecord),
		problems:  make(map[string]extract.Problem),
		solutions: make(map[string][]solve.Solution),
	}
}

func (m *Memory) SavePage(ctx context.Context, rec PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pageKey{rec.BookID, rec.Page}
	if old, ok := m.pages[key]; ok && old.Result != nil {
		for _, p := range old.Result.Problems {
			delete(m.problems, p.ID)
		}
	}
	rec.Result = rec.Result.Clone()
	m.pages[key] = rec
	if rec.Result != nil {
		for _, p := range rec.Result.Problems {
			m.problems[p.ID] = p
		}
	}
	return nil
}

func (m *Memory) Page(ctx context.Context, bookID string, page int) (*PageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.pages[pageKey{bookID, page}]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Result = rec.Result.Clone()
	return &rec, nil
}

func (m *Memory) Pages(ctx context.Context, bookID string) ([]PageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PageRecord
	for k, rec := range m.pages {
		if k.bookID == bookID {
			rec.Result = rec.Result.Clone()
			out = append(out, rec)
		}
	}
	sortPages(out)
	return out, nil
}

func (m *Memory) Problem(ctx context.Context, id string) (*extract.Problem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.problems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) Theory(ctx context.Context, bookID string, chapter int) ([]extract.TheoryBlock, error) {
	pages, err := m.Pages(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return chapterTheory(pages, chapter), nil
}

func (m *Memory) SaveSolution(ctx context.Context, s solve.Solution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solutions[s.ProblemID] = append(m.solutions[s.ProblemID], s)
	return nil
}

func (m *Memory) Solutions(ctx context.Context, problemID string) ([]solve.Solution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]solve.Solution(nil), m.solutions[problemID]...)
	sortSolutions(out)
	return out, nil
}

func (m *Memory) SaveCall(ctx context.Context, c llmcall.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return nil
}

func (m *Memory) Calls(ctx context.Context, f llmcall.Filter) ([]llmcall.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectCalls(m.calls, f), nil
}

func (m *Memory) PruneCalls(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.calls[:0]
	for _, c := range m.calls {
		if !c.Timestamp.Before(cutoff) {
			kept = append(kept, c)
		}
	}
	n := len(m.calls) - len(kept)
	m.calls = kept
	return n, nil
}

func (m *Memory) Close() error {
	return nil
}
