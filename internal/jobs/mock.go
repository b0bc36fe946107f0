package jobs

import (
	"context"
	"sync/atomic"
	"time"
)

// MockWork is Work for tests. It advances one step per StepDelay and can
// be held at its first step until Release is called.
type MockWork struct {
	WorkKind  Kind
	Steps     int
	StepDelay time.Duration
	// Err, when set, is returned after all steps complete.
	Err error
	// Ref is returned on success.
	Ref string
	// IgnoreCancel makes Run finish normally even when cancelled.
	IgnoreCancel bool

	gate    chan struct{}
	started chan struct{}
	runs    atomic.Int32
}

// NewMockWork creates mock work with the given number of steps.
func NewMockWork(steps int) *MockWork {
	return &MockWork{
		WorkKind: KindOCRPage,
		Steps:    steps,
		started:  make(chan struct{}),
	}
}

// Blocked makes Run wait for Release before its first step.
func (w *MockWork) Blocked() *MockWork {
	w.gate = make(chan struct{})
	return w
}

// Release lets a blocked Run continue.
func (w *MockWork) Release() {
	close(w.gate)
}

// Started is closed when Run begins.
func (w *MockWork) Started() <-chan struct{} {
	return w.started
}

// Runs returns how many times Run was called.
func (w *MockWork) Runs() int {
	return int(w.runs.Load())
}

func (w *MockWork) Kind() Kind { return w.WorkKind }

func (w *MockWork) Total() int { return w.Steps }

func (w *MockWork) Run(ctx context.Context, progress Reporter) (string, error) {
	if w.runs.Add(1) == 1 {
		close(w.started)
	}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			if !w.IgnoreCancel {
				return "", ctx.Err()
			}
		}
	}
	for i := 0; i < w.Steps; i++ {
		if w.StepDelay > 0 {
			select {
			case <-time.After(w.StepDelay):
			case <-ctx.Done():
				if !w.IgnoreCancel {
					return "", ctx.Err()
				}
			}
		}
		progress.Advance(1)
	}
	if w.Err != nil {
		return "", w.Err
	}
	return w.Ref, nil
}
