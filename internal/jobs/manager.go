package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("job manager is shut down")
)

// DefaultMaxConcurrent is the default bound on running jobs.
const DefaultMaxConcurrent = 4

// Config configures a Manager.
type Config struct {
	// MaxConcurrent bounds simultaneously running jobs (default: 4).
	MaxConcurrent int
	Logger        *slog.Logger
}

type entry struct {
	rec             Record
	seq             uint64
	work            Work
	cancel          context.CancelFunc
	cancelRequested bool
}

// Manager owns the job table. It admits queued jobs in FIFO order while
// fewer than MaxConcurrent are running. Submit, Poll and Cancel only hold
// the table lock briefly and never wait on running work.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*entry
	queue   []string
	seq     uint64
	running int
	max     int
	holds   map[string]int
	subs    map[string][]*subscription
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates a job manager. Call Shutdown to stop it.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:   make(map[string]*entry),
		max:    max,
		holds:  make(map[string]int),
		subs:   make(map[string][]*subscription),
		ctx:    ctx,
		cancel: cancel,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With("component", "job_manager"),
	}
}

// SubmitOption customizes a submitted job.
type SubmitOption func(*Record)

// WithBatch tags the job with the batch it belongs to.
func WithBatch(batchID string) SubmitOption {
	return func(r *Record) { r.BatchID = batchID }
}

// WithMetadata attaches descriptive key/value pairs to the job.
func WithMetadata(md map[string]string) SubmitOption {
	return func(r *Record) {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			r.Metadata[k] = v
		}
	}
}

// Submit queues work and returns its job ID without waiting for it to run.
func (m *Manager) Submit(work Work, opts ...SubmitOption) (string, error) {
	ids, err := m.SubmitAll([]Work{work}, opts...)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SubmitAll queues several jobs at once. They are admitted in slice order.
func (m *Manager) SubmitAll(works []Work, opts ...SubmitOption) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(works))
	for _, w := range works {
		total := w.Total()
		if total < 1 {
			total = 1
		}
		m.seq++
		e := &entry{
			rec: Record{
				ID:        uuid.New().String(),
				Kind:      w.Kind(),
				Status:    StatusQueued,
				Progress:  Progress{Total: total},
				CreatedAt: m.now(),
			},
			seq:  m.seq,
			work: w,
		}
		for _, opt := range opts {
			opt(&e.rec)
		}
		if d, ok := w.(Describer); ok {
			WithMetadata(d.Metadata())(&e.rec)
		}
		m.jobs[e.rec.ID] = e
		m.queue = append(m.queue, e.rec.ID)
		ids = append(ids, e.rec.ID)
		m.logger.Debug("job queued", "job_id", e.rec.ID, "kind", e.rec.Kind, "batch_id", e.rec.BatchID)
	}
	m.dispatchLocked()
	return ids, nil
}

// dispatchLocked starts queued jobs while there is capacity.
func (m *Manager) dispatchLocked() {
	for m.running < m.max && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		e, ok := m.jobs[id]
		if !ok || e.rec.Status != StatusQueued {
			continue
		}
		m.startLocked(e)
	}
}

func (m *Manager) startLocked(e *entry) {
	ctx, cancel := context.WithCancel(WithID(m.ctx, e.rec.ID))
	now := m.now()
	e.cancel = cancel
	e.rec.Status = StatusRunning
	e.rec.StartedAt = &now
	m.running++
	m.publishLocked(e)

	m.wg.Add(1)
	go m.run(ctx, e)
}

func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	id := e.rec.ID
	logger := m.logger.With("job_id", id, "kind", e.rec.Kind)
	logger.Debug("job started")

	start := time.Now()
	ref, err := m.execute(ctx, e, logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	e.cancel()
	m.running--

	now := m.now()
	e.rec.FinishedAt = &now
	switch {
	case e.cancelRequested:
		e.rec.Status = StatusCancelled
		logger.Info("job cancelled", "duration", time.Since(start))
	case err != nil:
		e.rec.Status = StatusFailed
		e.rec.Error = ErrorFrom(err)
		logger.Warn("job failed", "duration", time.Since(start), "code", e.rec.Error.Code, "error", err)
	default:
		e.rec.Status = StatusSucceeded
		e.rec.ResultRef = ref
		e.rec.Progress.Current = e.rec.Progress.Total
		logger.Info("job succeeded", "duration", time.Since(start), "result_ref", ref)
	}
	m.publishLocked(e)
	m.dispatchLocked()
}

// execute runs the work, turning a panic into a job failure.
func (m *Manager) execute(ctx context.Context, e *entry, logger *slog.Logger) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return e.work.Run(ctx, &reporter{m: m, e: e})
}

// Poll returns a consistent copy of a job.
func (m *Manager) Poll(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.rec.clone(), nil
}

// Cancel stops a job. A queued job becomes Cancelled at once and never
// runs. A running job is signalled through its context and becomes
// Cancelled when its work returns. Cancelling a finished job does nothing.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	m.cancelLocked(e)
	return nil
}

func (m *Manager) cancelLocked(e *entry) {
	switch e.rec.Status {
	case StatusQueued:
		now := m.now()
		e.rec.Status = StatusCancelled
		e.rec.FinishedAt = &now
		m.logger.Info("job cancelled before start", "job_id", e.rec.ID)
		m.publishLocked(e)
	case StatusRunning:
		if !e.cancelRequested {
			e.cancelRequested = true
			e.cancel()
			m.logger.Debug("job cancellation requested", "job_id", e.rec.ID)
		}
	}
}

// CancelBatch cancels every job of a batch and returns how many were
// still active.
func (m *Manager) CancelBatch(batchID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sortedLocked() {
		if e.rec.BatchID == batchID && !e.rec.Status.Terminal() {
			m.cancelLocked(e)
			n++
		}
	}
	return n
}

// ListFilter selects jobs for List. Empty fields match everything.
type ListFilter struct {
	Status  Status
	Kind    Kind
	BatchID string
	Limit   int
}

// List returns jobs in submission order.
func (m *Manager) List(f ListFilter) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, e := range m.sortedLocked() {
		if f.Status != "" && e.rec.Status != f.Status {
			continue
		}
		if f.Kind != "" && e.rec.Kind != f.Kind {
			continue
		}
		if f.BatchID != "" && e.rec.BatchID != f.BatchID {
			continue
		}
		out = append(out, e.rec.clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

func (m *Manager) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

// Counts returns the number of jobs per status.
func (m *Manager) Counts() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int)
	for _, e := range m.jobs {
		counts[e.rec.Status]++
	}
	return counts
}

// Running returns the number of running jobs.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Hold keeps a batch's jobs out of Sweep until Release is called.
func (m *Manager) Hold(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[batchID]++
}

// Release undoes one Hold.
func (m *Manager) Release(batchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds[batchID] <= 1 {
		delete(m.holds, batchID)
		return
	}
	m.holds[batchID]--
}

// Sweep removes jobs that finished more than retention ago, skipping jobs
// of held batches. It returns the number removed.
func (m *Manager) Sweep(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-retention)
	n := 0
	for id, e := range m.jobs {
		if !e.rec.Status.Terminal() || e.rec.FinishedAt == nil || e.rec.FinishedAt.After(cutoff) {
			continue
		}
		if e.rec.BatchID != "" && m.holds[e.rec.BatchID] > 0 {
			continue
		}
		delete(m.jobs, id)
		n++
	}
	if n > 0 {
		m.logger.Info("swept finished jobs", "count", n, "remaining", len(m.jobs))
	}
	return n
}

// Shutdown stops admitting work, cancels queued and running jobs and waits
// for running work to return or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		for _, e := range m.sortedLocked() {
			m.cancelLocked(e)
		}
		m.queue = nil
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}

type reporter struct {
	m *Manager
	e *entry
}

func (r *reporter) Advance(n int) {
	if n <= 0 {
		return
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.setProgressLocked(r.e, r.e.rec.Progress.Current+n)
}

func (r *reporter) Set(current int) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.setProgressLocked(r.e, current)
}

func (m *Manager) setProgressLocked(e *entry, current int) {
	if e.rec.Status != StatusRunning {
		return
	}
	if current > e.rec.Progress.Total {
		current = e.rec.Progress.Total
	}
	if current <= e.rec.Progress.Current {
		return
	}
	e.rec.Progress.Current = current
	m.publishLocked(e)
}
