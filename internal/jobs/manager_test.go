package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, max int) *Manager {
	t.Helper()
	m := NewManager(Config{MaxConcurrent: max})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := m.Poll(id)
		if err != nil {
			t.Fatalf("Poll(%s) error = %v", id, err)
		}
		if rec.Status == want {
			return rec
		}
		if rec.Status.Terminal() {
			t.Fatalf("job %s reached %s, want %s", id, rec.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job %s to reach %s", id, want)
	return Record{}
}

func waitStarted(t *testing.T, w *MockWork) {
	t.Helper()
	select {
	case <-w.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("work never started")
	}
}

type reasonErr struct{}

func (reasonErr) Error() string      { return "bad page" }
func (reasonErr) ReasonCode() string { return "extraction_empty" }

func TestManager_SubmitRunsToSuccess(t *testing.T) {
	m := newTestManager(t, 2)
	w := NewMockWork(3)
	w.Ref = "page:book:1"

	id, err := m.Submit(w, WithBatch("b1"), WithMetadata(map[string]string{"page": "1"}))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec := waitForStatus(t, m, id, StatusSucceeded)
	if rec.Progress != (Progress{Current: 3, Total: 3}) {
		t.Errorf("Progress = %+v", rec.Progress)
	}
	if rec.ResultRef != "page:book:1" || rec.BatchID != "b1" || rec.Metadata["page"] != "1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.StartedAt == nil || rec.FinishedAt == nil || rec.Error != nil {
		t.Errorf("timestamps/error = %v %v %v", rec.StartedAt, rec.FinishedAt, rec.Error)
	}
}

type idWork struct{ got chan string }

func (w idWork) Kind() Kind { return KindSolveProblem }
func (w idWork) Total() int { return 1 }
func (w idWork) Run(ctx context.Context, progress Reporter) (string, error) {
	w.got <- IDFrom(ctx)
	return "", nil
}

func TestManager_RunContextCarriesJobID(t *testing.T) {
	m := newTestManager(t, 1)
	w := idWork{got: make(chan string, 1)}
	id, err := m.Submit(w)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case got := <-w.got:
		if got != id {
			t.Errorf("IDFrom() = %q, want %q", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("work never ran")
	}
	if got := IDFrom(context.Background()); got != "" {
		t.Errorf("IDFrom(background) = %q", got)
	}
}

func TestManager_FailureCarriesReasonCode(t *testing.T) {
	m := newTestManager(t, 1)

	w := NewMockWork(1)
	w.Err = fmt.Errorf("wrapped: %w", reasonErr{})
	id, _ := m.Submit(w)
	rec := waitForStatus(t, m, id, StatusFailed)
	if rec.Error == nil || rec.Error.Code != "extraction_empty" {
		t.Errorf("Error = %+v", rec.Error)
	}

	plain := NewMockWork(1)
	plain.Err = errors.New("boom")
	id, _ = m.Submit(plain)
	rec = waitForStatus(t, m, id, StatusFailed)
	if rec.Error.Code != ReasonInternal || rec.Error.Message != "boom" {
		t.Errorf("Error = %+v", rec.Error)
	}
}

func TestManager_ConcurrencyBoundAndFIFO(t *testing.T) {
	m := newTestManager(t, 2)

	var works []*MockWork
	var ids []string
	for i := 0; i < 5; i++ {
		w := NewMockWork(1).Blocked()
		id, err := m.Submit(w)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		works = append(works, w)
		ids = append(ids, id)
	}

	waitStarted(t, works[0])
	waitStarted(t, works[1])
	if got := m.Running(); got != 2 {
		t.Fatalf("Running() = %d, want 2", got)
	}
	for _, id := range ids[2:] {
		if rec, _ := m.Poll(id); rec.Status != StatusQueued {
			t.Errorf("job %s status = %s, want queued", id, rec.Status)
		}
	}

	// Finishing the first job admits the third, not a later one.
	works[0].Release()
	waitStarted(t, works[2])
	if rec, _ := m.Poll(ids[3]); rec.Status != StatusQueued {
		t.Errorf("job 4 status = %s, want queued", rec.Status)
	}

	for _, w := range works[1:] {
		w.Release()
	}
	for _, id := range ids {
		waitForStatus(t, m, id, StatusSucceeded)
	}
}

func TestManager_CancelQueuedNeverRuns(t *testing.T) {
	m := newTestManager(t, 1)
	blocker := NewMockWork(1).Blocked()
	m.Submit(blocker)
	waitStarted(t, blocker)

	queued := NewMockWork(1)
	id, _ := m.Submit(queued)
	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	rec, _ := m.Poll(id)
	if rec.Status != StatusCancelled || rec.StartedAt != nil || rec.Error != nil {
		t.Errorf("record = %+v", rec)
	}

	blocker.Release()
	time.Sleep(50 * time.Millisecond)
	if queued.Runs() != 0 {
		t.Error("cancelled queued job was run")
	}
	if rec, _ := m.Poll(id); rec.Status != StatusCancelled {
		t.Errorf("status changed to %s", rec.Status)
	}
}

func TestManager_CancelRunning(t *testing.T) {
	t.Run("work observes cancellation", func(t *testing.T) {
		m := newTestManager(t, 1)
		w := NewMockWork(1).Blocked()
		id, _ := m.Submit(w)
		waitStarted(t, w)

		if err := m.Cancel(id); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		rec := waitForStatus(t, m, id, StatusCancelled)
		if rec.Error != nil {
			t.Errorf("cancelled job has error %+v", rec.Error)
		}
	})

	t.Run("work that finishes anyway is still cancelled", func(t *testing.T) {
		m := newTestManager(t, 1)
		w := NewMockWork(2).Blocked()
		w.IgnoreCancel = true
		id, _ := m.Submit(w)
		waitStarted(t, w)

		m.Cancel(id)
		waitForStatus(t, m, id, StatusCancelled)
	})
}

func TestManager_TerminalIsFinal(t *testing.T) {
	m := newTestManager(t, 1)
	id, _ := m.Submit(NewMockWork(1))
	waitForStatus(t, m, id, StatusSucceeded)

	if err := m.Cancel(id); err != nil {
		t.Errorf("Cancel() on finished job error = %v", err)
	}
	if rec, _ := m.Poll(id); rec.Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", rec.Status)
	}

	if err := m.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel(missing) error = %v", err)
	}
	if _, err := m.Poll("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Poll(missing) error = %v", err)
	}
}

func TestManager_PanicFailsJob(t *testing.T) {
	m := newTestManager(t, 1)
	id, _ := m.Submit(panicWork{})
	rec := waitForStatus(t, m, id, StatusFailed)
	if rec.Error.Code != ReasonInternal {
		t.Errorf("Error = %+v", rec.Error)
	}
}

type panicWork struct{}

func (panicWork) Kind() Kind  { return KindSolveProblem }
func (panicWork) Total() int { return 1 }
func (panicWork) Run(context.Context, Reporter) (string, error) {
	panic("nil page")
}

type reportingWork struct {
	steps []int
}

func (w reportingWork) Kind() Kind  { return KindOCRPage }
func (w reportingWork) Total() int { return 3 }
func (w reportingWork) Run(ctx context.Context, p Reporter) (string, error) {
	for _, s := range w.steps {
		p.Set(s)
	}
	p.Advance(10)
	return "", nil
}

func TestManager_ProgressMonotoneAndBounded(t *testing.T) {
	m := newTestManager(t, 1)
	w := reportingWork{steps: []int{1, 0, 2, 1, 5}}

	blocker := NewMockWork(1).Blocked()
	m.Submit(blocker)
	waitStarted(t, blocker)

	id, _ := m.Submit(w)
	events, err := m.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	blocker.Release()

	last := -1
	var statuses []Status
	for ev := range events {
		if ev.Progress.Current < last {
			t.Errorf("progress went backwards: %d after %d", ev.Progress.Current, last)
		}
		if ev.Progress.Current > ev.Progress.Total {
			t.Errorf("progress %d exceeds total %d", ev.Progress.Current, ev.Progress.Total)
		}
		last = ev.Progress.Current
		if len(statuses) == 0 || statuses[len(statuses)-1] != ev.Status {
			statuses = append(statuses, ev.Status)
		}
	}
	want := []Status{StatusQueued, StatusRunning, StatusSucceeded}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Errorf("status sequence = %v, want %v", statuses, want)
	}
	if last != 3 {
		t.Errorf("final progress = %d, want 3", last)
	}
}

func TestManager_SubscribeFinishedJob(t *testing.T) {
	m := newTestManager(t, 1)
	id, _ := m.Submit(NewMockWork(1))
	waitForStatus(t, m, id, StatusSucceeded)

	events, err := m.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Status != StatusSucceeded {
		t.Errorf("events = %+v", got)
	}
	if _, err := m.Subscribe(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Subscribe(missing) error = %v", err)
	}
}

func TestManager_SubscriberDisconnectReleases(t *testing.T) {
	m := newTestManager(t, 1)
	w := NewMockWork(1).Blocked()
	id, _ := m.Submit(w)
	waitStarted(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := m.Subscribe(ctx, id)
	<-events // current state
	if m.Subscribers(id) != 1 {
		t.Fatalf("Subscribers() = %d, want 1", m.Subscribers(id))
	}

	cancel()
	for range events {
	}
	deadline := time.Now().Add(time.Second)
	for m.Subscribers(id) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Subscribers(id) != 0 {
		t.Error("subscription was not released")
	}
	w.Release()
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := newTestManager(t, 1)
	w := NewMockWork(50)
	id, _ := m.Submit(w.Blocked())
	waitStarted(t, w)

	events, _ := m.Subscribe(context.Background(), id)
	w.Release()

	// Nobody reads while the job runs to completion.
	waitForStatus(t, m, id, StatusSucceeded)

	var last Event
	n := 0
	for ev := range events {
		last = ev
		n++
	}
	if last.Status != StatusSucceeded || n < 2 {
		t.Errorf("received %d events, last = %+v", n, last)
	}
}

func TestManager_SweepHonorsHolds(t *testing.T) {
	m := newTestManager(t, 2)
	now := time.Now().UTC()
	m.now = func() time.Time { return now }

	held, _ := m.Submit(NewMockWork(1), WithBatch("held"))
	free, _ := m.Submit(NewMockWork(1))
	m.Hold("held")
	waitForStatus(t, m, held, StatusSucceeded)
	waitForStatus(t, m, free, StatusSucceeded)

	if n := m.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep() before retention = %d, want 0", n)
	}

	m.mu.Lock()
	now = now.Add(2 * time.Hour)
	m.mu.Unlock()
	if n := m.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := m.Poll(free); !errors.Is(err, ErrNotFound) {
		t.Errorf("free job not swept: %v", err)
	}
	if _, err := m.Poll(held); err != nil {
		t.Errorf("held job swept: %v", err)
	}

	m.Release("held")
	if n := m.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep() after release = %d, want 1", n)
	}
}

func TestManager_CancelBatchAndList(t *testing.T) {
	m := newTestManager(t, 1)
	blocker := NewMockWork(1).Blocked()
	m.Submit(blocker, WithBatch("b"))
	waitStarted(t, blocker)
	ids, err := m.SubmitAll([]Work{NewMockWork(1), NewMockWork(1)}, WithBatch("b"))
	if err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}

	if n := m.CancelBatch("b"); n != 3 {
		t.Errorf("CancelBatch() = %d, want 3", n)
	}
	for _, id := range ids {
		waitForStatus(t, m, id, StatusCancelled)
	}

	recs := m.List(ListFilter{BatchID: "b"})
	if len(recs) != 3 || recs[1].ID != ids[0] {
		t.Errorf("List() = %+v", recs)
	}
	if got := m.List(ListFilter{Status: StatusCancelled, Limit: 1}); len(got) != 1 {
		t.Errorf("List(limit) = %d records", len(got))
	}
}

func TestManager_ShutdownRejectsSubmit(t *testing.T) {
	m := NewManager(Config{})
	w := NewMockWork(1).Blocked()
	id, _ := m.Submit(w)
	waitStarted(t, w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if rec, _ := m.Poll(id); rec.Status != StatusCancelled {
		t.Errorf("running job status after shutdown = %s", rec.Status)
	}
	if _, err := m.Submit(NewMockWork(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after shutdown error = %v", err)
	}
}

func TestManager_ConcurrentSubmitPollCancel(t *testing.T) {
	m := newTestManager(t, 3)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := NewMockWork(2)
			w.StepDelay = time.Millisecond
			id, err := m.Submit(w)
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			m.Poll(id)
			if i%3 == 0 {
				m.Cancel(id)
			}
		}(i)
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c := m.Counts()
		if c[StatusQueued] == 0 && c[StatusRunning] == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c := m.Counts()
	if c[StatusSucceeded]+c[StatusCancelled] != 20 {
		t.Errorf("Counts() = %v", c)
	}
}
