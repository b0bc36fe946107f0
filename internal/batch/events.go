package batch

import (
	"context"
	"sync"

	"github.com/jackzampolin/problembook/internal/jobs"
)

// Event types delivered to batch subscribers.
const (
	EventJobUpdate    = "job_update"
	EventBatchSummary = "batch_summary"
)

// Event is either one job's update or the final batch summary.
type Event struct {
	Type  string      `json:"type"`
	Job   *jobs.Event `json:"job,omitempty"`
	Batch *Status     `json:"batch,omitempty"`
}

// Subscribe streams updates of every job in the batch, in per-job order,
// followed by one batch_summary event once all jobs are terminal. The
// channel closes after the summary or when ctx ends.
func (c *Coordinator) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	c.mu.Lock()
	t, ok := c.batches[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	var streams []<-chan jobs.Event
	for _, jid := range t.handle.JobIDs {
		ch, err := c.jobs.Subscribe(ctx, jid)
		if err != nil {
			continue
		}
		streams = append(streams, ch)
	}

	out := make(chan Event)
	var wg sync.WaitGroup
	for _, ch := range streams {
		wg.Add(1)
		go func(ch <-chan jobs.Event) {
			defer wg.Done()
			for ev := range ch {
				ev := ev
				select {
				case out <- Event{Type: EventJobUpdate, Job: &ev}:
				case <-ctx.Done():
					// Drain so the job subscription is released.
					for range ch {
					}
					return
				}
			}
		}(ch)
	}

	go func() {
		defer close(out)
		defer cancel()
		wg.Wait()
		if ctx.Err() != nil {
			return
		}
		s := c.status(t)
		select {
		case out <- Event{Type: EventBatchSummary, Batch: &s}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
