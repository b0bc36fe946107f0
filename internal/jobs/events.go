package jobs

import (
	"context"
	"sync"
)

// subscription buffers events for one subscriber without bounding the
// publisher: events queue in order and a pump goroutine delivers them.
type subscription struct {
	mu      sync.Mutex
	pending []Event
	done    bool
	notify  chan struct{}
	out     chan Event
}

func newSubscription() *subscription {
	return &subscription{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
	}
}

// push queues ev. final marks the last event of the job.
func (s *subscription) push(ev Event, final bool) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	if final {
		s.done = true
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump delivers queued events until the final one is delivered or ctx
// ends, then closes out.
func (s *subscription) pump(ctx context.Context, release func()) {
	defer close(s.out)
	defer release()
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		done := s.done
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if done {
			return
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe streams a job's events. The first event is the job's current
// state. The channel closes after the terminal event is delivered, or
// when ctx ends; resources are released either way.
func (m *Manager) Subscribe(ctx context.Context, id string) (<-chan Event, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	sub := newSubscription()
	terminal := e.rec.Status.Terminal()
	sub.push(eventFrom(&e.rec, m.now()), terminal)
	if !terminal {
		m.subs[id] = append(m.subs[id], sub)
	}
	m.mu.Unlock()

	go sub.pump(ctx, func() { m.unsubscribe(id, sub) })
	return sub.out, nil
}

func (m *Manager) unsubscribe(id string, sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[id]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.subs, id)
	} else {
		m.subs[id] = subs
	}
}

// Subscribers returns the number of open subscriptions for a job.
func (m *Manager) Subscribers(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[id])
}

// publishLocked fans the job's current state out to its subscribers.
// Subscribers are dropped after the terminal event.
func (m *Manager) publishLocked(e *entry) {
	subs := m.subs[e.rec.ID]
	if len(subs) == 0 {
		return
	}
	ev := eventFrom(&e.rec, m.now())
	terminal := e.rec.Status.Terminal()
	for _, s := range subs {
		s.push(ev, terminal)
	}
	if terminal {
		delete(m.subs, e.rec.ID)
	}
}
