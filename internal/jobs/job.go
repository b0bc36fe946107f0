package jobs

import (
	"context"
	"errors"
	"time"
)

// Kind identifies what a job does.
type Kind string

const (
	KindOCRPage      Kind = "ocr_page"
	KindSolveProblem Kind = "solve_problem"
)

// Status represents the current state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Progress counts completed steps. Current never exceeds Total and never
// decreases.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Reason codes carried by Error.Code.
const (
	ReasonValidation = "validation_error"
	ReasonInternal   = "internal_error"
)

// Error is the failure payload of a failed job.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type reasonCoder interface {
	ReasonCode() string
}

// ErrorFrom builds a job error from err. The code comes from the first
// error in the chain that has a ReasonCode method, else internal_error.
func ErrorFrom(err error) *Error {
	if err == nil {
		return nil
	}
	code := ReasonInternal
	var rc reasonCoder
	if errors.As(err, &rc) {
		code = rc.ReasonCode()
	}
	return &Error{Code: code, Message: err.Error()}
}

// Record is a point-in-time copy of a job.
type Record struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	BatchID    string            `json:"batch_id,omitempty"`
	Status     Status            `json:"status"`
	Progress   Progress          `json:"progress"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      *Error            `json:"error,omitempty"`
	ResultRef  string            `json:"result_ref,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r Record) clone() Record {
	if r.StartedAt != nil {
		t := *r.StartedAt
		r.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		r.FinishedAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	if r.Metadata != nil {
		m := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			m[k] = v
		}
		r.Metadata = m
	}
	return r
}

// Reporter lets running work publish progress. Values are clamped to the
// job's total and never move backwards.
type Reporter interface {
	// Advance adds n completed steps.
	Advance(n int)
	// Set moves progress to current if that is further along.
	Set(current int)
}

// Work is the executable part of a job.
//
// Run must honor ctx at every suspension point: before each AI call and
// during retry backoff. It returns an opaque reference to what it
// produced.
type Work interface {
	Kind() Kind
	// Total is the number of progress steps Run reports.
	Total() int
	Run(ctx context.Context, progress Reporter) (resultRef string, err error)
}

// Describer is implemented by work that labels its job record.
type Describer interface {
	Metadata() map[string]string
}

// Event is one status or progress change of a job. Events for one job are
// delivered in the order they happened.
type Event struct {
	JobID     string    `json:"job_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	Error     *Error    `json:"error,omitempty"`
	ResultRef string    `json:"result_ref,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

func eventFrom(r *Record, now time.Time) Event {
	ev := Event{
		JobID:     r.ID,
		BatchID:   r.BatchID,
		Kind:      r.Kind,
		Status:    r.Status,
		Progress:  r.Progress,
		ResultRef: r.ResultRef,
		EmittedAt: now,
	}
	if r.Error != nil {
		e := *r.Error
		ev.Error = &e
	}
	return ev
}

type idKey struct{}

// WithID returns a context carrying the ID of the job it runs.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// IDFrom returns the ID of the job running under ctx, or "".
func IDFrom(ctx context.Context) string {
	id, _ := ctx.Value(idKey{}).(string)
	return id
}
