package llmcall

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/providers"
)

// Sink persists recorded calls.
type Sink interface {
	SaveCall(ctx context.Context, c Call) error
}

// Recorder writes call records to a Sink. A failed write is logged and
// never fails the call being recorded.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil sink disables recording.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:   sink,
		logger: logger.With("component", "llmcall_recorder"),
		now:    time.Now,
	}
}

// Record stores c, filling in its ID and timestamp when unset. The write
// outlives cancellation of ctx so cancelled calls are recorded too.
func (r *Recorder) Record(ctx context.Context, c Call) {
	if r == nil || r.sink == nil {
		return
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = r.now().UTC()
	}
	if err := r.sink.SaveCall(context.WithoutCancel(ctx), c); err != nil {
		r.logger.Warn("failed to record provider call",
			"provider", c.Provider,
			"operation", c.Operation,
			"error", err)
	}
}

// Wrap returns a Caller that records every call made through c under op.
// The wrapper keeps c's name and default model.
func (r *Recorder) Wrap(c providers.Caller, op string) providers.Caller {
	if r == nil || r.sink == nil {
		return c
	}
	return &recordingCaller{caller: c, rec: r, op: op}
}

type recordingCaller struct {
	caller providers.Caller
	rec    *Recorder
	op     string
}

func (c *recordingCaller) Name() string { return c.caller.Name() }

func (c *recordingCaller) Model() string { return providers.ModelOf(c.caller) }

func (c *recordingCaller) Call(ctx context.Context, req *providers.Request) (string, error) {
	start := c.rec.now()
	text, err := c.caller.Call(ctx, req)

	model := req.Model
	if model == "" {
		model = providers.ModelOf(c.caller)
	}
	outcome, kind := Classify(err)
	call := Call{
		Timestamp: start.UTC(),
		LatencyMs: c.rec.now().Sub(start).Milliseconds(),
		JobID:     jobs.IDFrom(ctx),
		Operation: c.op,
		Provider:  c.caller.Name(),
		Model:     model,
		Outcome:   outcome,
		Kind:      kind,
	}
	if err != nil {
		call.Error = err.Error()
	}
	c.rec.Record(ctx, call)
	return text, err
}
