package llmcall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/providers"
)

type memSink struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

func (s *memSink) SaveCall(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, c)
	return nil
}

func (s *memSink) all() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
		kind    providers.Kind
	}{
		{"success", nil, OutcomeSuccess, ""},
		{"rate limited", &providers.Error{Provider: "openai", Kind: providers.KindRateLimited}, OutcomeTransient, providers.KindRateLimited},
		{"wrapped server error", fmt.Errorf("attempt 2: %w", &providers.Error{Kind: providers.KindServerError}), OutcomeTransient, providers.KindServerError},
		{"auth", &providers.Error{Kind: providers.KindAuth}, OutcomePermanent, providers.KindAuth},
		{"bad output", &providers.Error{Kind: providers.KindBadOutput}, OutcomePermanent, providers.KindBadOutput},
		{"cancelled", context.Canceled, OutcomeCancelled, ""},
		{"deadline", context.DeadlineExceeded, OutcomeTransient, providers.KindTimeout},
		{"unknown", errors.New("boom"), OutcomePermanent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, kind := Classify(tt.err)
			if outcome != tt.outcome || kind != tt.kind {
				t.Errorf("Classify() = %s, %s; want %s, %s", outcome, kind, tt.outcome, tt.kind)
			}
		})
	}
}

func TestRecorder_Wrap(t *testing.T) {
	sink := &memSink{}
	rec := NewRecorder(sink, nil)
	mock := providers.NewMockCaller()
	mock.ProviderName = "anthropic"
	mock.ModelName = "claude-x"
	mock.FailWith(&providers.Error{Provider: "anthropic", Kind: providers.KindRateLimited})

	c := rec.Wrap(mock, OpExtract)
	if c.Name() != "anthropic" || providers.ModelOf(c) != "claude-x" {
		t.Fatalf("wrapper identity = %s/%s", c.Name(), providers.ModelOf(c))
	}

	ctx := jobs.WithID(context.Background(), "job-7")
	if _, err := c.Call(ctx, &providers.Request{Prompt: "p"}); err == nil {
		t.Fatal("expected scripted failure")
	}
	if _, err := c.Call(ctx, &providers.Request{Prompt: "p", Model: "claude-y"}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	calls := sink.all()
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(calls))
	}
	first, second := calls[0], calls[1]
	if first.Outcome != OutcomeTransient || first.Kind != providers.KindRateLimited || first.Error == "" {
		t.Errorf("first call = %+v", first)
	}
	if first.JobID != "job-7" || first.Operation != OpExtract || first.Provider != "anthropic" || first.Model != "claude-x" {
		t.Errorf("first call identity = %+v", first)
	}
	if second.Outcome != OutcomeSuccess || second.Model != "claude-y" || second.Error != "" {
		t.Errorf("second call = %+v", second)
	}
	if first.ID == "" || first.ID == second.ID || first.Timestamp.IsZero() {
		t.Errorf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestRecorder_RecordsCancelledCall(t *testing.T) {
	sink := &memSink{}
	rec := NewRecorder(sink, nil)
	mock := providers.NewMockCaller()
	mock.Latency = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rec.Wrap(mock, OpSolve).Call(ctx, &providers.Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Call() error = %v, want context.Canceled", err)
	}
	calls := sink.all()
	if len(calls) != 1 || calls[0].Outcome != OutcomeCancelled || calls[0].JobID != "" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRecorder_SinkFailureDoesNotFailCall(t *testing.T) {
	rec := NewRecorder(&memSink{err: errors.New("disk full")}, nil)
	out, err := rec.Wrap(providers.NewMockCaller(), OpExtract).Call(context.Background(), &providers.Request{})
	if err != nil || out == "" {
		t.Errorf("Call() = %q, %v", out, err)
	}
}

func TestRecorder_NilSinkReturnsCaller(t *testing.T) {
	mock := providers.NewMockCaller()
	if got := NewRecorder(nil, nil).Wrap(mock, OpExtract); got != providers.Caller(mock) {
		t.Errorf("Wrap() with nil sink = %T, want the caller itself", got)
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := []Call{
		{Provider: "openai", Timestamp: base, LatencyMs: 100, Outcome: OutcomeSuccess},
		{Provider: "anthropic", Timestamp: base, LatencyMs: 300, Outcome: OutcomeTransient, Error: "rate limited"},
		{Provider: "anthropic", Timestamp: base.Add(time.Minute), LatencyMs: 100, Outcome: OutcomeTransient, Error: "server error"},
		{Provider: "anthropic", Timestamp: base.Add(30 * time.Second), LatencyMs: 200, Outcome: OutcomeSuccess},
		{Provider: "openai", Timestamp: base.Add(time.Minute), LatencyMs: 50, Outcome: OutcomeCancelled},
	}

	got := Summarize(calls)
	if len(got) != 2 || got[0].Provider != "anthropic" || got[1].Provider != "openai" {
		t.Fatalf("Summarize() = %+v", got)
	}
	a := got[0]
	if a.Calls != 3 || a.Successes != 1 || a.TransientErrors != 2 || a.AvgLatencyMs != 200 {
		t.Errorf("anthropic = %+v", a)
	}
	if a.LastOutcome != OutcomeTransient || !a.LastCallAt.Equal(base.Add(time.Minute)) || a.LastError != "server error" {
		t.Errorf("anthropic last = %+v", a)
	}
	o := got[1]
	if o.Calls != 2 || o.Cancelled != 1 || o.LastOutcome != OutcomeCancelled || o.LastError != "" {
		t.Errorf("openai = %+v", o)
	}

	if len(Summarize(nil)) != 0 {
		t.Error("Summarize(nil) not empty")
	}
}
