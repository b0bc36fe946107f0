// Package llmcall records every provider call with its outcome and latency,
// so a failing provider can be told apart from bad input.
package llmcall

import (
	"context"
	"errors"
	"time"

	"github.com/jackzampolin/problembook/internal/providers"
)

// Outcome classifies how a single provider call ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient_error"
	OutcomePermanent Outcome = "permanent_error"
	OutcomeCancelled Outcome = "cancelled"
)

// Operation names what a call was made for.
const (
	OpExtract = "extract"
	OpSolve   = "solve"
)

// Call is one recorded provider call. Retries are separate calls.
type Call struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int64     `json:"latency_ms"`

	// JobID is the job the call ran under, if any.
	JobID     string `json:"job_id,omitempty"`
	Operation string `json:"operation"`

	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`

	Outcome Outcome `json:"outcome"`
	// Kind is the provider error kind for failed calls.
	Kind  providers.Kind `json:"kind,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Classify maps a provider call error onto an Outcome and error kind.
func Classify(err error) (Outcome, providers.Kind) {
	if err == nil {
		return OutcomeSuccess, ""
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeCancelled, ""
	}
	var pe *providers.Error
	if errors.As(err, &pe) {
		if pe.Transient() {
			return OutcomeTransient, pe.Kind
		}
		return OutcomePermanent, pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTransient, providers.KindTimeout
	}
	return OutcomePermanent, ""
}

// Filter selects recorded calls. Zero fields match everything.
type Filter struct {
	JobID    string
	Provider string
	Since    time.Time
	// Limit keeps the newest Limit calls when positive.
	Limit int
}

// Matches reports whether c passes every set field of f except Limit.
func (f Filter) Matches(c Call) bool {
	if f.JobID != "" && c.JobID != f.JobID {
		return false
	}
	if f.Provider != "" && c.Provider != f.Provider {
		return false
	}
	if !f.Since.IsZero() && c.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
