package llmcall

import (
	"sort"
	"time"
)

// ProviderSummary aggregates recorded calls for one provider.
type ProviderSummary struct {
	Provider        string    `json:"provider"`
	Calls           int       `json:"calls"`
	Successes       int       `json:"successes"`
	TransientErrors int       `json:"transient_errors"`
	PermanentErrors int       `json:"permanent_errors"`
	Cancelled       int       `json:"cancelled"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LastOutcome     Outcome   `json:"last_outcome"`
	LastError       string    `json:"last_error,omitempty"`
	LastCallAt      time.Time `json:"last_call_at"`
}

// Summarize groups calls by provider, sorted by provider name.
func Summarize(calls []Call) []ProviderSummary {
	byProvider := make(map[string]*ProviderSummary)
	totalLatency := make(map[string]int64)
	lastErrAt := make(map[string]time.Time)
	for _, c := range calls {
		s, ok := byProvider[c.Provider]
		if !ok {
			s = &ProviderSummary{Provider: c.Provider}
			byProvider[c.Provider] = s
		}
		s.Calls++
		totalLatency[c.Provider] += c.LatencyMs
		switch c.Outcome {
		case OutcomeSuccess:
			s.Successes++
		case OutcomeTransient:
			s.TransientErrors++
		case OutcomePermanent:
			s.PermanentErrors++
		case OutcomeCancelled:
			s.Cancelled++
		}
		if !c.Timestamp.Before(s.LastCallAt) {
			s.LastCallAt = c.Timestamp
			s.LastOutcome = c.Outcome
		}
		if c.Error != "" && c.Outcome != OutcomeCancelled && !c.Timestamp.Before(lastErrAt[c.Provider]) {
			lastErrAt[c.Provider] = c.Timestamp
			s.LastError = c.Error
		}
	}

	out := make([]ProviderSummary, 0, len(byProvider))
	for name, s := range byProvider {
		s.AvgLatencyMs = float64(totalLatency[name]) / float64(s.Calls)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
