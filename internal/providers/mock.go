package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const MockCallerName = "mock"

// MockCaller is a Caller for tests and offline runs. Responses and
// failures can be scripted per call.
type MockCaller struct {
	ProviderName string
	ModelName    string

	// Configurable behavior
	Latency  time.Duration
	Response string
	// Respond, when set, computes the response from the request.
	Respond func(req *Request) (string, error)

	mu sync.Mutex
	// failures are returned, in order, before any response.
	failures []error

	// State
	calls atomic.Int64
}

// NewMockCaller creates a mock caller with an empty JSON response.
func NewMockCaller() *MockCaller {
	return &MockCaller{
		ProviderName: MockCallerName,
		Response:     `{"problems": [], "theory_blocks": []}`,
	}
}

// FailWith queues errors to return on the next calls.
func (m *MockCaller) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns how many calls were made.
func (m *MockCaller) Calls() int {
	return int(m.calls.Load())
}

// Name returns the provider identifier.
func (m *MockCaller) Name() string {
	return m.ProviderName
}

func (m *MockCaller) Model() string {
	return m.ModelName
}

// Call returns the next scripted failure, or the configured response.
func (m *MockCaller) Call(ctx context.Context, req *Request) (string, error) {
	m.calls.Add(1)

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return "", err
	}
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(req)
	}
	return m.Response, nil
}
