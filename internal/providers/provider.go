package providers

import (
	"context"
	"time"
)

// Caller is the AI call abstraction used by extraction and solving.
// Implementations translate a Request into a vendor API call and map every
// failure onto *Error so callers only see the Kind taxonomy, never a
// vendor wire format.
type Caller interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Call sends prompt plus input and returns the model's text.
	Call(ctx context.Context, req *Request) (string, error)
}

// ModelOf returns the default model of c, or "" when c does not report one.
func ModelOf(c Caller) string {
	if m, ok := c.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// Request is a single prompt/input exchange.
type Request struct {
	// System is an optional system instruction.
	System string `json:"system,omitempty"`

	// Prompt holds the task instructions; Input the document they apply to.
	Prompt string `json:"prompt"`
	Input  string `json:"input,omitempty"`

	// Model overrides the caller's default model.
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// UserContent joins prompt and input into the user message body.
func (r *Request) UserContent() string {
	if r.Input == "" {
		return r.Prompt
	}
	return r.Prompt + "\n\n" + r.Input
}

// Config holds the settings shared by all SDK-backed callers.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string        // Optional (tests, compatible endpoints)
	Timeout time.Duration // HTTP timeout per call
	// MaxTokens is the default completion budget.
	MaxTokens int
}

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8000
	}
	return c
}
