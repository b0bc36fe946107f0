package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterCaller implements Caller against the OpenRouter HTTP API.
type OpenRouterCaller struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenRouterCaller creates a new OpenRouter caller.
func NewOpenRouterCaller(cfg Config) *OpenRouterCaller {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	cfg = cfg.withDefaults("anthropic/claude-sonnet-4")

	return &OpenRouterCaller{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *OpenRouterCaller) Name() string {
	return OpenRouterName
}

// Model returns the default model.
func (c *OpenRouterCaller) Model() string {
	return c.model
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Call sends one chat completion request. Failures are mapped onto *Error;
// retrying is left to the caller's policy.
func (c *OpenRouterCaller) Call(ctx context.Context, req *Request) (string, error) {
	orReq := openRouterRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if orReq.Model == "" {
		orReq.Model = c.model
	}
	if orReq.MaxTokens == 0 {
		orReq.MaxTokens = c.maxTokens
	}
	if req.System != "" {
		orReq.Messages = append(orReq.Messages, openRouterMessage{Role: "system", Content: req.System})
	}
	orReq.Messages = append(orReq.Messages, openRouterMessage{Role: "user", Content: req.UserContent()})

	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return "", &Error{Provider: OpenRouterName, Kind: KindMalformed, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &Error{Provider: OpenRouterName, Kind: KindMalformed, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/problembook")
	httpReq.Header.Set("X-Title", "Problembook")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", Classify(OpenRouterName, fmt.Errorf("request failed: %w", err))
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", Classify(OpenRouterName, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", StatusError(OpenRouterName, resp.StatusCode, truncate(string(respBody), 500), resp.Header)
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return "", &Error{Provider: OpenRouterName, Kind: KindServerError, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	// OpenRouter can report upstream failures inside a 200 body.
	if orResp.Error != nil {
		return "", StatusError(OpenRouterName, orResp.Error.Code, orResp.Error.Message, nil)
	}
	if len(orResp.Choices) == 0 || strings.TrimSpace(orResp.Choices[0].Message.Content) == "" {
		return "", &Error{Provider: OpenRouterName, Kind: KindServerError, Message: "empty completion"}
	}
	return strings.TrimSpace(orResp.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}
