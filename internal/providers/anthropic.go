package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	AnthropicName         = "claude"
	anthropicDefaultModel = "claude-sonnet-4-5"
)

// AnthropicCaller implements Caller using the Anthropic Messages API.
type AnthropicCaller struct {
	model     string
	maxTokens int
	client    anthropic.Client
}

// NewAnthropicCaller creates a caller for Claude models.
func NewAnthropicCaller(cfg Config) *AnthropicCaller {
	cfg = cfg.withDefaults(anthropicDefaultModel)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicCaller{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *AnthropicCaller) Name() string {
	return AnthropicName
}

// Model returns the default model.
func (c *AnthropicCaller) Model() string {
	return c.model
}

// Call sends a single-turn message request.
func (c *AnthropicCaller) Call(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserContent())),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", c.mapError(err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(out.String())
	if content == "" {
		return "", &Error{Provider: AnthropicName, Kind: KindServerError, Message: "no text in response"}
	}
	return content, nil
}

func (c *AnthropicCaller) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		e := StatusError(AnthropicName, apiErr.StatusCode, "", header)
		e.Err = err
		return e
	}
	return Classify(AnthropicName, err)
}
