package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o"

	// Mistral exposes an OpenAI-compatible chat endpoint.
	MistralName         = "mistral"
	MistralBaseURL      = "https://api.mistral.ai/v1"
	mistralDefaultModel = "mistral-large-latest"
)

// OpenAICaller implements Caller using the official OpenAI SDK. It also
// serves OpenAI-compatible endpoints such as Mistral via BaseURL.
type OpenAICaller struct {
	name      string
	model     string
	maxTokens int
	client    openai.Client
}

// NewOpenAICaller creates a caller for the OpenAI chat completions API.
func NewOpenAICaller(cfg Config) *OpenAICaller {
	return newOpenAICompatible(OpenAIName, cfg.withDefaults(openAIDefaultModel), nil)
}

// NewMistralCaller creates a caller for Mistral's OpenAI-compatible API.
func NewMistralCaller(cfg Config) *OpenAICaller {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralBaseURL
	}
	return newOpenAICompatible(MistralName, cfg.withDefaults(mistralDefaultModel), nil)
}

func newOpenAICompatible(name string, cfg Config, httpClient *http.Client) *OpenAICaller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are owned by the retry policy, not the transport.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAICaller{
		name:      name,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAICaller) Name() string {
	return c.name
}

// Model returns the default model.
func (c *OpenAICaller) Model() string {
	return c.model
}

// Call sends a chat completion request.
func (c *OpenAICaller) Call(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.UserContent()))

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Provider: c.name, Kind: KindServerError, Message: "response has no choices"}
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &Error{Provider: c.name, Kind: KindServerError, Message: "empty completion"}
	}
	return content, nil
}

func (c *OpenAICaller) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		e := StatusError(c.name, apiErr.StatusCode, apiErr.Message, header)
		e.Err = err
		return e
	}
	return Classify(c.name, err)
}
