package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.5-flash"
)

// GeminiCaller implements Caller using the Google GenAI SDK.
type GeminiCaller struct {
	model     string
	maxTokens int
	client    *genai.Client
}

// NewGeminiCaller creates a caller for Gemini models.
func NewGeminiCaller(ctx context.Context, cfg Config) (*GeminiCaller, error) {
	cfg = cfg.withDefaults(geminiDefaultModel)

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiCaller{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    client,
	}, nil
}

// Name returns the provider identifier.
func (c *GeminiCaller) Name() string {
	return GeminiName
}

// Model returns the default model.
func (c *GeminiCaller) Model() string {
	return c.model
}

// Call generates content for a single user turn.
func (c *GeminiCaller) Call(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.UserContent(), genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", c.mapError(err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					out.WriteString(part.Text)
				}
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	content := strings.TrimSpace(out.String())
	if content == "" {
		return "", &Error{Provider: GeminiName, Kind: KindServerError, Message: "no response generated"}
	}
	return content, nil
}

func (c *GeminiCaller) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := StatusError(GeminiName, apiErr.Code, apiErr.Message, nil)
		e.Err = err
		return e
	}
	return Classify(GeminiName, err)
}
