package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/use-agent/promptopt/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient calls the Anthropic messages and count_tokens APIs.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicBaseURL sets the API base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *AnthropicClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(c *AnthropicClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewAnthropicClient creates a client for the given API key.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:     apiKey,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnthropicClient) Name() string { return "anthropic" }

// Generate sends one system+user turn to /messages and concatenates the
// text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	body, err := buildBody(
		field{"model", req.Model},
		field{"max_tokens", req.MaxTokens},
		field{"temperature", req.Temperature},
		field{"system", req.System},
		field{"messages", userMessage(req.Prompt)},
	)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	gjson.GetBytes(resp, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})

	model := gjson.GetBytes(resp, "model").String()
	if model == "" {
		model = req.Model
	}
	return &GenerateResult{
		Text:         text.String(),
		Model:        model,
		InputTokens:  int(gjson.GetBytes(resp, "usage.input_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(resp, "usage.output_tokens").Int()),
	}, nil
}

// CountTokens asks /messages/count_tokens for the input-token count of a
// single user message.
func (c *AnthropicClient) CountTokens(ctx context.Context, model, text string) (int, error) {
	body, err := buildBody(
		field{"model", model},
		field{"messages", userMessage(text)},
	)
	if err != nil {
		return 0, err
	}

	resp, err := c.post(ctx, "/messages/count_tokens", body)
	if err != nil {
		return 0, err
	}

	n := gjson.GetBytes(resp, "input_tokens")
	if !n.Exists() {
		return 0, models.NewPipelineError(models.ErrCodeLLMFailure, "count_tokens response missing input_tokens", nil)
	}
	return int(n.Int()), nil
}

// CountSource adapts CountTokens to a fixed model.
type CountSource struct {
	Client *AnthropicClient
	Model  string
}

func (s *CountSource) Name() string { return "anthropic" }

func (s *CountSource) Count(ctx context.Context, text string) (int, error) {
	return s.Client.CountTokens(ctx, s.Model, text)
}

func (c *AnthropicClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeLLMFailure, "anthropic request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeLLMFailure, "failed to read anthropic response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyLLMError("anthropic", resp.StatusCode, gjson.GetBytes(respBody, "error.message").String())
	}
	if !gjson.ValidBytes(respBody) {
		return nil, models.NewPipelineError(models.ErrCodeLLMFailure, "anthropic returned invalid JSON", nil)
	}
	return respBody, nil
}

type field struct {
	path  string
	value any
}

func userMessage(text string) []map[string]string {
	return []map[string]string{{"role": "user", "content": text}}
}

// buildBody assembles a JSON object with sjson, skipping empty strings.
func buildBody(fields ...field) ([]byte, error) {
	body := []byte(`{}`)
	for _, f := range fields {
		if s, ok := f.value.(string); ok && s == "" {
			continue
		}
		var err error
		body, err = sjson.SetBytes(body, f.path, f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}
	return body, nil
}
