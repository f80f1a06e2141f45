package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/use-agent/promptopt/models"
)

func TestAnthropicGenerate(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "claude-3-haiku-20240307",
			"content": [
				{"type": "text", "text": "Create sunset "},
				{"type": "tool_use", "id": "x"},
				{"type": "text", "text": "image"}
			],
			"usage": {"input_tokens": 120, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", WithAnthropicBaseURL(srv.URL))
	res, err := c.Generate(context.Background(), &GenerateRequest{
		System:      "rewrite",
		Prompt:      "Please kindly create a sunset image",
		Model:       "claude-3-haiku-20240307",
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Create sunset image", res.Text)
	assert.Equal(t, 120, res.InputTokens)
	assert.Equal(t, 4, res.OutputTokens)

	assert.Equal(t, "rewrite", gjson.GetBytes(gotBody, "system").String())
	assert.Equal(t, int64(1000), gjson.GetBytes(gotBody, "max_tokens").Int())
	assert.Equal(t, 0.3, gjson.GetBytes(gotBody, "temperature").Float())
	assert.Equal(t, "user", gjson.GetBytes(gotBody, "messages.0.role").String())
	assert.Equal(t, "Please kindly create a sunset image", gjson.GetBytes(gotBody, "messages.0.content").String())
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, models.ErrCodeLLMAuthFailure},
		{http.StatusForbidden, models.ErrCodeLLMAuthFailure},
		{http.StatusTooManyRequests, models.ErrCodeLLMRateLimited},
		{http.StatusInternalServerError, models.ErrCodeLLMFailure},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"x","message":"nope"}}`)
		}))
		c := NewAnthropicClient("k", WithAnthropicBaseURL(srv.URL))
		_, err := c.Generate(context.Background(), &GenerateRequest{Model: "claude-3-haiku-20240307", Prompt: "hi"})
		srv.Close()

		require.Error(t, err)
		assert.True(t, models.HasCode(err, tt.code), "status %d: %v", tt.status, err)
	}
}

func TestAnthropicCountTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/count_tokens", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "claude-3-haiku-20240307", gjson.GetBytes(body, "model").String())
		_, _ = io.WriteString(w, `{"input_tokens": 17}`)
	}))
	defer srv.Close()

	src := &CountSource{Client: NewAnthropicClient("k", WithAnthropicBaseURL(srv.URL)), Model: "claude-3-haiku-20240307"}
	n, err := src.Count(context.Background(), "count me")
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestAnthropicCountTokensMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicClient("k", WithAnthropicBaseURL(srv.URL)).CountTokens(context.Background(), "m", "x")
	require.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
		assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(body, "model").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "short"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, srv.Client())
	res, err := c.Generate(context.Background(), &GenerateRequest{System: "s", Prompt: "p", Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "short", res.Text)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 2, res.OutputTokens)
}

func TestOpenAIAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL + "/v1/"}, srv.Client())
	_, err := c.Generate(context.Background(), &GenerateRequest{Model: "gpt-4o-mini", Prompt: "p"})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.ErrCodeLLMAuthFailure), err.Error())
}

type namedGen struct{ name string }

func (g namedGen) Name() string { return g.name }
func (g namedGen) Generate(context.Context, *GenerateRequest) (*GenerateResult, error) {
	return &GenerateResult{Text: g.name}, nil
}

func TestRouter(t *testing.T) {
	claude := namedGen{"anthropic"}
	gpt := namedGen{"openai"}
	r := NewRouter(claude).Handle(claude, "claude-").Handle(gpt, "gpt-", "o1", "o3")

	assert.Equal(t, "anthropic", r.For("claude-3-haiku-20240307").Name())
	assert.Equal(t, "openai", r.For("GPT-4o").Name())
	assert.Equal(t, "anthropic", r.For("mistral-large").Name())
	assert.Equal(t, []string{"anthropic", "openai"}, r.Providers())

	res, err := r.Generate(context.Background(), &GenerateRequest{Model: "o3-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Text)
}

func TestRouterWithoutProvider(t *testing.T) {
	r := NewRouter(nil).Handle(nil, "gpt-")
	_, err := r.Generate(context.Background(), &GenerateRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.ErrCodeLLMFailure))
	assert.Empty(t, r.Providers())
}
