package main

import (
	"net/http"
	"strings"

	"github.com/use-agent/promptopt/config"
	"github.com/use-agent/promptopt/distiller"
	"github.com/use-agent/promptopt/llm"
	"github.com/use-agent/promptopt/normalize"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/tokens"
	"github.com/use-agent/promptopt/translator"
)

// newCounter builds the token counter for cfg.Tokens. The Anthropic
// count endpoint is used only when a key is configured and the
// distillation model is a Claude model it can count for.
func newCounter(cfg *config.Config, anthropic *llm.AnthropicClient) *tokens.Counter {
	model := cfg.Distillation.Model
	if model == "" {
		model = distiller.DefaultModel
	}
	var remote tokens.Source
	if anthropic != nil && strings.HasPrefix(model, "claude") {
		remote = &llm.CountSource{Client: anthropic, Model: model}
	}
	return tokens.NewCounterForMethod(cfg.Tokens.Method, remote, tokens.NewTiktokenSource(cfg.Tokens.TokenizerModel))
}

func newAnthropic(cfg *config.Config, client *http.Client) *llm.AnthropicClient {
	if cfg.LLM.AnthropicAPIKey == "" {
		return nil
	}
	return llm.NewAnthropicClient(cfg.LLM.AnthropicAPIKey,
		llm.WithAnthropicBaseURL(cfg.LLM.AnthropicBaseURL),
		llm.WithAnthropicHTTPClient(client),
	)
}

// newGenerator routes claude-* models to Anthropic and OpenAI model
// families to OpenAI. Whichever provider is configured first serves
// unknown models.
func newGenerator(cfg *config.Config, anthropic *llm.AnthropicClient, client *http.Client) *llm.Router {
	var openai *llm.OpenAIClient
	if cfg.LLM.OpenAIAPIKey != "" {
		openai = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     cfg.LLM.OpenAIAPIKey,
			BaseURL:    cfg.LLM.OpenAIBaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
		}, client)
	}

	var fallback llm.Generator
	switch {
	case anthropic != nil:
		fallback = anthropic
	case openai != nil:
		fallback = openai
	}

	r := llm.NewRouter(fallback)
	if anthropic != nil {
		r.Handle(anthropic, "claude")
	}
	if openai != nil {
		r.Handle(openai, "gpt", "o1", "o3", "o4", "chatgpt")
	}
	return r
}

func newTranslator(cfg *config.Config) *translator.Translator {
	t := cfg.Translation
	return translator.FromConfig(translator.Config{
		Order:             t.Backends,
		GoogleCloudURL:    t.GoogleCloudURL,
		GoogleAPIKey:      t.GoogleAPIKey,
		MyMemoryURL:       t.MyMemoryURL,
		MyMemoryEmail:     t.MyMemoryEmail,
		LibreTranslateURL: t.LibreTranslateURL,
		LibreAPIKey:       t.LibreAPIKey,
		GoogleFreeURL:     t.GoogleFreeURL,
		EnableMock:        t.EnableMock,
	}, &http.Client{Timeout: t.Timeout})
}

// buildPipeline wires every pipeline collaborator from cfg.
func buildPipeline(cfg *config.Config, opts ...pipeline.Option) (*pipeline.Pipeline, *tokens.Counter) {
	llmClient := &http.Client{Timeout: cfg.LLM.Timeout}
	anthropic := newAnthropic(cfg, llmClient)

	var pre distiller.Preprocessor
	if cfg.Distillation.NormalizeHTML {
		pre = normalize.New()
	}
	dist := distiller.New(newGenerator(cfg, anthropic, llmClient), pre, distiller.Config{
		Model:       cfg.Distillation.Model,
		Temperature: cfg.Distillation.Temperature,
		MaxTokens:   cfg.Distillation.MaxTokens,
	})

	counter := newCounter(cfg, anthropic)
	p := pipeline.New(dist, newTranslator(cfg), counter, pipeline.Config{
		TargetLanguage: cfg.Translation.TargetLanguage,
		Concurrency:    cfg.Pipeline.Concurrency,
		Timeout:        cfg.Pipeline.Timeout,
	}, opts...)
	return p, counter
}
