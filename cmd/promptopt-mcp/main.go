package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/promptopt/api/handler"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/tokens"
)

func main() {
	apiURL := os.Getenv("PROMPTOPT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	tokenizerModel := os.Getenv("PROMPTOPT_TOKENIZER_MODEL")
	if tokenizerModel == "" {
		tokenizerModel = "gpt-4o"
	}

	c := &apiClient{
		baseURL: apiURL,
		apiKey:  os.Getenv("PROMPTOPT_API_KEY"),
		http:    &http.Client{Timeout: 180 * time.Second},
	}

	if err := server.ServeStdio(newServer(c, tokens.NewCounter(tokens.NewTiktokenSource(tokenizerModel)))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *apiClient, counter *tokens.Counter) *server.MCPServer {
	s := server.NewMCPServer(
		"promptopt",
		handler.Version,
		server.WithToolCapabilities(false),
	)

	strategies := []string{models.StrategyConcise, models.StrategyCreative, models.StrategyTechnical, models.StrategyMultilingual}

	s.AddTool(mcp.NewTool("optimize_prompt",
		mcp.WithDescription("Shorten a prompt with an LLM while keeping its intent, optionally translate it, and report the tokens saved."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt to optimize"),
		),
		mcp.WithString("target_language",
			mcp.Description("Two-letter language code to translate the optimized prompt into, e.g. 'zh'. Omit to keep the source language."),
		),
		mcp.WithString("strategy",
			mcp.Description("Rewriting emphasis: 'concise' (default), 'creative', 'technical' or 'multilingual'"),
			mcp.Enum(strategies...),
		),
		mcp.WithString("model",
			mcp.Description("Distillation model (default: server setting)"),
		),
	), handleOptimize(c))

	s.AddTool(mcp.NewTool("batch_optimize",
		mcp.WithDescription("Optimize up to 10 prompts in one call. Each prompt succeeds or fails on its own."),
		mcp.WithArray("prompts",
			mcp.Required(),
			mcp.Description("List of prompts to optimize"),
			mcp.WithStringItems(),
		),
		mcp.WithString("target_language",
			mcp.Description("Two-letter language code applied to every prompt"),
		),
		mcp.WithString("strategy",
			mcp.Description("Rewriting emphasis applied to every prompt"),
			mcp.Enum(strategies...),
		),
		mcp.WithNumber("max_concurrency",
			mcp.Description("Prompts processed at once (1-10, default 5)"),
		),
	), handleBatch(c))

	s.AddTool(mcp.NewTool("get_optimization",
		mcp.WithDescription("Fetch a stored optimization by id."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Optimization id returned by optimize_prompt"),
		),
	), handleGet(c))

	s.AddTool(mcp.NewTool("count_tokens",
		mcp.WithDescription("Count the tokens of a text locally without calling the API."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to count"),
		),
	), handleCountTokens(counter))

	return s
}
