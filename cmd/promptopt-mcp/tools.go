package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/tokens"
)

// apiClient calls the promptopt HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do sends a request and decodes the JSON response into out regardless of
// the status code; error bodies share the "error" field.
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func errorText(prefix string, e *models.ErrorDetail) string {
	if e == nil {
		return prefix
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func formatMetrics(m *models.OptimizeMetrics) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("Tokens: %d → %d (saved %d, %.1f%%)", m.OriginalTokens, m.OptimizedTokens, m.TokensSaved, m.ReductionPercentage)
}

func handleOptimize(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := request.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError("prompt is required"), nil
		}

		payload := models.OptimizeRequest{
			Prompt:         prompt,
			TargetLanguage: request.GetString("target_language", ""),
			Strategy:       request.GetString("strategy", ""),
			Model:          request.GetString("model", ""),
		}

		var resp models.OptimizeResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/optimize", payload, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("optimization failed", resp.Error)), nil
		}

		result := resp.OptimizedPrompt
		if m := formatMetrics(resp.Metrics); m != "" {
			result += "\n\n---\n" + m
		}
		result += "\nID: " + resp.ID
		return mcp.NewToolResultText(result), nil
	}
}

func handleBatch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompts, err := request.RequireStringSlice("prompts")
		if err != nil || len(prompts) == 0 {
			return mcp.NewToolResultError("prompts is required and must be a non-empty array of strings"), nil
		}

		target := request.GetString("target_language", "")
		strategy := request.GetString("strategy", "")
		payload := models.BatchRequest{
			Prompts: make([]models.BatchPrompt, len(prompts)),
			Options: models.BatchOptions{MaxConcurrency: request.GetInt("max_concurrency", 0)},
		}
		for i, p := range prompts {
			payload.Prompts[i] = models.BatchPrompt{
				ID:             fmt.Sprintf("%d", i+1),
				Content:        p,
				Strategy:       strategy,
				TargetLanguage: target,
			}
		}

		var resp struct {
			models.BatchResponse
			Error *models.ErrorDetail `json:"error"`
		}
		if err := c.do(ctx, http.MethodPost, "/api/v1/optimize/batch", payload, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(errorText("batch failed", resp.Error)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %d/%d succeeded\n\n", resp.BatchID, resp.Successful, resp.TotalPrompts)
		for i, r := range resp.Results {
			if r.Success {
				fmt.Fprintf(&sb, "--- [%d] ---\n%s\n%s\n\n", i+1, r.OptimizedPrompt, formatMetrics(r.Metrics))
			} else {
				fmt.Fprintf(&sb, "--- [%d] failed: %s ---\n\n", i+1, errorText("unknown error", r.Error))
			}
		}
		fmt.Fprintf(&sb, "Total tokens saved: %d", resp.Statistics.TotalTokenReduction)
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGet(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		var resp struct {
			models.OptimizationRecord
			Error *models.ErrorDetail `json:"error"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/optimize/"+id, nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(errorText("lookup failed", resp.Error)), nil
		}

		rec := resp.OptimizationRecord
		return mcp.NewToolResultText(fmt.Sprintf(
			"Original (%d tokens):\n%s\n\nOptimized (%d tokens):\n%s\n\n---\nStrategy: %s  Model: %s  Saved: %d tokens, $%.4f",
			rec.OriginalTokens, rec.OriginalPrompt, rec.OptimizedTokens, rec.OptimizedPrompt,
			rec.Strategy, rec.Model, rec.TokensSaved, rec.MoneySaved,
		)), nil
	}
}

func handleCountTokens(counter *tokens.Counter) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		n := counter.Count(ctx, text)
		return mcp.NewToolResultText(fmt.Sprintf("%d tokens (heuristic estimate: %d)", n, tokens.Estimate(text))), nil
	}
}
