// Package llm talks to external text-generation services.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/use-agent/promptopt/models"
)

// GenerateRequest is a single system+user completion request.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the generated text plus the provider's usage report.
type GenerateResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator is implemented by every text-generation provider.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

type route struct {
	prefixes []string
	gen      Generator
}

// Router dispatches a request to a provider by model id prefix.
type Router struct {
	routes   []route
	fallback Generator
}

// NewRouter creates a Router. fallback serves models no route claims and
// may be nil.
func NewRouter(fallback Generator) *Router {
	return &Router{fallback: fallback}
}

// Handle routes models starting with any of prefixes to gen.
// A nil gen is ignored.
func (r *Router) Handle(gen Generator, prefixes ...string) *Router {
	if gen == nil {
		return r
	}
	r.routes = append(r.routes, route{prefixes: prefixes, gen: gen})
	return r
}

// For returns the provider that serves model, or nil.
func (r *Router) For(model string) Generator {
	m := strings.ToLower(model)
	for _, rt := range r.routes {
		for _, p := range rt.prefixes {
			if strings.HasPrefix(m, p) {
				return rt.gen
			}
		}
	}
	return r.fallback
}

func (r *Router) Name() string { return "router" }

// Generate forwards req to the provider serving req.Model.
func (r *Router) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	gen := r.For(req.Model)
	if gen == nil {
		return nil, models.NewPipelineError(models.ErrCodeLLMFailure,
			fmt.Sprintf("no provider configured for model %q", req.Model), nil)
	}
	return gen.Generate(ctx, req)
}

// Providers lists the distinct provider names in routing order.
func (r *Router) Providers() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(g Generator) {
		if g != nil && !seen[g.Name()] {
			seen[g.Name()] = true
			names = append(names, g.Name())
		}
	}
	for _, rt := range r.routes {
		add(rt.gen)
	}
	add(r.fallback)
	return names
}

// classifyLLMError maps HTTP status codes to appropriate error codes.
func classifyLLMError(provider string, statusCode int, msg string) *models.PipelineError {
	if msg == "" {
		msg = provider + " API error"
	}
	switch {
	case statusCode == 401 || statusCode == 403:
		return models.NewPipelineError(models.ErrCodeLLMAuthFailure, msg, nil)
	case statusCode == 429:
		return models.NewPipelineError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewPipelineError(models.ErrCodeLLMFailure, fmt.Sprintf("%s API returned %d: %s", provider, statusCode, msg), nil)
	}
}
