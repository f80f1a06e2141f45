// Package tokens counts prompt tokens and computes per-stage token stats.
package tokens

import (
	"context"
	"log/slog"
	"math"

	"github.com/use-agent/promptopt/models"
)

// Counting methods accepted by NewCounterForMethod.
const (
	MethodAPI        = "api"
	MethodTiktoken   = "tiktoken"
	MethodEstimation = "estimation"
)

// Source is one precise token counter in the fallback chain.
type Source interface {
	Name() string
	Count(ctx context.Context, text string) (int, error)
}

// Counter tries each Source in order and falls back to Estimate.
// Count never fails.
type Counter struct {
	sources []Source
}

// NewCounter builds a Counter over the given sources. With no sources it
// only estimates.
func NewCounter(sources ...Source) *Counter {
	var s []Source
	for _, src := range sources {
		if src != nil {
			s = append(s, src)
		}
	}
	return &Counter{sources: s}
}

// NewCounterForMethod picks sources for a configured method name.
// Unknown methods behave like MethodAPI.
func NewCounterForMethod(method string, remote, local Source) *Counter {
	switch method {
	case MethodEstimation:
		return NewCounter()
	case MethodTiktoken:
		return NewCounter(local)
	default:
		return NewCounter(remote, local)
	}
}

// Count returns the token count of text. Source failures are logged and
// absorbed; the heuristic estimate is the last resort.
func (c *Counter) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	for _, src := range c.sources {
		n, err := src.Count(ctx, text)
		if err == nil {
			return n
		}
		slog.Warn("token count failed, falling back",
			"source", src.Name(),
			"error", models.NewPipelineError(models.ErrCodeTokenCount, "token source failed", err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return Estimate(text)
}

// Names lists the configured sources followed by "estimate".
func (c *Counter) Names() []string {
	names := make([]string, 0, len(c.sources)+1)
	for _, src := range c.sources {
		names = append(names, src.Name())
	}
	return append(names, "estimate")
}

// Stats is the single shared per-stage calculation.
func Stats(stage string, inputTokens, outputTokens int) models.TokenStats {
	reduction := inputTokens - outputTokens
	return models.TokenStats{
		Stage:               stage,
		InputTokens:         inputTokens,
		OutputTokens:        outputTokens,
		Reduction:           reduction,
		ReductionPercentage: Percent(reduction, inputTokens, 2),
	}
}

// Percent returns part/whole*100 rounded to the given number of decimals,
// or 0 when whole is not positive.
func Percent(part, whole, decimals int) float64 {
	if whole <= 0 {
		return 0
	}
	return Round(float64(part)/float64(whole)*100, decimals)
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
