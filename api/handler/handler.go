package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/cache"
	"github.com/use-agent/promptopt/metrics"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/savings"
	"github.com/use-agent/promptopt/store"
	"github.com/use-agent/promptopt/webhook"
)

// Version is reported by the health and docs endpoints.
const Version = "1.0.0"

// Optimizer runs prompts through the pipeline.
type Optimizer interface {
	ProcessPrompt(ctx context.Context, prompt string, opts pipeline.Options) models.Outcome
	ProcessItems(ctx context.Context, items []pipeline.Item, concurrency int) *models.BatchResult
	Health() models.PipelineHealth
}

// Deps are the collaborators shared by all handlers. Only Pipeline is
// required; nil Cache, Store, Notifier or Metrics disable that feature.
type Deps struct {
	Pipeline Optimizer
	Cache    *cache.Cache
	Store    store.Store
	Notifier *webhook.Notifier
	Metrics  *metrics.Metrics

	// MonthlyLimit caps enterprise optimizations per API key. Zero means
	// unlimited.
	MonthlyLimit int

	StartTime time.Time

	quota quotaGuard
}

// pipelineOptions maps request fields onto pipeline options. A request
// is translated only when it names a target language.
func pipelineOptions(model string, temperature *float64, strategy, targetLanguage string) pipeline.Options {
	translate := targetLanguage != ""
	return pipeline.Options{
		Model:          model,
		Temperature:    temperature,
		Strategy:       strategy,
		Translate:      &translate,
		TargetLanguage: targetLanguage,
	}
}

// toResponse converts a pipeline outcome to the API shape. Metrics are
// always filled for successful runs.
func toResponse(o models.Outcome, strategy string) *models.OptimizeResponse {
	switch r := o.(type) {
	case *models.OptimizationResult:
		saved := r.Statistics.TotalTokenReduction
		s := savings.Compute(saved)
		return &models.OptimizeResponse{
			Success:         true,
			ID:              r.ID,
			OriginalPrompt:  r.Input.Prompt,
			OptimizedPrompt: r.Output.Prompt,
			Strategy:        strategy,
			Language:        r.Output.Language,
			Status:          "completed",
			Timestamp:       r.Timestamp,
			Metrics: &models.OptimizeMetrics{
				OriginalTokens:      r.Statistics.TotalInputTokens,
				OptimizedTokens:     r.Statistics.TotalOutputTokens,
				TokensSaved:         saved,
				ReductionPercentage: r.Statistics.TotalTokenReductionPercentage,
				MoneySaved:          s.MoneySaved,
				EnergySaved:         s.EnergySaved,
				EmissionsSaved:      s.EmissionsSaved,
				ProcessingTimeMs:    r.ProcessingTimeMs,
				Model:               r.Distillation.Model,
			},
		}
	case *models.OptimizationError:
		input := r.Input
		return &models.OptimizeResponse{
			Success:        false,
			ID:             r.ID,
			OriginalPrompt: r.Input.Prompt,
			Strategy:       strategy,
			Status:         "failed",
			Timestamp:      r.Timestamp,
			Input:          &input,
			Error:          &models.ErrorDetail{Code: r.Code, Message: r.Error},
		}
	}
	return &models.OptimizeResponse{
		Status: "failed",
		Error:  &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "unknown outcome"},
	}
}

// withoutMetrics returns a shallow copy of resp with metrics removed when
// include is false.
func withoutMetrics(resp *models.OptimizeResponse, include bool) *models.OptimizeResponse {
	if include {
		return resp
	}
	out := *resp
	out.Metrics = nil
	return &out
}

// recordFor builds the persisted form of a successful response.
func recordFor(resp *models.OptimizeResponse, userName, apiKey string) *models.OptimizationRecord {
	m := resp.Metrics
	return &models.OptimizationRecord{
		ID:              resp.ID,
		OriginalPrompt:  resp.OriginalPrompt,
		OptimizedPrompt: resp.OptimizedPrompt,
		OriginalTokens:  m.OriginalTokens,
		OptimizedTokens: m.OptimizedTokens,
		TokensSaved:     m.TokensSaved,
		MoneySaved:      m.MoneySaved,
		EnergySaved:     m.EnergySaved,
		EmissionsSaved:  m.EmissionsSaved,
		Strategy:        resp.Strategy,
		Model:           m.Model,
		UserName:        userName,
		APIKey:          apiKey,
		CreatedAt:       resp.Timestamp,
	}
}

// persist saves successful responses. Failures are logged, never returned
// to the client.
func (d *Deps) persist(ctx context.Context, resp *models.OptimizeResponse, userName, apiKey string) {
	if d.Store == nil || !resp.Success || resp.Metrics == nil {
		return
	}
	if err := d.Store.Save(ctx, recordFor(resp, userName, apiKey)); err != nil {
		slog.Error("failed to persist optimization", "id", resp.ID, "error", err)
	}
}

func (d *Deps) notify(url, eventType, id string, data any) {
	if url == "" || d.Notifier == nil {
		return
	}
	d.Notifier.DeliverAsync(url, webhook.NewEvent(eventType, id, data))
}

func (d *Deps) cacheLookup(key string) (*models.OptimizeResponse, bool) {
	if d.Cache == nil {
		return nil, false
	}
	resp, hit := d.Cache.Get(key)
	if d.Metrics != nil {
		d.Metrics.CacheLookup(hit)
	}
	return resp, hit
}

// respondError maps an error to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	pe := models.AsPipelineError(err)
	c.JSON(mapErrorToStatus(pe.Code), models.ErrorResponse{Error: pe.ToDetail()})
}

// invalidInput writes a 400 for a request that failed binding.
func invalidInput(c *gin.Context, err error) {
	respondError(c, models.NewPipelineError(models.ErrCodeInvalidInput, err.Error(), err))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeCancelled:
		return http.StatusRequestTimeout // 408
	case models.ErrCodeRateLimited, models.ErrCodeUsageExceeded:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeDistillation:
		return http.StatusBadGateway // 502
	case models.ErrCodeUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

var errPersistenceDisabled = models.NewPipelineError(models.ErrCodeNotFound, "persistence is disabled", errors.ErrUnsupported)
