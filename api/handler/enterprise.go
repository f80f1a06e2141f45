package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/api/middleware"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/savings"
	"github.com/use-agent/promptopt/store"
	"github.com/use-agent/promptopt/webhook"
)

// Enterprise returns a handler for POST /api/v1/optimize-enterprise.
//
// Requires an API key, enforces the monthly quota per key, prices the
// savings with the requested model's token cost and records every
// successful optimization against the key. A quota needs persistence:
// with MonthlyLimit set and no Store the route answers 503.
func Enterprise(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := middleware.APIKey(c)
		if apiKey == "" {
			respondError(c, models.NewPipelineError(models.ErrCodeUnauthorized, "API key required", nil))
			return
		}

		var req models.OptimizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()

		if d.Store == nil && d.MonthlyLimit > 0 {
			respondError(c, errQuotaUntracked)
			return
		}

		used := 0
		if d.Store != nil {
			n, release, err := d.quota.reserve(c.Request.Context(), d.Store, apiKey, d.MonthlyLimit)
			if err != nil {
				respondError(c, err)
				return
			}
			defer release()
			used = n
		}

		outcome := d.Pipeline.ProcessPrompt(c.Request.Context(), req.Prompt,
			pipelineOptions(req.Model, req.Temperature, req.Strategy, req.TargetLanguage))
		resp := toResponse(outcome, req.Strategy)
		if !resp.Success {
			c.JSON(mapErrorToStatus(resp.Error.Code), models.EnterpriseResponse{OptimizeResponse: *resp})
			return
		}

		model := req.Model
		if model == "" {
			model = resp.Metrics.Model
		}
		d.persist(c.Request.Context(), resp, req.UserName, apiKey)

		out := models.EnterpriseResponse{
			OptimizeResponse: *withoutMetrics(resp, *req.IncludeMetrics),
			CostSaved:        savings.ModelCostSaved(resp.Metrics.TokensSaved, model),
		}
		if d.Store != nil {
			out.Usage = &models.UsageInfo{
				APIKey:       maskKey(apiKey),
				CurrentUsage: used + 1,
				MonthlyLimit: d.MonthlyLimit,
			}
		}
		d.notify(req.Webhook, webhook.EventOptimizationCompleted, resp.ID, out)
		c.JSON(http.StatusOK, out)
	}
}

var errQuotaUntracked = models.NewPipelineError(models.ErrCodeUnavailable,
	"monthly usage limit is configured but persistence is disabled", nil)

// quotaGuard counts enterprise runs that passed the quota check but are
// not persisted yet, so concurrent requests for one key cannot all slip
// under the limit. It only covers this process; replicas sharing a
// database can still overshoot by their in-flight runs.
type quotaGuard struct {
	mu       sync.Mutex
	inflight map[string]int
}

// reserve returns the key's usage this month including in-flight runs and
// a release func to call once the run is persisted or abandoned. A zero
// limit is unlimited.
func (g *quotaGuard) reserve(ctx context.Context, s store.Store, key string, limit int) (int, func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := s.CountSince(ctx, key, monthStart(time.Now()))
	if err != nil {
		return 0, nil, err
	}
	used := n + g.inflight[key]
	if limit > 0 && used >= limit {
		return used, nil, models.NewPipelineError(models.ErrCodeUsageExceeded, "monthly usage limit exceeded", nil)
	}

	if g.inflight == nil {
		g.inflight = make(map[string]int)
	}
	g.inflight[key]++
	return used, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.inflight[key]--; g.inflight[key] <= 0 {
			delete(g.inflight, key)
		}
	}, nil
}

// monthStart is midnight UTC on the first day of t's month.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// maskKey keeps the first and last four characters of long keys.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
