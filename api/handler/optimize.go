package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/api/middleware"
	"github.com/use-agent/promptopt/cache"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/webhook"
)

// Optimize returns a handler for POST /api/v1/optimize.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup (identical prompt, model, temperature, strategy, target).
//  3. Pipeline run: distill, then translate when targetLanguage is set.
//  4. Cache store, persist, webhook.
//
// A failed run still answers with the original prompt and its token count.
func Optimize(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.OptimizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()
		include := *req.IncludeMetrics

		// ── 2. Cache lookup ─────────────────────────────────────────
		key := cache.Key(req.Prompt, req.Model, req.Temperature, req.Strategy, req.TargetLanguage)
		if cached, hit := d.cacheLookup(key); hit {
			cached.CacheStatus = "hit"
			if cached.Metrics != nil {
				cached.Metrics.ProcessingTimeMs = time.Since(start).Milliseconds()
			}
			c.JSON(http.StatusOK, withoutMetrics(cached, include))
			return
		}

		// ── 3. Run ──────────────────────────────────────────────────
		outcome := d.Pipeline.ProcessPrompt(c.Request.Context(), req.Prompt,
			pipelineOptions(req.Model, req.Temperature, req.Strategy, req.TargetLanguage))
		resp := toResponse(outcome, req.Strategy)
		if !resp.Success {
			c.JSON(mapErrorToStatus(resp.Error.Code), resp)
			return
		}

		// ── 4. Cache store, persist, notify ─────────────────────────
		if d.Cache != nil {
			d.Cache.Set(key, resp)
			resp.CacheStatus = "miss"
		}
		d.persist(c.Request.Context(), resp, req.UserName, middleware.APIKey(c))
		out := withoutMetrics(resp, include)
		d.notify(req.Webhook, webhook.EventOptimizationCompleted, resp.ID, out)

		c.JSON(http.StatusOK, out)
	}
}
