package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/translator"
)

// Health returns a handler for GET /api/v1/health.
//
// Degrades when the pipeline lacks a provider or the store is unreachable.
func Health(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ph := d.Pipeline.Health()

		storeStatus := "disabled"
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			if err := d.Store.Ping(ctx); err != nil {
				storeStatus = "unavailable"
			} else {
				storeStatus = "ok"
			}
			cancel()
		}

		status := ph.Status
		if storeStatus == "unavailable" {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(d.StartTime).Round(time.Second).String(),
			Version:  Version,
			Pipeline: ph,
			Store:    storeStatus,
		})
	}
}

// Docs returns a handler for GET /api/v1/docs.
func Docs() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "PromptOpt API",
			"version":     Version,
			"description": "Prompt optimization: distillation, translation and token accounting",
			"endpoints": gin.H{
				"POST /api/v1/optimize":            "Optimize a single prompt",
				"POST /api/v1/optimize/batch":      "Optimize up to 10 prompts",
				"POST /api/v1/optimize-enterprise": "Optimize with per-key usage tracking",
				"GET /api/v1/optimize/{id}":        "Get optimization result by ID",
				"GET /api/v1/analytics/usage":      "Get usage statistics",
				"GET /api/v1/health":               "Service health",
				"GET /api/v1/docs":                 "API documentation",
			},
			"authentication": gin.H{
				"type":   "Bearer Token",
				"header": "Authorization: Bearer <api_key>",
			},
			"rateLimits": gin.H{
				"optimize": "60 requests/minute",
				"batch":    "10 requests/minute",
			},
			"strategies": []string{
				models.StrategyConcise,
				models.StrategyCreative,
				models.StrategyTechnical,
				models.StrategyMultilingual,
			},
			"languages": translator.SupportedLanguages,
		})
	}
}
