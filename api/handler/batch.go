package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/api/middleware"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/pipeline"
	"github.com/use-agent/promptopt/webhook"
)

// OptimizeBatch returns a handler for POST /api/v1/optimize/batch.
//
// Prompts run in chunks of maxConcurrency (1 when parallel is false). A
// failed prompt never fails the batch; the response always lists one
// result per prompt in request order.
func OptimizeBatch(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()

		items := make([]pipeline.Item, len(req.Prompts))
		for i, p := range req.Prompts {
			items[i] = pipeline.Item{
				Prompt:  p.Content,
				Options: pipelineOptions(p.Model, p.Temperature, p.Strategy, p.TargetLanguage),
			}
		}

		concurrency := req.EffectiveConcurrency()
		res := d.Pipeline.ProcessItems(c.Request.Context(), items, concurrency)

		apiKey := middleware.APIKey(c)
		results := make([]*models.OptimizeResponse, len(res.Results))
		for i, o := range res.Results {
			r := toResponse(o, req.Prompts[i].Strategy)
			r.RequestID = req.Prompts[i].ID
			d.persist(c.Request.Context(), r, "", apiKey)
			results[i] = r
		}

		resp := &models.BatchResponse{
			BatchID:          res.BatchID,
			TotalPrompts:     res.TotalPrompts,
			Successful:       res.Successful,
			Failed:           res.Failed,
			ProcessingTimeMs: res.Statistics.TotalProcessingTime,
			Parallel:         *req.Options.Parallel,
			MaxConcurrency:   concurrency,
			Timestamp:        res.Timestamp,
			Results:          results,
			Statistics:       res.Statistics,
		}

		slog.Info("batch optimization completed",
			"batch_id", resp.BatchID,
			"successful", resp.Successful,
			"failed", resp.Failed,
		)
		d.notify(req.Options.Webhook, webhook.EventBatchCompleted, resp.BatchID, resp)
		c.JSON(http.StatusOK, resp)
	}
}
