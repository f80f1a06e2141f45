package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/store"
)

// GetOptimization returns a handler for GET /api/v1/optimize/:id.
func GetOptimization(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Store == nil {
			respondError(c, errPersistenceDisabled)
			return
		}
		rec, err := d.Store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// Usage returns a handler for GET /api/v1/analytics/usage.
func Usage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.UsageQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			invalidInput(c, err)
			return
		}
		if d.Store == nil {
			respondError(c, errPersistenceDisabled)
			return
		}
		if q.Period == "" {
			q.Period = store.DefaultPeriod
		}

		sum, err := d.Store.Usage(c.Request.Context(), q.Period, q.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}
