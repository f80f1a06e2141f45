package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/ratelimit"
)

// RateLimit rejects requests once the caller's bucket in l is empty. The
// caller is identified by the key Auth verified, else by client IP; an
// unverified header key never selects the bucket.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		identity := AuthenticatedKey(c)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !l.Allow(identity) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
