package middleware

import (
	"context"
	"net/http"

	"appstore-receipt-api/internal/response"
	"appstore-receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by *services.RedisService
type RateLimiter interface {
	AllowRequest(ctx context.Context, projectID string, limit int) (bool, error)
}

// RejectionCounter is satisfied by *metrics.Metrics
type RejectionCounter interface {
	IncrementRateLimited(projectID string)
}

// RateLimitMiddleware limits requests per authenticated project and minute.
// A project's own rate limit wins over defaultLimit. When the limiter fails
// the request is let through.
func RateLimitMiddleware(limiter RateLimiter, defaultLimit int, counter RejectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		project, ok := CurrentProject(c)
		if !ok || limiter == nil {
			c.Next()
			return
		}

		limit := defaultLimit
		if project.RateLimit > 0 {
			limit = project.RateLimit
		}

		allowed, err := limiter.AllowRequest(c.Request.Context(), project.ProjectID, limit)
		if err != nil {
			logging.Warnf("Rate limit check failed - project: %s, error: %v", project.ProjectID, err)
			c.Next()
			return
		}
		if !allowed {
			if counter != nil {
				counter.IncrementRateLimited(project.ProjectID)
			}
			response.AbortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded, try again later")
			return
		}
		c.Next()
	}
}
