package api

import (
	"net/http"

	"appstore-receipt-api/internal/metrics"
	"appstore-receipt-api/internal/middleware"
	"appstore-receipt-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the routes are wired to
type Dependencies struct {
	Projects *services.ProjectService
	Receipts *services.ReceiptService
	// Limiter may be nil, which disables rate limiting
	Limiter          middleware.RateLimiter
	Metrics          *metrics.Metrics
	Gatherer         prometheus.Gatherer
	AdminAPIKey      string
	DefaultRateLimit int
	ServiceName      string
}

// Handler serves the HTTP API
type Handler struct {
	projects *services.ProjectService
	receipts *services.ReceiptService
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, deps Dependencies) {
	h := &Handler{projects: deps.Projects, receipts: deps.Receipts}

	r.Use(middleware.RequestIDMiddleware())

	// API route group
	api := r.Group("/api")
	{
		// Receipt routes (require project authentication)
		receipts := api.Group("/receipts")
		receipts.Use(middleware.ProjectAuthMiddleware(deps.Projects))
		if deps.Limiter != nil {
			var counter middleware.RejectionCounter
			if deps.Metrics != nil {
				counter = deps.Metrics
			}
			receipts.Use(middleware.RateLimitMiddleware(deps.Limiter, deps.DefaultRateLimit, counter))
		}
		{
			receipts.POST("/verify", h.VerifyReceipt)
		}

		// Project management routes (for admin use)
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(deps.AdminAPIKey))
		{
			admin.GET("/projects", h.GetProjects)
			admin.POST("/projects", h.CreateProject)
			admin.GET("/projects/:id", h.GetProject)
			admin.PUT("/projects/:id", h.UpdateProject)
			admin.DELETE("/projects/:id", h.DeleteProject)
		}
	}

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Health check
	serviceName := deps.ServiceName
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
		})
	})
}
