package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/internal/response"
	"appstore-receipt-api/internal/services"
	"appstore-receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// ProjectKey is the context key of the authenticated *models.Project
const ProjectKey = "project"

// ProjectAuthMiddleware provides project authentication middleware
func ProjectAuthMiddleware(projects *services.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get project ID and API key
		projectID := c.GetHeader("X-Project-ID")
		apiKey := c.GetHeader("X-API-Key")

		// If not passed via header, try to get from query parameters
		if projectID == "" {
			projectID = c.Query("project_id")
		}
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if projectID == "" || apiKey == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "Missing project_id or api_key")
			return
		}

		project, err := projects.Authenticate(projectID, apiKey)
		if err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				response.AbortWithError(c, http.StatusUnauthorized, "Invalid project_id or api_key")
				return
			}
			logging.Errorf("Project lookup failed - project: %s, error: %v", projectID, err)
			response.AbortWithError(c, http.StatusInternalServerError, "Service error")
			return
		}

		c.Set(ProjectKey, project)
		c.Next()
	}
}

// CurrentProject returns the project stored by ProjectAuthMiddleware
func CurrentProject(c *gin.Context) (*models.Project, bool) {
	v, ok := c.Get(ProjectKey)
	if !ok {
		return nil, false
	}
	project, ok := v.(*models.Project)
	return project, ok
}

// AdminAuthMiddleware guards the admin routes with the X-Admin-Key header.
// An empty adminKey disables the admin API.
func AdminAuthMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			response.AbortWithError(c, http.StatusForbidden, "Admin API disabled")
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, "Invalid admin key")
			return
		}
		c.Next()
	}
}
