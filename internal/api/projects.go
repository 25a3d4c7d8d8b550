package api

import (
	"errors"
	"net/http"

	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/internal/services"

	"github.com/gin-gonic/gin"
)

// GetProjects gets all projects
func (h *Handler) GetProjects(c *gin.Context) {
	projects, err := h.projects.GetAllProjects()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to get projects",
		})
		return
	}

	views := make([]gin.H, 0, len(projects))
	for _, project := range projects {
		views = append(views, projectView(project))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}

// GetProject gets one active project
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.projects.GetProjectByID(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": "Failed to get project: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    projectView(project),
	})
}

// CreateProjectRequest represents create project request
type CreateProjectRequest struct {
	ProjectID          string `json:"project_id" binding:"required"`
	ProjectName        string `json:"project_name" binding:"required"`
	APIKey             string `json:"api_key" binding:"required"`
	Description        string `json:"description"`
	ContactEmail       string `json:"contact_email" binding:"omitempty,email"`
	RateLimit          int    `json:"rate_limit" binding:"gte=0"`
	BundleID           string `json:"bundle_id"`     // iOS bundle ID, receipts of other apps are rejected
	SharedSecret       string `json:"shared_secret"` // App Store Connect app-specific shared secret
	WebhookCallbackURL string `json:"webhook_callback_url" binding:"omitempty,url"`
	WebhookSecret      string `json:"webhook_secret"`
}

// CreateProject creates a new project
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	project := &models.Project{
		ProjectID:          req.ProjectID,
		ProjectName:        req.ProjectName,
		APIKey:             req.APIKey,
		Description:        req.Description,
		ContactEmail:       req.ContactEmail,
		RateLimit:          req.RateLimit,
		BundleID:           req.BundleID,
		SharedSecret:       req.SharedSecret,
		WebhookCallbackURL: req.WebhookCallbackURL,
		WebhookSecret:      req.WebhookSecret,
		IsActive:           true,
	}

	if err := h.projects.CreateProject(project); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Failed to create project: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Project created successfully",
		"data":    projectView(project),
	})
}

// UpdateProjectRequest represents update project request. Absent fields are
// left unchanged; the optional settings can be cleared with "" or 0.
type UpdateProjectRequest struct {
	ProjectName        string  `json:"project_name"`
	Description        *string `json:"description"`
	ContactEmail       *string `json:"contact_email" binding:"omitempty,email"`
	RateLimit          *int    `json:"rate_limit" binding:"omitempty,gte=0"`
	IsActive           *bool   `json:"is_active"`
	BundleID           *string `json:"bundle_id"`
	SharedSecret       *string `json:"shared_secret"`
	WebhookCallbackURL *string `json:"webhook_callback_url" binding:"omitempty,url"`
	WebhookSecret      *string `json:"webhook_secret"`
}

// UpdateProject updates an existing project
func (h *Handler) UpdateProject(c *gin.Context) {
	projectID := c.Param("id")

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	// Build update map
	updates := make(map[string]interface{})
	if req.ProjectName != "" {
		updates["project_name"] = req.ProjectName
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if req.RateLimit != nil {
		updates["rate_limit"] = *req.RateLimit
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.BundleID != nil {
		updates["bundle_id"] = *req.BundleID
	}
	if req.SharedSecret != nil {
		updates["shared_secret"] = *req.SharedSecret
	}
	if req.WebhookCallbackURL != nil {
		updates["webhook_callback_url"] = *req.WebhookCallbackURL
	}
	if req.WebhookSecret != nil {
		updates["webhook_secret"] = *req.WebhookSecret
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "No fields to update",
		})
		return
	}

	if err := h.projects.UpdateProject(projectID, updates); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": "Failed to update project: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Project updated successfully",
	})
}

// DeleteProject deletes a project
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.projects.DeleteProject(c.Param("id")); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrProjectNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": "Failed to delete project: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Project deleted successfully",
	})
}

// projectView adds the secret flags the Project JSON hides
func projectView(p *models.Project) gin.H {
	return gin.H{
		"project":           p,
		"has_shared_secret": p.HasSharedSecret(),
		"has_webhook":       p.WebhookCallbackURL != "",
	}
}
