package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// Project is an app registered to validate receipts through this service
type Project struct {
	BaseModel
	ProjectID    string `json:"project_id" gorm:"uniqueIndex;not null"`
	ProjectName  string `json:"project_name" gorm:"not null"`
	APIKey       string `json:"api_key" gorm:"uniqueIndex;not null"`
	IsActive     bool   `json:"is_active" gorm:"default:true"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email"`
	RateLimit    int    `json:"rate_limit" gorm:"default:0"` // requests per minute, 0 uses the configured default

	// iOS bundle ID; when set, receipts of other bundles are rejected
	BundleID string `json:"bundle_id" gorm:"index"`
	// App Store shared secret, sent as the verifyReceipt password
	SharedSecret string `json:"-" gorm:"type:varchar(255)"`

	// Webhook called after each successful validation
	WebhookCallbackURL string `json:"webhook_callback_url" gorm:"type:varchar(500)"`
	WebhookSecret      string `json:"-" gorm:"type:varchar(255)"`
}

// HasSharedSecret reports whether a shared secret is configured
func (p *Project) HasSharedSecret() bool {
	return p.SharedSecret != ""
}
