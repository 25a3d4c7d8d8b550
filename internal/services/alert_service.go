package services

import (
	"context"
	"time"

	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/pkg/logging"
)

// AlertThrottle hands out at most one slot per key and ttl
type AlertThrottle interface {
	AcquireAlertSlot(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertMailer delivers operator alerts
type AlertMailer interface {
	SendSecretMismatchAlert(ctx context.Context, project *models.Project) error
}

// AlertService e-mails project contacts about configuration problems,
// at most once per cooldown per project
type AlertService struct {
	throttle AlertThrottle
	mailer   AlertMailer
	cooldown time.Duration
}

// NewAlertService creates a new alert service
func NewAlertService(throttle AlertThrottle, mailer AlertMailer, cooldown time.Duration) *AlertService {
	return &AlertService{throttle: throttle, mailer: mailer, cooldown: cooldown}
}

// SecretMismatch alerts the project contact that its shared secret was rejected
func (s *AlertService) SecretMismatch(ctx context.Context, project *models.Project) {
	if project.ContactEmail == "" {
		return
	}

	ok, err := s.throttle.AcquireAlertSlot(ctx, "secret_mismatch:"+project.ProjectID, s.cooldown)
	if err != nil {
		logging.Errorf("Secret mismatch alert throttle failed - project: %s, error: %v", project.ProjectID, err)
		return
	}
	if !ok {
		return
	}

	if err := s.mailer.SendSecretMismatchAlert(ctx, project); err != nil {
		logging.Errorf("Secret mismatch alert failed - project: %s, error: %v", project.ProjectID, err)
		return
	}
	logging.Infof("Secret mismatch alert sent - project: %s", project.ProjectID)
}
