package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"appstore-receipt-api/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeThrottle struct {
	held map[string]bool
	err  error
	ttls []time.Duration
}

func (f *fakeThrottle) AcquireAlertSlot(_ context.Context, key string, ttl time.Duration) (bool, error) {
	f.ttls = append(f.ttls, ttl)
	if f.err != nil {
		return false, f.err
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) SendSecretMismatchAlert(_ context.Context, project *models.Project) error {
	f.sent = append(f.sent, project.ContactEmail)
	return nil
}

func TestAlertServiceSendsOncePerCooldown(t *testing.T) {
	throttle := &fakeThrottle{held: map[string]bool{}}
	mailer := &fakeMailer{}
	svc := NewAlertService(throttle, mailer, time.Hour)
	project := &models.Project{ProjectID: "alpha", ContactEmail: "ops@example.com"}

	svc.SecretMismatch(context.Background(), project)
	svc.SecretMismatch(context.Background(), project)

	assert.Equal(t, []string{"ops@example.com"}, mailer.sent)
	assert.Equal(t, []time.Duration{time.Hour, time.Hour}, throttle.ttls)
}

func TestAlertServiceSkipsWithoutContact(t *testing.T) {
	throttle := &fakeThrottle{held: map[string]bool{}}
	mailer := &fakeMailer{}

	NewAlertService(throttle, mailer, time.Hour).SecretMismatch(context.Background(), &models.Project{ProjectID: "alpha"})

	assert.Empty(t, mailer.sent)
	assert.Empty(t, throttle.ttls)
}

func TestAlertServiceThrottleFailureSendsNothing(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewAlertService(&fakeThrottle{err: errors.New("redis down")}, mailer, time.Hour)

	svc.SecretMismatch(context.Background(), &models.Project{ProjectID: "alpha", ContactEmail: "ops@example.com"})

	assert.Empty(t, mailer.sent)
}

func TestSecretMismatchEmail(t *testing.T) {
	subject, html, text := secretMismatchEmail("Receipt Service", &models.Project{ProjectID: "alpha", ProjectName: "Alpha"})

	assert.Equal(t, "[Receipt Service] App Store shared secret rejected for Alpha", subject)
	assert.Contains(t, html, "21004")
	assert.True(t, strings.Contains(text, "Alpha (alpha)"))
}

func TestSecretMismatchEmailEscapesHTML(t *testing.T) {
	_, html, text := secretMismatchEmail("Receipt Service", &models.Project{ProjectID: "a&b", ProjectName: "<script>x</script>"})

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;x&lt;/script&gt;")
	assert.Contains(t, html, "a&amp;b")
	assert.Contains(t, text, "<script>x</script>", "plain text part is not HTML")
}
