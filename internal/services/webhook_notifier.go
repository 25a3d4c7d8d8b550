package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"appstore-receipt-api/internal/appstore"
	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/pkg/logging"

	"github.com/google/uuid"
)

// WebhookNotifier tells a project's backend about validated receipts
type WebhookNotifier struct {
	httpClient  *http.Client
	retryDelays []time.Duration
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Retry schedule: 1s, 5s, 30s (3 attempts total)
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// WebhookPayload is the body posted to the project's backend
type WebhookPayload struct {
	EventID     string            `json:"event_id"`
	Event       string            `json:"event"` // receipt.validated
	ProjectID   string            `json:"project_id"`
	BundleID    string            `json:"bundle_id"`
	Environment string            `json:"environment"`
	Purchases   []WebhookPurchase `json:"purchases"`
	Timestamp   string            `json:"timestamp"` // ISO 8601 format
}

// WebhookPurchase summarises one in-app purchase line
type WebhookPurchase struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDate          string `json:"purchase_date"`
	ExpiresDate           string `json:"expires_date,omitempty"`
	Cancelled             bool   `json:"cancelled"`
}

// NewReceiptValidatedPayload builds the receipt.validated event for resp
func NewReceiptValidatedPayload(projectID string, resp *appstore.Response) WebhookPayload {
	purchases := make([]WebhookPurchase, 0, len(resp.Receipt.InApp))
	for _, p := range resp.Receipt.InApp {
		purchase := WebhookPurchase{
			ProductID:             p.ProductID,
			TransactionID:         p.TransactionID,
			OriginalTransactionID: p.OriginalTransactionID,
			PurchaseDate:          p.PurchaseDate.Format(time.RFC3339),
			Cancelled:             p.CancellationDate != nil,
		}
		if p.SubscriptionExpirationDate != nil {
			purchase.ExpiresDate = p.SubscriptionExpirationDate.Format(time.RFC3339)
		}
		purchases = append(purchases, purchase)
	}

	return WebhookPayload{
		EventID:     uuid.NewString(),
		Event:       "receipt.validated",
		ProjectID:   projectID,
		BundleID:    resp.Receipt.BundleID,
		Environment: string(resp.Environment),
		Purchases:   purchases,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// NotifyReceiptValidated sends the event to the project's webhook, if any.
// It blocks through the retry schedule; callers run it in a goroutine.
func (wn *WebhookNotifier) NotifyReceiptValidated(ctx context.Context, project *models.Project, resp *appstore.Response) {
	if project.WebhookCallbackURL == "" {
		return
	}

	payload := NewReceiptValidatedPayload(project.ProjectID, resp)
	wn.sendWithRetry(ctx, project.WebhookCallbackURL, project.WebhookSecret, payload)
}

func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, callbackURL string, secret string, payload WebhookPayload) {
	maxRetries := len(wn.retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.sendWebhook(ctx, callbackURL, secret, payload)
		if err == nil {
			logging.Infof("Webhook notification sent successfully - url: %s, event: %s, attempt: %d",
				callbackURL, payload.EventID, attempt+1)
			return
		}

		logging.Errorf("Webhook notification failed - url: %s, event: %s, attempt: %d, error: %v",
			callbackURL, payload.EventID, attempt+1, err)

		if attempt < maxRetries-1 {
			select {
			case <-time.After(wn.retryDelays[attempt]):
			case <-ctx.Done():
				return
			}
		}
	}

	logging.Errorf("Webhook notification failed after %d attempts - url: %s, event: %s",
		maxRetries, callbackURL, payload.EventID)
}

func (wn *WebhookNotifier) sendWebhook(ctx context.Context, callbackURL string, secret string, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ReceiptService-Webhook/1.0")
	if secret != "" {
		req.Header.Set("X-Receipt-Signature", SignWebhookPayload(jsonData, secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// SignWebhookPayload returns the hex HMAC-SHA256 of payload
func SignWebhookPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
