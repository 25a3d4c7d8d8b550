package services

import (
	"context"
	"fmt"

	"appstore-receipt-api/internal/appstore"
	"appstore-receipt-api/internal/models"
	"appstore-receipt-api/pkg/logging"
)

// ReceiptVerifier is satisfied by *appstore.Client
type ReceiptVerifier interface {
	Verify(ctx context.Context, receiptData string, opts appstore.ValidateOptions) (*appstore.Response, error)
}

// ValidatedReceiptNotifier is satisfied by *WebhookNotifier
type ValidatedReceiptNotifier interface {
	NotifyReceiptValidated(ctx context.Context, project *models.Project, resp *appstore.Response)
}

// SecretMismatchAlerter is satisfied by *AlertService
type SecretMismatchAlerter interface {
	SecretMismatch(ctx context.Context, project *models.Project)
}

// BundleMismatchError is returned when a valid receipt belongs to another app
type BundleMismatchError struct {
	Expected string
	Actual   string
}

func (e *BundleMismatchError) Error() string {
	return fmt.Sprintf("bundle id mismatch: receipt is for %q, project expects %q", e.Actual, e.Expected)
}

// ValidateInput is one receipt validation request from a project
type ValidateInput struct {
	ReceiptData            string
	Password               *string
	ExcludeOldTransactions *bool
}

// ReceiptService validates receipts on behalf of projects
type ReceiptService struct {
	verifier ReceiptVerifier
	notifier ValidatedReceiptNotifier
	alerter  SecretMismatchAlerter
	spawn    func(func())
}

// NewReceiptService creates a new receipt service. notifier and alerter may be nil.
func NewReceiptService(verifier ReceiptVerifier, notifier ValidatedReceiptNotifier, alerter SecretMismatchAlerter) *ReceiptService {
	return &ReceiptService{
		verifier: verifier,
		notifier: notifier,
		alerter:  alerter,
		spawn:    func(f func()) { go f() },
	}
}

// Validate verifies a receipt for project. The shared secret is, in order,
// the request password, the project's secret, then the verifier's default.
// Nothing about the result is stored.
func (s *ReceiptService) Validate(ctx context.Context, project *models.Project, input ValidateInput) (*appstore.Response, error) {
	opts := appstore.ValidateOptions{ExcludeOldTransactions: input.ExcludeOldTransactions}
	switch {
	case input.Password != nil && *input.Password != "":
		opts.SharedSecret = input.Password
	case project.HasSharedSecret():
		secret := project.SharedSecret
		opts.SharedSecret = &secret
	}

	resp, err := s.verifier.Verify(ctx, input.ReceiptData, opts)
	if err != nil {
		if kind, ok := appstore.KindOf(err); ok && kind == appstore.ErrorKindSharedSecretMismatch && s.alerter != nil {
			s.spawn(func() { s.alerter.SecretMismatch(context.Background(), project) })
		}
		logging.Warnf("Receipt validation failed - project: %s, error: %v", project.ProjectID, err)
		return nil, err
	}

	if project.BundleID != "" && resp.Receipt.BundleID != project.BundleID {
		logging.Warnf("Receipt bundle mismatch - project: %s, bundle: %s", project.ProjectID, resp.Receipt.BundleID)
		return nil, &BundleMismatchError{Expected: project.BundleID, Actual: resp.Receipt.BundleID}
	}

	logging.Infof("Receipt validated - project: %s, environment: %s, purchases: %d",
		project.ProjectID, resp.Environment, len(resp.Receipt.InApp))

	if s.notifier != nil && project.WebhookCallbackURL != "" {
		s.spawn(func() { s.notifier.NotifyReceiptValidated(context.Background(), project, resp) })
	}

	return resp, nil
}
