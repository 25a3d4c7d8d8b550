package services

import (
	"context"
	"fmt"
	"html"

	"appstore-receipt-api/internal/models"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// BrevoService sends operator e-mails through Brevo
type BrevoService struct {
	client      *brevo.APIClient
	FromEmail   string
	FromName    string
	ServiceName string
}

// NewBrevoService creates a new Brevo service instance
func NewBrevoService(apiKey, fromEmail, fromName, serviceName string) *BrevoService {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)

	return &BrevoService{
		client:      brevo.NewAPIClient(cfg),
		FromEmail:   fromEmail,
		FromName:    fromName,
		ServiceName: serviceName,
	}
}

// SendSecretMismatchAlert tells a project's contact that Apple rejected the
// configured shared secret (status 21004).
func (s *BrevoService) SendSecretMismatchAlert(ctx context.Context, project *models.Project) error {
	if project.ContactEmail == "" {
		return fmt.Errorf("project %s has no contact email", project.ProjectID)
	}

	subject, htmlBody, text := secretMismatchEmail(s.ServiceName, project)
	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.FromName,
			Email: s.FromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: project.ContactEmail, Name: project.ProjectName},
		},
		Subject:     subject,
		HtmlContent: htmlBody,
		TextContent: text,
	}

	if _, _, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, email); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func secretMismatchEmail(serviceName string, project *models.Project) (subject, htmlBody, text string) {
	subject = fmt.Sprintf("[%s] App Store shared secret rejected for %s", serviceName, project.ProjectName)
	htmlBody = fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>Shared secret rejected</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h1 style="color: #333;">Shared secret rejected</h1>
			<p style="color: #666;">The App Store answered status 21004 while validating a receipt for project <b>%s</b> (%s).</p>
			<p style="color: #666;">The shared secret sent does not match the one on file in App Store Connect. Auto-renewable subscription receipts cannot be validated until it is updated.</p>
		</body>
		</html>
	`, html.EscapeString(project.ProjectName), html.EscapeString(project.ProjectID))
	text = fmt.Sprintf(`
		Shared secret rejected

		The App Store answered status 21004 while validating a receipt for project %s (%s).
		The shared secret sent does not match the one on file in App Store Connect.
	`, project.ProjectName, project.ProjectID)
	return subject, htmlBody, text
}
