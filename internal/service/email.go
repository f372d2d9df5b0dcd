package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/soberly/recovery/internal/model"
)

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

func (s *EmailService) SendWelcomeEmail(user *model.User) error {
	subject, body := welcomeEmailTemplate(user.Username, s.appURL, s.appName)
	return s.send("welcome", user.Email, subject, body)
}

// SendMilestoneAchieved congratulates the user on a completed milestone.
func (s *EmailService) SendMilestoneAchieved(user *model.User, m *model.Milestone) error {
	medal := ""
	if m.Medal != nil {
		medal = *m.Medal
	}
	subject, body := milestoneEmailTemplate(user.Username, m.MilestoneDays, medal, m.CompletionPercentage, s.appName)
	return s.send("milestone_achieved", user.Email, subject, body)
}

func (s *EmailService) SendAccountDeletedEmail(user *model.User) error {
	subject, body := accountDeletedEmailTemplate(user.Username, s.appName)
	return s.send("account_deleted", user.Email, subject, body)
}

func (s *EmailService) send(kind, to, subject, body string) error {
	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", to, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	slog.Info("email sent", "type", kind, "to", to)
	return nil
}
