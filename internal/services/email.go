package services

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"kelasku_app/internal/config"
)

// EmailService sends plain-text mail over SMTP
type EmailService struct {
	cfg config.SMTPConfig
}

// NewEmailService creates an email sender from explicit configuration
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendEmail delivers a single message. Returns an error when SMTP is not
// configured so callers can log and move on.
func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.cfg.Host == "" || s.cfg.Port == "" || s.cfg.User == "" || s.cfg.Password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = to
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)

	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
