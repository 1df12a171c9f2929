// Package email sends account emails over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned by Send when SMTP settings are missing.
var ErrNotConfigured = errors.New("email not configured")

const maxAttempts = 3

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

// Dialer delivers composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service renders and delivers emails
type Service struct {
	config    Config
	dialer    Dialer
	logger    *slog.Logger
	baseDelay time.Duration
}

// NewService creates a new email service
func NewService(config Config, logger *slog.Logger) *Service {
	if config.AppName == "" {
		config.AppName = "Solublog"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:    config,
		dialer:    gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		logger:    logger,
		baseDelay: time.Second,
	}
}

// WithDialer replaces the SMTP transport.
func (s *Service) WithDialer(d Dialer) *Service {
	s.dialer = d
	return s
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port > 0 && s.config.From != ""
}

// Send delivers an HTML email, retrying with exponential backoff (1s, 2s, 4s).
func (s *Service) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	m := gomail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", "Please view this email in an HTML-capable email client.")
	m.AddAlternative("text/html", htmlBody)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = s.dialer.DialAndSend(m); lastErr == nil {
			s.logger.Info("email sent", "to", to, "subject", subject)
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := s.baseDelay << attempt
		s.logger.Warn("email send failed, retrying", "to", to, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("email send cancelled: %w", ctx.Err())
		}
	}
	return fmt.Errorf("send email to %s after %d attempts: %w", to, maxAttempts, lastErr)
}

type ConfirmationData struct {
	AppName    string
	UserName   string
	ConfirmURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// SendConfirmationEmail asks a new user to confirm their address.
func (s *Service) SendConfirmationEmail(ctx context.Context, to, userName, confirmURL string) error {
	html, err := renderTemplate(confirmationTemplate, ConfirmationData{
		AppName:    s.config.AppName,
		UserName:   userName,
		ConfirmURL: confirmURL,
	})
	if err != nil {
		return fmt.Errorf("render confirmation template: %w", err)
	}
	return s.Send(ctx, to, "Confirm your "+s.config.AppName+" account", html)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(ctx context.Context, to, userName, resetURL string) error {
	html, err := renderTemplate(passwordResetTemplate, PasswordResetData{
		AppName:  s.config.AppName,
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return s.Send(ctx, to, "Reset your "+s.config.AppName+" password", html)
}

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Confirm your {{.AppName}} account</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f855a; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f855a; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #2f855a; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Welcome, {{.UserName}}!</h2>

    <p>Your account is almost ready. Confirm your email address to start posting.</p>

    <p>
        <a href="{{.ConfirmURL}}" class="button">Confirm Email</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ConfirmURL}}</p>

    <div class="footer">
        <p>If you didn't create an account with {{.AppName}}, you can safely ignore this email.</p>
    </div>
</body>
</html>`))

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f855a; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f855a; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Password Reset Request</h2>

    <p>Hi {{.UserName}},</p>

    <p>We received a request to reset your password. Click the button below to choose a new one:</p>

    <p>
        <a href="{{.ResetURL}}" class="button">Reset Password</a>
    </p>

    <div class="warning">
        <strong>Important:</strong> This reset link will expire in 1 hour.
    </div>

    <div class="footer">
        <p>If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.</p>
    </div>
</body>
</html>`))
