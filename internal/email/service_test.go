package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	failures int
	calls    int
	sent     []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.calls++
	if d.calls <= d.failures {
		return errors.New("connection refused")
	}
	d.sent = append(d.sent, m...)
	return nil
}

func configured() Config {
	return Config{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", FromName: "Solublog"}
}

func newTestService(cfg Config, d Dialer) *Service {
	svc := NewService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))).WithDialer(d)
	svc.baseDelay = time.Millisecond
	return svc
}

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: 587, From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: 587}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: 587, From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config, nil)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendNotConfigured(t *testing.T) {
	d := &fakeDialer{}
	svc := newTestService(Config{}, d)
	if err := svc.Send(context.Background(), "a@example.com", "hi", "<p>hi</p>"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Send() error = %v, want ErrNotConfigured", err)
	}
	if d.calls != 0 {
		t.Fatalf("expected no delivery attempts, got %d", d.calls)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	d := &fakeDialer{failures: 2}
	svc := newTestService(configured(), d)

	if err := svc.Send(context.Background(), "a@example.com", "Subject", "<p>body</p>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if d.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", d.calls)
	}
	if len(d.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(d.sent))
	}
	if got := d.sent[0].GetHeader("To"); len(got) != 1 || got[0] != "a@example.com" {
		t.Errorf("unexpected To header: %v", got)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{failures: 10}
	svc := newTestService(configured(), d)

	err := svc.Send(context.Background(), "a@example.com", "Subject", "<p>body</p>")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if d.calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, d.calls)
	}
}

func TestSendStopsOnCancelledContext(t *testing.T) {
	d := &fakeDialer{failures: 10}
	svc := newTestService(configured(), d)
	svc.baseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Send(ctx, "a@example.com", "Subject", "<p>body</p>")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if d.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", d.calls)
	}
}

func TestSendConfirmationEmail(t *testing.T) {
	d := &fakeDialer{}
	svc := newTestService(configured(), d)

	if err := svc.SendConfirmationEmail(context.Background(), "ada@example.com", "Ada", "https://blog.example.com/confirm-email/abc123"); err != nil {
		t.Fatalf("SendConfirmationEmail() error = %v", err)
	}
	if got := d.sent[0].GetHeader("Subject"); len(got) != 1 || got[0] != "Confirm your Solublog account" {
		t.Errorf("unexpected subject: %v", got)
	}
}

func TestRenderConfirmationTemplate(t *testing.T) {
	html, err := renderTemplate(confirmationTemplate, ConfirmationData{
		AppName:    "Solublog",
		UserName:   "Test User",
		ConfirmURL: "https://example.com/confirm-email/abc123",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Solublog") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/confirm-email/abc123") {
		t.Error("template should contain confirmation URL")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	html, err := renderTemplate(passwordResetTemplate, PasswordResetData{
		AppName:  "Solublog",
		UserName: "Test User",
		ResetURL: "https://example.com/reset-password/xyz789",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "https://example.com/reset-password/xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}

func TestRenderEscapesUserName(t *testing.T) {
	html, err := renderTemplate(confirmationTemplate, ConfirmationData{
		AppName:  "Solublog",
		UserName: "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("user name should be escaped")
	}
}
