// Package authpw provides email/password accounts with email confirmation,
// Basic-credential login into Redis sessions, and password reset.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/auth"
	"github.com/Roizz-soul/Solublog/internal/session"
	"github.com/Roizz-soul/Solublog/internal/store"
	"github.com/Roizz-soul/Solublog/internal/util"
)

const minPasswordLength = 8

// UserStore defines the storage interface for auth
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ConfirmUser(ctx context.Context, token string) (store.User, error)
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) error
}

// SessionStore binds session tokens to user ids.
type SessionStore interface {
	Save(ctx context.Context, token, userID string) error
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Mailer delivers account emails.
type Mailer interface {
	IsConfigured() bool
	SendConfirmationEmail(ctx context.Context, to, userName, confirmURL string) error
	SendPasswordResetEmail(ctx context.Context, to, userName, resetURL string) error
}

type Config struct {
	PublicURL     string
	ResetTokenTTL time.Duration
}

// Service provides email/password authentication
type Service struct {
	users    UserStore
	sessions SessionStore
	mailer   Mailer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	// outstanding background deliveries
	mail sync.WaitGroup
}

// NewService creates a new auth service
func NewService(users UserStore, sessions SessionStore, mailer Mailer, cfg Config, logger *slog.Logger) *Service {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wait blocks until queued emails have been handed to the mailer.
func (s *Service) Wait() {
	s.mail.Wait()
}

// RegisterRequest contains sign-up parameters
type RegisterRequest struct {
	Email    string
	Password string
	FullName string
	UserName string
}

// RegisterResponse carries the new user. ConfirmationToken is only set when
// no mailer is configured, so local setups can still confirm accounts.
type RegisterResponse struct {
	User              store.User
	ConfirmationToken string
}

// Register creates an unconfirmed account and emails a confirmation link.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	email := store.NormalizeEmail(req.Email)
	if email == "" {
		return nil, apperror.Validation("Missing email")
	}
	if req.Password == "" {
		return nil, apperror.Validation("Missing password")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperror.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperror.Store(fmt.Errorf("hash password: %w", err))
	}
	token, err := util.NewToken()
	if err != nil {
		return nil, apperror.Store(fmt.Errorf("generate confirmation token: %w", err))
	}

	now := s.now()
	user, err := s.users.CreateUser(ctx, store.User{
		Email:             email,
		PasswordHash:      hash,
		ConfirmationToken: token,
		Profile: store.Profile{
			FullName: strings.TrimSpace(req.FullName),
			UserName: strings.TrimSpace(req.UserName),
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, apperror.Validation("Already exist")
	}
	if err != nil {
		return nil, apperror.Store(err)
	}

	resp := &RegisterResponse{User: user}
	if !s.mailer.IsConfigured() {
		resp.ConfirmationToken = token
		return resp, nil
	}
	url := s.cfg.PublicURL + "/confirm-email/" + token
	s.deliver("confirmation", user.Email, func(ctx context.Context) error {
		return s.mailer.SendConfirmationEmail(ctx, user.Email, user.DisplayName(), url)
	})
	return resp, nil
}

// Connect exchanges an "Authorization: Basic" header for a session token.
func (s *Service) Connect(ctx context.Context, authorization string) (string, error) {
	email, password, err := auth.ParseBasic(authorization)
	if err != nil {
		return "", apperror.Unauthorized()
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", apperror.Unauthorized()
	}
	if err != nil {
		return "", apperror.Store(err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", apperror.Unauthorized()
	}

	token := auth.NewSessionToken()
	if err := s.sessions.Save(ctx, token, user.ID); err != nil {
		return "", apperror.Store(err)
	}
	s.logger.Info("user connected", "user_id", user.ID)
	return token, nil
}

// Disconnect revokes the session behind token.
func (s *Service) Disconnect(ctx context.Context, token string) error {
	userID, err := s.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return apperror.Unauthorized()
	}
	if err != nil {
		return apperror.Store(err)
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return apperror.Store(err)
	}
	s.logger.Info("user disconnected", "user_id", userID)
	return nil
}

// ConfirmEmail consumes a one-time confirmation token.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (store.User, error) {
	if strings.TrimSpace(token) == "" {
		return store.User{}, apperror.Validation("Missing token")
	}
	user, err := s.users.ConfirmUser(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperror.Validation("Invalid token")
	}
	if err != nil {
		return store.User{}, apperror.Store(err)
	}
	return user, nil
}

// RequestPasswordReset issues a reset token valid for ResetTokenTTL. Unknown
// addresses succeed silently. The token is returned only when no mailer is
// configured.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return "", apperror.Validation("Email is required")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperror.Store(err)
	}

	token, err := util.NewToken()
	if err != nil {
		return "", apperror.Store(fmt.Errorf("generate reset token: %w", err))
	}
	if err := s.users.SetResetToken(ctx, user.ID, token, s.now().Add(s.cfg.ResetTokenTTL)); err != nil {
		return "", apperror.Store(err)
	}

	if !s.mailer.IsConfigured() {
		return token, nil
	}
	url := s.cfg.PublicURL + "/reset-password/" + token
	s.deliver("password_reset", user.Email, func(ctx context.Context) error {
		return s.mailer.SendPasswordResetEmail(ctx, user.Email, user.DisplayName(), url)
	})
	return "", nil
}

// ResetPassword sets a new password using a live reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return apperror.Validation("New password is required")
	}
	if len(newPassword) < minPasswordLength {
		return apperror.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperror.Store(fmt.Errorf("hash password: %w", err))
	}
	err = s.users.ResetPassword(ctx, token, hash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return apperror.Validation("Invalid or expired token")
	}
	if err != nil {
		return apperror.Store(err)
	}
	return nil
}

// deliver runs send detached from the request, with a 30s deadline.
func (s *Service) deliver(kind, to string, send func(ctx context.Context) error) {
	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Error("email delivery failed", "kind", kind, "to", to, "error", err)
		}
	}()
}
