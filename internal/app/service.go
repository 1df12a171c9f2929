package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/authpw"
	"github.com/Roizz-soul/Solublog/internal/blog"
	"github.com/Roizz-soul/Solublog/internal/notification"
	"github.com/Roizz-soul/Solublog/internal/rbac"
	"github.com/Roizz-soul/Solublog/internal/session"
	"github.com/Roizz-soul/Solublog/internal/store"
)

const probeTimeout = 2 * time.Second

// SessionStore is the session side the HTTP layer needs.
type SessionStore interface {
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

// Deps are the collaborators wired by cmd/api.
type Deps struct {
	Store          store.Backend
	Sessions       SessionStore
	Auth           *authpw.Service
	Blog           *blog.Service
	Notifications  *notification.Service
	SMTPConfigured bool
	Logger         *slog.Logger
}

type Service struct {
	store          store.Backend
	sessions       SessionStore
	auth           *authpw.Service
	blog           *blog.Service
	notifications  *notification.Service
	smtpConfigured bool
	logger         *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:          deps.Store,
		sessions:       deps.Sessions,
		auth:           deps.Auth,
		blog:           deps.Blog,
		notifications:  deps.Notifications,
		smtpConfigured: deps.SMTPConfigured,
		logger:         logger,
	}
}

func (s *Service) Auth() *authpw.Service { return s.auth }

func (s *Service) Blog() *blog.Service { return s.blog }

func (s *Service) Notifications() *notification.Service { return s.notifications }

// SMTPConfigured reports whether account emails are delivered. When false the
// auth handlers hand tokens back in the response instead.
func (s *Service) SMTPConfigured() bool { return s.smtpConfigured }

// ResolveUser maps a session token to its user. A missing, expired or
// orphaned token is Unauthorized; a user who has not confirmed their email
// is Unconfirmed.
func (s *Service) ResolveUser(ctx context.Context, token string) (store.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return store.User{}, apperror.Unauthorized()
	}
	userID, err := s.sessions.Lookup(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return store.User{}, apperror.Unauthorized()
	}
	if err != nil {
		s.logger.Error("session lookup failed", "error", err)
		return store.User{}, apperror.Store(err)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperror.Unauthorized()
	}
	if err != nil {
		s.logger.Error("user lookup failed", "user_id", userID, "error", err)
		return store.User{}, apperror.Store(err)
	}
	if !user.IsConfirmed {
		return store.User{}, apperror.Unconfirmed()
	}
	return user, nil
}

// AuthorOf is the identity the engines record on writes.
func AuthorOf(user store.User) blog.Author {
	return blog.Author{ID: user.ID, Name: user.DisplayName()}
}

type Status struct {
	Redis bool `json:"redis"`
	DB    bool `json:"db"`
}

// Status probes the session cache and the document store concurrently.
func (s *Service) Status(ctx context.Context) Status {
	var status Status
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		status.Redis = s.sessions.Ping(pctx) == nil
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		status.DB = s.store.Ping(pctx) == nil
		return nil
	})
	_ = g.Wait()
	return status
}

func (s *Service) Stats(ctx context.Context) (store.Counts, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		s.logger.Error("count documents failed", "error", err)
		return store.Counts{}, apperror.Store(err)
	}
	return counts, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		return nil, apperror.Store(err)
	}
	if users == nil {
		users = []store.User{}
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperror.NotFound("User not found")
	}
	if err != nil {
		s.logger.Error("get user failed", "user_id", id, "error", err)
		return store.User{}, apperror.Store(err)
	}
	return user, nil
}

// UpdateProfile applies update to the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, user store.User, update store.ProfileUpdate) (store.User, error) {
	updated, err := s.store.UpdateProfile(ctx, user.ID, update)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, apperror.NotFound("User not found")
	}
	if err != nil {
		s.logger.Error("update profile failed", "user_id", user.ID, "error", err)
		return store.User{}, apperror.Store(err)
	}
	s.logger.Info("profile updated", "user_id", user.ID)
	return updated, nil
}

// DeleteUser removes the caller's own account and revokes the session used
// to do it. Posts keep their copied display name.
func (s *Service) DeleteUser(ctx context.Context, actor store.User, token, id string) error {
	if !rbac.Can(rbac.RelationOf(actor.ID, id), rbac.ActionDelete) {
		return apperror.Forbidden("You can only delete your own account")
	}
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound("User not found")
	}
	if err != nil {
		s.logger.Error("delete user failed", "user_id", id, "error", err)
		return apperror.Store(err)
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.Warn("revoke session after account deletion failed", "user_id", id, "error", err)
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}
