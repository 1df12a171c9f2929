// Package notification records events for users and lists them newest first.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/store"
)

// TypeComment marks a reply to one of the recipient's posts.
const TypeComment = "comment"

type Store interface {
	InsertNotification(ctx context.Context, n store.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error)
}

// Event describes a notification to deliver. ActorName is copied as-is and
// never refreshed.
type Event struct {
	RecipientID     string
	ActorName       string
	Message         string
	Type            string
	RelatedEntityID string
	IsImportant     bool
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(s Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the event. Failures are logged and never reach the caller.
func (s *Service) Create(ctx context.Context, ev Event) {
	if ev.RecipientID == "" {
		s.logger.Warn("notification dropped: no recipient", "type", ev.Type, "related_entity_id", ev.RelatedEntityID)
		return
	}
	n := store.Notification{
		UserID:          ev.RecipientID,
		UserName:        ev.ActorName,
		Message:         ev.Message,
		Type:            ev.Type,
		RelatedEntityID: ev.RelatedEntityID,
		IsImportant:     ev.IsImportant,
		CreatedAt:       s.now(),
	}
	// Runs even if the request context is already cancelled.
	if err := s.store.InsertNotification(context.WithoutCancel(ctx), n); err != nil {
		s.logger.Error("notification insert failed",
			"recipient_id", ev.RecipientID,
			"type", ev.Type,
			"related_entity_id", ev.RelatedEntityID,
			"error", err)
	}
}

// List returns userID's notifications, newest first. limit <= 0 means all.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	if limit < 0 {
		limit = 0
	}
	items, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if items == nil {
		items = []store.Notification{}
	}
	return items, nil
}

// CommentMessage is the text shown to a post owner when someone replies.
func CommentMessage(actorName string) string {
	return actorName + " commented on your post"
}
