// Package blog is the post aggregation engine: threaded posts, reply
// bookkeeping, ratings and text search.
package blog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/notification"
	"github.com/Roizz-soul/Solublog/internal/rbac"
	"github.com/Roizz-soul/Solublog/internal/store"
)

// MinRating and MaxRating bound the score a user may give a post.
const (
	MinRating = 1
	MaxRating = 5
)

// Store is the slice of store.Backend the engine needs.
type Store interface {
	CreatePost(ctx context.Context, post store.Post) (store.Post, error)
	GetPost(ctx context.Context, id string) (store.Post, error)
	ListPosts(ctx context.Context) ([]store.Post, error)
	SearchPosts(ctx context.Context, query string) ([]store.Post, error)
	UpdatePost(ctx context.Context, id string, title, content *string, at time.Time) error
	DeletePost(ctx context.Context, id string) ([]string, error)
	AddRating(ctx context.Context, postID string, rating store.Rating) (float64, error)
}

// Notifier records notifications for events the engine raises.
type Notifier interface {
	Create(ctx context.Context, ev notification.Event)
}

// Index mirrors posts into a search index and answers queries from it.
type Index interface {
	Search(ctx context.Context, query string) ([]store.Post, error)
	IndexPost(post store.Post)
	DeletePosts(ids []string)
}

// Author is the confirmed user performing a write.
type Author struct {
	ID   string
	Name string
}

// Service owns post writes, reads and ratings on top of a Store.
type Service struct {
	store    Store
	notifier Notifier
	index    Index
	policy   rbac.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithIndex routes search through idx and keeps it updated on writes.
func WithIndex(idx Index) Option {
	return func(s *Service) { s.index = idx }
}

func WithPolicy(p rbac.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an engine over st. A nil logger means slog.Default.
func NewService(st Store, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePostInput is the caller-supplied part of a new post or reply.
type CreatePostInput struct {
	Title    *string
	Content  string
	ParentID *string
}

// CreatePost stores a root post or, when ParentID is set, a reply linked
// into its parent. Replies ignore Title. The parent's owner is notified.
func (s *Service) CreatePost(ctx context.Context, author Author, in CreatePostInput) (store.Post, error) {
	content := in.Content
	var title *string
	var parent store.Post

	if in.ParentID == nil {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" || strings.TrimSpace(content) == "" {
			return store.Post{}, apperror.Validation("Title and content are required.")
		}
		t := strings.TrimSpace(*in.Title)
		title = &t
	} else {
		if strings.TrimSpace(content) == "" {
			return store.Post{}, apperror.Validation("Content is required.")
		}
		var err error
		parent, err = s.store.GetPost(ctx, *in.ParentID)
		if err != nil {
			return store.Post{}, s.mapStoreError(err, "Parent post not found")
		}
	}

	now := s.now()
	post, err := s.store.CreatePost(ctx, store.Post{
		Title:     title,
		Content:   content,
		UserID:    author.ID,
		UserName:  author.Name,
		ParentID:  in.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return store.Post{}, s.mapStoreError(err, "Parent post not found")
	}
	s.logger.Info("post created", "post_id", post.ID, "user_id", author.ID, "is_reply", post.IsReply)

	if s.index != nil {
		s.index.IndexPost(post)
	}
	if post.IsReply && s.notifier != nil {
		s.notifier.Create(ctx, notification.Event{
			RecipientID:     parent.UserID,
			ActorName:       author.Name,
			Message:         notification.CommentMessage(author.Name),
			Type:            notification.TypeComment,
			RelatedEntityID: post.ID,
		})
	}
	return post, nil
}

// GetPost is readable by anyone.
func (s *Service) GetPost(ctx context.Context, id string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return store.Post{}, s.mapStoreError(err, "Post not found")
	}
	return post, nil
}

// ListPosts returns every post in insertion order.
func (s *Service) ListPosts(ctx context.Context) ([]store.Post, error) {
	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, s.mapStoreError(err, "")
	}
	return nonNil(posts), nil
}

type UpdatePostInput struct {
	Title   *string
	Content *string
}

// UpdatePost edits title and/or content. Only the owner may edit unless the
// policy opens editing to everyone.
func (s *Service) UpdatePost(ctx context.Context, actor Author, id string, in UpdatePostInput) (store.Post, error) {
	title := trimmed(in.Title)
	content := nonBlank(in.Content)
	if title == nil && content == nil {
		return store.Post{}, apperror.Validation("Title or content is required.")
	}

	existing, err := s.store.GetPost(ctx, id)
	if err != nil {
		return store.Post{}, s.mapStoreError(err, "Post not found")
	}
	if !s.policy.Allows(actor.ID, existing.UserID, rbac.ActionEdit) {
		return store.Post{}, apperror.Forbidden("You can only edit your own posts")
	}
	// Replies have no title.
	if existing.IsReply {
		title = nil
		if content == nil {
			return store.Post{}, apperror.Validation("Content is required.")
		}
	}

	if err := s.store.UpdatePost(ctx, id, title, content, s.now()); err != nil {
		return store.Post{}, s.mapStoreError(err, "Post not found")
	}
	updated, err := s.store.GetPost(ctx, id)
	if err != nil {
		return store.Post{}, s.mapStoreError(err, "Post not found")
	}
	s.logger.Info("post updated", "post_id", id, "user_id", actor.ID)
	if s.index != nil {
		s.index.IndexPost(updated)
	}
	return updated, nil
}

// DeletePost removes the post and all of its descendants, and unlinks it
// from its parent. It returns the ids removed.
func (s *Service) DeletePost(ctx context.Context, actor Author, id string) ([]string, error) {
	existing, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err, "Post not found")
	}
	if !s.policy.Allows(actor.ID, existing.UserID, rbac.ActionDelete) {
		return nil, apperror.Forbidden("You can only delete your own posts")
	}

	removed, err := s.store.DeletePost(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err, "Post not found")
	}
	s.logger.Info("post deleted", "post_id", id, "user_id", actor.ID, "removed", len(removed))
	if s.index != nil {
		s.index.DeletePosts(removed)
	}
	return removed, nil
}

// RatePost records one vote per rater and returns the new average.
func (s *Service) RatePost(ctx context.Context, rater Author, id string, rating int) (float64, error) {
	if rating < MinRating || rating > MaxRating {
		return 0, apperror.Validation("Rating must be between 1 and 5")
	}
	avg, err := s.store.AddRating(ctx, id, store.Rating{UserID: rater.ID, Rating: rating})
	if errors.Is(err, store.ErrAlreadyRated) {
		return 0, apperror.Validation("User has already rated this post")
	}
	if err != nil {
		return 0, s.mapStoreError(err, "Post not found")
	}
	s.logger.Info("post rated", "post_id", id, "user_id", rater.ID, "average_rating", avg)
	return avg, nil
}

// SearchPosts matches query case-insensitively against title or content.
// An empty query returns every post.
func (s *Service) SearchPosts(ctx context.Context, query string) ([]store.Post, error) {
	var (
		posts []store.Post
		err   error
	)
	if s.index != nil {
		posts, err = s.index.Search(ctx, query)
	} else {
		posts, err = s.store.SearchPosts(ctx, query)
	}
	if err != nil {
		return nil, s.mapStoreError(err, "")
	}
	return nonNil(posts), nil
}

func (s *Service) mapStoreError(err error, notFound string) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if notFound != "" && errors.Is(err, store.ErrNotFound) {
		return apperror.NotFound(notFound)
	}
	s.logger.Error("store failure", "error", err)
	return apperror.Store(err)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func nonBlank(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

func nonNil(posts []store.Post) []store.Post {
	if posts == nil {
		return []store.Post{}
	}
	return posts
}
