package store

import (
	"context"
	"time"
)

// Backend is the document store contract shared by the Postgres, Mongo and in-memory implementations.
type Backend interface {
	Ping(ctx context.Context) error
	Close() error
	Counts(ctx context.Context) (Counts, error)

	CreatePost(ctx context.Context, post Post) (Post, error)
	GetPost(ctx context.Context, id string) (Post, error)
	ListPosts(ctx context.Context) ([]Post, error)
	GetPostsByIDs(ctx context.Context, ids []string) ([]Post, error)
	SearchPosts(ctx context.Context, query string) ([]Post, error)
	UpdatePost(ctx context.Context, id string, title, content *string, at time.Time) error
	DeletePost(ctx context.Context, id string) ([]string, error)
	AddRating(ctx context.Context, postID string, rating Rating) (float64, error)

	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)

	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ConfirmUser(ctx context.Context, token string) (User, error)
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

var _ Backend = (*PostgresStore)(nil)
