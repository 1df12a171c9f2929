package store

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyRated = errors.New("already rated")
	ErrEmailTaken   = errors.New("email already registered")
)

type Profile struct {
	FullName       string
	UserName       string
	Bio            string
	Location       string
	Occupation     string
	Interests      []string
	Skills         []string
	SocialLinks    map[string]string
	Portfolio      string
	ProfilePicture string
}

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	IsConfirmed         bool
	ConfirmationToken   string
	ResetToken          string
	ResetTokenExpiresAt *time.Time
	Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName is the name copied onto posts and notifications the user authors.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.UserName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// ProfileUpdate carries the profile fields to change. Nil leaves a field untouched.
type ProfileUpdate struct {
	FullName    *string
	UserName    *string
	Bio         *string
	Location    *string
	Occupation  *string
	Portfolio   *string
	Interests   []string
	Skills      []string
	SocialLinks map[string]string
}

type Rating struct {
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
}

// Post is a node of the reply tree. Root posts have a nil ParentID.
type Post struct {
	ID            string
	Title         *string
	Content       string
	UserID        string
	UserName      string
	ParentID      *string
	Replies       []string
	ReplyCount    int
	IsReply       bool
	Ratings       []Rating
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Matches reports whether query occurs in the title or content, ignoring case.
func (p Post) Matches(query string) bool {
	needle := strings.ToLower(query)
	if p.Title != nil && strings.Contains(strings.ToLower(*p.Title), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(p.Content), needle)
}

type Notification struct {
	ID              string
	UserID          string
	UserName        string
	Message         string
	Type            string
	Read            bool
	RelatedEntityID string
	IsImportant     bool
	CreatedAt       time.Time
}

type Counts struct {
	Users         int64
	Posts         int64
	Notifications int64
}

// AverageRating is the mean of the ratings rounded half-up to two decimals, 0 when empty.
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return math.Floor(float64(sum)*100/float64(len(ratings))+0.5) / 100
}

// NormalizeEmail is applied to every email before it reaches a backend.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
