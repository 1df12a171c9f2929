// Package search keeps an optional Meilisearch index of posts and answers
// text queries from it, falling back to the store's own substring search.
package search

import (
	"time"

	"github.com/Roizz-soul/Solublog/internal/store"
)

// Engine is an external full-text index of posts.
type Engine interface {
	Healthy() bool
	Search(query string, limit int) ([]string, error)
	IndexPosts(records []PostRecord) error
	DeletePosts(ids []string) error
}

// Recoverer is implemented by engines that can report coming back online.
// fn runs after each recovery so writes missed during the outage are replayed.
type Recoverer interface {
	OnRecover(fn func())
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ParentID  string `json:"parentId,omitempty"`
	IsReply   bool   `json:"isReply"`
	CreatedAt int64  `json:"createdAt"`
}

// RecordFromPost flattens a post for indexing.
func RecordFromPost(p store.Post) PostRecord {
	r := PostRecord{
		ID:        p.ID,
		Content:   p.Content,
		UserID:    p.UserID,
		UserName:  p.UserName,
		IsReply:   p.IsReply,
		CreatedAt: p.CreatedAt.UTC().Truncate(time.Millisecond).UnixMilli(),
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.ParentID != nil {
		r.ParentID = *p.ParentID
	}
	return r
}
