package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Roizz-soul/Solublog/internal/store"
)

const maxHits = 100

// PostStore is the store side of search: native substring search plus id hydration.
type PostStore interface {
	SearchPosts(ctx context.Context, query string) ([]store.Post, error)
	GetPostsByIDs(ctx context.Context, ids []string) ([]store.Post, error)
	ListPosts(ctx context.Context) ([]store.Post, error)
}

// Service is the facade that tries the index first and falls back to the store.
type Service struct {
	engine  Engine
	posts   PostStore
	logger  *slog.Logger
	pending sync.WaitGroup
}

// NewService creates a search service. engine may be nil when no index is configured.
func NewService(engine Engine, posts PostStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{engine: engine, posts: posts, logger: logger}
	if r, ok := engine.(Recoverer); ok {
		r.OnRecover(func() { s.Reindex(context.Background()) })
	}
	return s
}

func (s *Service) indexReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search answers non-empty queries from the index when it is healthy and
// everything else from the store. Index hits are narrowed to posts whose
// title or content contains the query; a full page of hits means the index
// may have more, so the store answers instead.
func (s *Service) Search(ctx context.Context, query string) ([]store.Post, error) {
	if query != "" && s.indexReady() {
		ids, err := s.engine.Search(query, maxHits)
		switch {
		case err != nil:
			s.logger.Warn("search index error, falling back to store search", "error", err)
		case len(ids) >= maxHits:
			s.logger.Debug("search index hit limit, using store search", "query", query)
		default:
			return s.hydrate(ctx, query, ids)
		}
	}
	return s.posts.SearchPosts(ctx, query)
}

func (s *Service) hydrate(ctx context.Context, query string, ids []string) ([]store.Post, error) {
	posts, err := s.posts.GetPostsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	matched := posts[:0]
	for _, p := range posts {
		if p.Matches(query) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// IndexPost pushes a post to the index in the background.
func (s *Service) IndexPost(post store.Post) {
	if !s.indexReady() {
		return
	}
	record := RecordFromPost(post)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.engine.IndexPosts([]PostRecord{record}); err != nil {
			s.logger.Warn("index post failed", "post_id", record.ID, "error", err)
		}
	}()
}

// DeletePosts removes posts from the index in the background.
func (s *Service) DeletePosts(ids []string) {
	if !s.indexReady() || len(ids) == 0 {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.engine.DeletePosts(ids); err != nil {
			s.logger.Warn("delete posts from index failed", "post_ids", ids, "error", err)
		}
	}()
}

// Reindex loads every post from the store and pushes it to the index.
// Called at startup and whenever the engine comes back after an outage.
func (s *Service) Reindex(ctx context.Context) {
	if !s.indexReady() {
		return
	}
	posts, err := s.posts.ListPosts(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", "error", err)
		return
	}
	records := make([]PostRecord, 0, len(posts))
	for _, p := range posts {
		records = append(records, RecordFromPost(p))
	}
	if err := s.engine.IndexPosts(records); err != nil {
		s.logger.Warn("reindex posts failed", "count", len(records), "error", err)
		return
	}
	s.logger.Info("search index rebuilt", "count", len(records))
}

// Wait blocks until background index updates have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}
