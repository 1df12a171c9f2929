package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxPosts = "solublog_posts"

// Meili implements Engine via Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	healthy   atomic.Bool
	onRecover atomic.Pointer[func()]
	done      chan struct{}
	logger    *slog.Logger
}

var (
	_ Engine    = (*Meili)(nil)
	_ Recoverer = (*Meili)(nil)
)

// NewMeili creates a Meilisearch client and configures the posts index.
// An unreachable server is not an error: the health loop picks it up later.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPosts,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxPosts, "error", err)
	}

	index := m.client.Index(idxPosts)
	filterable := []interface{}{"userId", "parentId", "isReply"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxPosts, "error", err)
	}
	searchable := []string{"title", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxPosts, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
				if fn := m.onRecover.Load(); fn != nil {
					(*fn)()
				}
			}
		}
	}
}

// OnRecover registers fn to run each time the health loop sees the server
// come back. It replaces any earlier registration.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns the ids of matching posts in ranking order.
func (m *Meili) Search(query string, limit int) ([]string, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 100
	}

	resp, err := m.client.Index(idxPosts).Search(query, &meili.SearchRequest{
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if id := decodeString(hit, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexPosts adds or replaces posts in the index.
func (m *Meili) IndexPosts(records []PostRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPosts).AddDocuments(records, nil)
	return err
}

// DeletePosts removes posts from the index.
func (m *Meili) DeletePosts(ids []string) error {
	index := m.client.Index(idxPosts)
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}
