package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxJobs = "jobboard_jobs"

// Meili implements Searcher against a Meilisearch jobs index.
type Meili struct {
	client  meili.ServiceManager
	log     *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a client and configures the index when reachable. An
// unreachable server is retried by a background health check.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxJobs, PrimaryKey: "id"}); err != nil {
		m.log.Debug("create jobs index (may already exist)", zap.Error(err))
	}
	index := m.client.Index(idxJobs)

	filterable := []interface{}{"category", "jobType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"title", "shortDescription", "tags", "location"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", zap.Error(err))
	}
	sortable := []string{"publishDate"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.log.Warn("update sortable attributes", zap.Error(err))
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
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health check.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) (Hits, error) {
	if !m.healthy.Load() {
		return Hits{}, fmt.Errorf("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 10
	}

	resp, err := m.client.Index(idxJobs).Search(q.Text, &meili.SearchRequest{
		Limit:                limit,
		Offset:               int64(q.Offset),
		Filter:               filters(q),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		m.healthy.Store(false)
		return Hits{}, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := Hits{IDs: make([]string, 0, len(resp.Hits)), Total: int(resp.EstimatedTotalHits)}
	for _, hit := range resp.Hits {
		if id := decodeString(hit, "id"); id != "" {
			hits.IDs = append(hits.IDs, id)
		}
	}
	return hits, nil
}

func filters(q Query) []string {
	var out []string
	if q.Category != "" {
		out = append(out, fmt.Sprintf("category = %q", q.Category))
	}
	if q.JobType != "" {
		out = append(out, fmt.Sprintf("jobType = %q", q.JobType))
	}
	return out
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (m *Meili) IndexJobs(jobs []JobRecord) error {
	if len(jobs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxJobs).AddDocuments(jobs, nil)
	return err
}

func (m *Meili) DeleteJob(id string) error {
	_, err := m.client.Index(idxJobs).DeleteDocument(id, nil)
	return err
}
