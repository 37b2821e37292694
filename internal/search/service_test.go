package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard/api/internal/store"
)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	hits     Hits
	err      error
	indexed  []JobRecord
	deleted  []string
	notified chan struct{}
}

func (f *fakeIndex) Search(Query) (Hits, error) { return f.hits, f.err }
func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) IndexJobs(jobs []JobRecord) error {
	f.mu.Lock()
	f.indexed = append(f.indexed, jobs...)
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *fakeIndex) DeleteJob(id string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *fakeIndex) signal() {
	if f.notified != nil {
		f.notified <- struct{}{}
	}
}

type fakeSource struct {
	jobs    []store.Job
	filters []store.JobFilter
}

func (f *fakeSource) ListPublishedJobs(_ context.Context, filter store.JobFilter) ([]store.Job, int, error) {
	f.filters = append(f.filters, filter)
	start := filter.Offset()
	if start >= len(f.jobs) {
		return []store.Job{}, len(f.jobs), nil
	}
	end := min(start+filter.Limit, len(f.jobs))
	return f.jobs[start:end], len(f.jobs), nil
}

func TestSearchUsesHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, hits: Hits{IDs: []string{"b", "a"}, Total: 2}}
	source := &fakeSource{}
	svc := NewService(index, source, nil)

	hits, fallback, err := svc.Search(context.Background(), Query{Text: "ssc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, hits.IDs)
	assert.Nil(t, fallback)
	assert.Empty(t, source.filters)
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	source := &fakeSource{jobs: []store.Job{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	for _, index := range []Index{nil, &fakeIndex{healthy: false}, &fakeIndex{healthy: true, err: errors.New("down")}} {
		source.filters = nil
		svc := NewService(index, source, nil)

		hits, fallback, err := svc.Search(context.Background(), Query{Text: "bank", Category: "bank", Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, hits.IDs)
		assert.Equal(t, 3, hits.Total)
		assert.Len(t, fallback, 1)
		require.Len(t, source.filters, 1)
		assert.Equal(t, store.JobFilter{Category: "bank", Search: "bank", Page: 2, Limit: 2}, source.filters[0])
	}
}

func TestSyncIndexesPublishedAndRemovesDrafts(t *testing.T) {
	index := &fakeIndex{healthy: true, notified: make(chan struct{}, 2)}
	svc := NewService(index, &fakeSource{}, nil)

	svc.Sync(store.Job{ID: "pub", Title: "Published", IsPublished: true, PublishDate: time.Unix(100, 0)})
	svc.Sync(store.Job{ID: "draft"})
	for range 2 {
		select {
		case <-index.notified:
		case <-time.After(time.Second):
			t.Fatal("sync did not reach the index")
		}
	}

	index.mu.Lock()
	defer index.mu.Unlock()
	require.Len(t, index.indexed, 1)
	assert.Equal(t, int64(100), index.indexed[0].PublishDate)
	assert.Equal(t, []string{"draft"}, index.deleted)
}

func TestReindexPages(t *testing.T) {
	jobs := make([]store.Job, 501)
	for i := range jobs {
		jobs[i] = store.Job{ID: string(rune('a' + i%26)), IsPublished: true}
	}
	index := &fakeIndex{healthy: true}
	source := &fakeSource{jobs: jobs}

	require.NoError(t, NewService(index, source, nil).Reindex(context.Background()))
	assert.Len(t, index.indexed, 501)
	assert.Len(t, source.filters, 2)
}
