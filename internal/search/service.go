package search

import (
	"context"

	"go.uber.org/zap"

	"jobboard/api/internal/store"
)

// JobSource lists published jobs for the database fallback and reindexing.
type JobSource interface {
	ListPublishedJobs(ctx context.Context, filter store.JobFilter) ([]store.Job, int, error)
}

// Index is the write side of the search backend.
type Index interface {
	Searcher
	IndexJobs(jobs []JobRecord) error
	DeleteJob(id string) error
}

// Service tries the search index first and falls back to the database.
type Service struct {
	index Index
	jobs  JobSource
	log   *zap.Logger
}

// NewService creates a search service. index may be nil when no search
// server is configured.
func NewService(index Index, jobs JobSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{index: index, jobs: jobs, log: log}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search returns matching job ids. When the database answers instead of the
// index, the matching jobs themselves are returned in fallback.
func (s *Service) Search(ctx context.Context, q Query) (hits Hits, fallback []store.Job, err error) {
	if s.indexReady() {
		hits, err := s.index.Search(q)
		if err == nil {
			return hits, nil, nil
		}
		s.log.Warn("search index error, falling back to database", zap.Error(err))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	jobs, total, err := s.jobs.ListPublishedJobs(ctx, store.JobFilter{
		Category: q.Category,
		JobType:  q.JobType,
		Search:   q.Text,
		Page:     q.Offset/limit + 1,
		Limit:    limit,
	})
	if err != nil {
		return Hits{}, nil, err
	}
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return Hits{IDs: ids, Total: total}, jobs, nil
}

// Sync brings the index in line with one job: published jobs are indexed,
// anything else is removed. It runs in the background.
func (s *Service) Sync(job store.Job) {
	if !s.indexReady() {
		return
	}
	go func() {
		var err error
		if job.IsPublished {
			err = s.index.IndexJobs([]JobRecord{RecordFromJob(job)})
		} else {
			err = s.index.DeleteJob(job.ID)
		}
		if err != nil {
			s.log.Warn("sync job to search index", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
}

// Remove drops a deleted job from the index in the background.
func (s *Service) Remove(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteJob(id); err != nil {
			s.log.Warn("delete job from search index", zap.String("job_id", id), zap.Error(err))
		}
	}()
}

// Reindex pushes every published job to the index, a page at a time.
func (s *Service) Reindex(ctx context.Context) error {
	if !s.indexReady() {
		return nil
	}
	const pageSize = 500
	for page := 1; ; page++ {
		jobs, total, err := s.jobs.ListPublishedJobs(ctx, store.JobFilter{Page: page, Limit: pageSize})
		if err != nil {
			return err
		}
		records := make([]JobRecord, len(jobs))
		for i, job := range jobs {
			records[i] = RecordFromJob(job)
		}
		if err := s.index.IndexJobs(records); err != nil {
			return err
		}
		if page*pageSize >= total || len(jobs) == 0 {
			return nil
		}
	}
}
