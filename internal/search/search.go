package search

import (
	"time"

	"jobboard/api/internal/store"
)

// Query describes a public job search.
type Query struct {
	Text     string
	Category string
	JobType  string
	Limit    int
	Offset   int
}

// Hits are job ids in rank order plus the total number of matches.
type Hits struct {
	IDs   []string
	Total int
}

// Searcher runs a full-text job search.
type Searcher interface {
	Search(q Query) (Hits, error)
	Healthy() bool
}

// JobRecord is the data we index for a job. Only published jobs are kept in
// the index.
type JobRecord struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Slug             string   `json:"slug"`
	ShortDescription string   `json:"shortDescription"`
	Tags             []string `json:"tags"`
	Category         string   `json:"category"`
	JobType          string   `json:"jobType"`
	Location         string   `json:"location"`
	PublishDate      int64    `json:"publishDate"`
}

func RecordFromJob(job store.Job) JobRecord {
	return JobRecord{
		ID:               job.ID,
		Title:            job.Title,
		Slug:             job.Slug,
		ShortDescription: job.ShortDescription,
		Tags:             job.Tags,
		Category:         job.Category,
		JobType:          job.JobType,
		Location:         job.Location,
		PublishDate:      job.PublishDate.UTC().Truncate(time.Second).Unix(),
	}
}
