package export

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"jobboard/api/internal/store"
)

const relatedLimit = 4

// JobStore is the read side of the job store the exporters need.
type JobStore interface {
	GetPublishedJobBySlug(ctx context.Context, slug string) (store.Job, error)
	ListPublishedJobs(ctx context.Context, filter store.JobFilter) ([]store.Job, int, error)
	ListSitemapEntries(ctx context.Context) ([]store.SitemapEntry, error)
}

type Options struct {
	SiteURL       string
	Locales       []string
	DefaultLocale string
	Log           *zap.Logger
	Now           func() time.Time
}

// Service renders published jobs.
type Service struct {
	store JobStore
	pdf   PDFRenderer
	opts  Options
	log   *zap.Logger
	now   func() time.Time
}

func NewService(jobs JobStore, pdf PDFRenderer, opts Options) *Service {
	s := &Service{store: jobs, pdf: pdf, opts: opts, log: opts.Log, now: opts.Now}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.opts.DefaultLocale == "" {
		s.opts.DefaultLocale = "en"
		if len(opts.Locales) > 0 {
			s.opts.DefaultLocale = opts.Locales[0]
		}
	}
	return s
}

// JobPage renders the detail page of a published job. Missing jobs come back
// as store.ErrNotFound, any other load or render failure as
// ErrContentUnavailable.
func (s *Service) JobPage(ctx context.Context, slug string) (string, store.Job, error) {
	job, err := s.store.GetPublishedJobBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return "", store.Job{}, err
	}
	if err != nil {
		return "", store.Job{}, contentUnavailable(err)
	}
	html, err := RenderJobHTML(PageData{
		Job:       job,
		Related:   s.related(ctx, job),
		Locale:    s.opts.DefaultLocale,
		BaseURL:   s.opts.SiteURL,
		Canonical: s.opts.SiteURL + "/" + s.opts.DefaultLocale + "/jobs/" + job.Slug,
	})
	if err != nil {
		return "", store.Job{}, contentUnavailable(err)
	}
	return html, job, nil
}

// related lists other published jobs in the same category. Failures only cost
// the section.
func (s *Service) related(ctx context.Context, job store.Job) []store.Job {
	jobs, _, err := s.store.ListPublishedJobs(ctx, store.JobFilter{Category: job.Category, Page: 1, Limit: relatedLimit + 1})
	if err != nil {
		s.log.Warn("related jobs unavailable", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	out := make([]store.Job, 0, relatedLimit)
	for _, other := range jobs {
		if other.ID == job.ID {
			continue
		}
		out = append(out, other)
		if len(out) == relatedLimit {
			break
		}
	}
	return out
}

// JobPDF prints the detail page.
func (s *Service) JobPDF(ctx context.Context, slug string) (*Result, error) {
	html, job, err := s.JobPage(ctx, slug)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, ErrPDFDependencyMissing
	}
	return s.pdf.RenderPDF(ctx, html, job.Title)
}

// Sitemap never fails on a store error; it degrades to a single entry.
func (s *Service) Sitemap(ctx context.Context) ([]byte, error) {
	now := s.now()
	entries, err := s.store.ListSitemapEntries(ctx)
	if err != nil {
		s.log.Error("sitemap generation failed", zap.Error(err))
		return BasicSitemap(s.opts.SiteURL, now)
	}
	out, err := BuildSitemap(s.opts.SiteURL, s.opts.Locales, entries, now)
	if err != nil {
		return nil, errors.Wrap(err, "sitemap")
	}
	return out, nil
}
