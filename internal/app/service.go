package app

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"jobboard/api/internal/auth"
	"jobboard/api/internal/authpw"
	"jobboard/api/internal/config"
	"jobboard/api/internal/export"
	"jobboard/api/internal/gitrepo"
	"jobboard/api/internal/metrics"
	"jobboard/api/internal/rbac"
	"jobboard/api/internal/search"
	"jobboard/api/internal/store"
	"jobboard/api/internal/util"
)

// Session is the signed-in admin behind a request.
type Session struct {
	Token     string
	TokenID   string
	AdminID   string
	Username  string
	Role      string
	ExpiresAt time.Time
}

type jobStore interface {
	CreateJob(context.Context, store.Job) (store.Job, error)
	GetJob(context.Context, string) (store.Job, error)
	GetPublishedJobBySlug(context.Context, string) (store.Job, error)
	UpdateJob(context.Context, store.Job) (store.Job, error)
	UpdateJobContent(context.Context, string, map[string]string, string) (store.Job, error)
	DeleteJob(context.Context, string) error
	ListAdminJobs(context.Context) ([]store.Job, error)
	ListPublishedJobs(context.Context, store.JobFilter) ([]store.Job, int, error)
	ListJobsByIDs(context.Context, []string) ([]store.Job, error)
	IncrementJobViews(context.Context, string) error
	GetAdminByID(context.Context, string) (store.Admin, error)
}

type passwordAuth interface {
	SignIn(context.Context, authpw.SignInRequest) (store.Admin, error)
}

type revocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type jobSearch interface {
	Search(context.Context, search.Query) (search.Hits, []store.Job, error)
	Sync(store.Job)
	Remove(string)
}

type revisionLog interface {
	Commit(jobID string, content gitrepo.Content, author, message string) (gitrepo.Revision, error)
	History(jobID string, limit int) ([]gitrepo.Revision, error)
	ContentAt(jobID, hash string) (gitrepo.Content, error)
	Remove(jobID string) error
}

type exporter interface {
	JobPage(context.Context, string) (string, store.Job, error)
	JobPDF(context.Context, string) (*export.Result, error)
	Sitemap(context.Context) ([]byte, error)
}

// Deps are the collaborators of Service. Ping, Search, Revisions, Metrics and
// Log may be nil.
type Deps struct {
	Store     jobStore
	Auth      passwordAuth
	Revoked   revocationStore
	Search    jobSearch
	Revisions revisionLog
	Export    exporter
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Ping      func(context.Context) error
}

type Service struct {
	cfg        config.Config
	store      jobStore
	auth       passwordAuth
	revoked    revocationStore
	search     jobSearch
	revisions  revisionLog
	export     exporter
	metrics    *metrics.Metrics
	log        *zap.Logger
	ping       func(context.Context) error
	validate   *validator.Validate
	now        func() time.Time
	workspaces *workspaceRegistry
}

func NewService(cfg config.Config, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		cfg:        cfg,
		store:      deps.Store,
		auth:       deps.Auth,
		revoked:    deps.Revoked,
		search:     deps.Search,
		revisions:  deps.Revisions,
		export:     deps.Export,
		metrics:    m,
		log:        log,
		ping:       deps.Ping,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		workspaces: newWorkspaceRegistry(workspaceIdleTTL),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// SignIn checks credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, store.Admin, error) {
	admin, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return Session{}, store.Admin{}, err
	}
	claims := auth.Claims{AdminID: admin.ID, Username: admin.Username, Role: admin.Role}
	claims.ID = util.NewID()
	claims.Subject = admin.ID
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, store.Admin{}, err
	}
	return Session{
		Token:     token,
		TokenID:   claims.ID,
		AdminID:   admin.ID,
		Username:  admin.Username,
		Role:      admin.Role,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL),
	}, admin, nil
}

// SessionFromToken accepts a token only while it is unrevoked and its admin
// is still active.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, store.Admin, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, store.Admin{}, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, store.Admin{}, err
	}
	if revoked {
		return Session{}, store.Admin{}, auth.ErrInvalidToken
	}
	admin, err := s.store.GetAdminByID(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, store.Admin{}, auth.ErrInvalidToken
		}
		return Session{}, store.Admin{}, err
	}
	if !admin.IsActive {
		return Session{}, store.Admin{}, auth.ErrInvalidToken
	}
	session := Session{
		Token:    token,
		TokenID:  claims.ID,
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, admin, nil
}

// Logout revokes the session's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.TokenID == "" {
		return nil
	}
	s.workspaces.closeOwnedBy(session.AdminID)
	return s.revoked.Revoke(ctx, session.TokenID, session.ExpiresAt)
}

func (s *Service) Can(session Session, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(session.Role), action)
}

func (s *Service) require(session Session, action rbac.Action) error {
	if !s.Can(session, action) {
		return errForbidden
	}
	return nil
}

// ListJobsQuery mirrors the public listing's query string.
type ListJobsQuery struct {
	Page     int
	Limit    int
	Category string
	Type     string
	Search   string
}

type Pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type JobList struct {
	Jobs       []store.Job `json:"jobs"`
	Pagination Pagination  `json:"pagination"`
}

// ListJobs returns one page of published jobs without their content fields.
// Text queries go through the search index when it is up.
func (s *Service) ListJobs(ctx context.Context, q ListJobsQuery) (JobList, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	filter := store.JobFilter{
		Category: q.Category,
		JobType:  q.Type,
		Search:   strings.TrimSpace(q.Search),
		Page:     q.Page,
		Limit:    q.Limit,
	}

	var (
		jobs  []store.Job
		total int
		err   error
	)
	if filter.Search == "" || s.search == nil {
		jobs, total, err = s.store.ListPublishedJobs(ctx, filter)
	} else {
		jobs, total, err = s.searchJobs(ctx, filter)
	}
	if err != nil {
		return JobList{}, err
	}

	out := make([]store.Job, len(jobs))
	for i, job := range jobs {
		out[i] = job.Summary()
	}
	return JobList{
		Jobs: out,
		Pagination: Pagination{
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
			Page:  q.Page,
			Limit: q.Limit,
		},
	}, nil
}

func (s *Service) searchJobs(ctx context.Context, filter store.JobFilter) ([]store.Job, int, error) {
	hits, fallback, err := s.search.Search(ctx, search.Query{
		Text:     filter.Search,
		Category: filter.Category,
		JobType:  filter.JobType,
		Limit:    filter.Limit,
		Offset:   filter.Offset(),
	})
	if err != nil {
		return nil, 0, err
	}
	if fallback != nil {
		return fallback, hits.Total, nil
	}
	jobs, err := s.store.ListJobsByIDs(ctx, hits.IDs)
	if err != nil {
		return nil, 0, err
	}
	return jobs, hits.Total, nil
}

// GetPublicJob returns a published job and counts the view.
func (s *Service) GetPublicJob(ctx context.Context, slug string) (store.Job, error) {
	job, err := s.store.GetPublishedJobBySlug(ctx, slug)
	if err != nil {
		return store.Job{}, err
	}
	s.countView(ctx, &job)
	return job, nil
}

func (s *Service) countView(ctx context.Context, job *store.Job) {
	if err := s.store.IncrementJobViews(ctx, job.ID); err != nil {
		s.log.Warn("increment job views", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Views++
}

// JobPage renders the public detail page and counts the view.
func (s *Service) JobPage(ctx context.Context, slug string) (string, error) {
	html, job, err := s.export.JobPage(ctx, slug)
	if err != nil {
		return "", err
	}
	s.countView(ctx, &job)
	return html, nil
}

func (s *Service) JobPDF(ctx context.Context, slug string) (*export.Result, error) {
	result, err := s.export.JobPDF(ctx, slug)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available", nil)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) Sitemap(ctx context.Context) ([]byte, error) {
	return s.export.Sitemap(ctx)
}

// JobInput is the admin form. Content fields hold rich text markup.
type JobInput struct {
	Title              string    `json:"title" validate:"required,max=200"`
	Slug               string    `json:"slug" validate:"omitempty,max=220"`
	Subtitle           string    `json:"subtitle" validate:"max=300"`
	ShortDescription   string    `json:"shortDescription" validate:"required,max=500"`
	Description        string    `json:"description" validate:"required"`
	ApplicationProcess string    `json:"applicationProcess"`
	ImportantDates     string    `json:"importantDates"`
	HowToApply         string    `json:"howToApply"`
	Tags               []string  `json:"tags" validate:"dive,max=50"`
	Category           string    `json:"category" validate:"required,oneof=railway ssc bank police stateGovt defenseJobs teachingJobs engineeringJobs other"`
	JobType            string    `json:"jobType" validate:"required,oneof=latest admitCard result answerKey notification exam recruitment"`
	PublishDate        time.Time `json:"publishDate"`
	ExpiryDate         time.Time `json:"expiryDate" validate:"required"`
	Location           string    `json:"location" validate:"required,max=100"`
	ImageURL           string    `json:"imageUrl" validate:"omitempty,url"`
	YoutubeURL         string    `json:"youtubeUrl" validate:"omitempty,url"`
	MetaTitle          string    `json:"metaTitle" validate:"max=60"`
	MetaDescription    string    `json:"metaDescription" validate:"max=160"`
	MetaKeywords       []string  `json:"metaKeywords"`
	IsPublished        bool      `json:"isPublished"`
}

func (in *JobInput) trim() {
	for _, field := range []*string{&in.Title, &in.Slug, &in.Subtitle, &in.ShortDescription, &in.Location, &in.ImageURL, &in.YoutubeURL, &in.MetaTitle, &in.MetaDescription} {
		*field = strings.TrimSpace(*field)
	}
	in.Tags = trimList(in.Tags)
	in.MetaKeywords = trimList(in.MetaKeywords)
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (in JobInput) apply(job *store.Job) {
	job.Title = in.Title
	job.Subtitle = in.Subtitle
	job.ShortDescription = in.ShortDescription
	job.Description = in.Description
	job.ApplicationProcess = in.ApplicationProcess
	job.ImportantDates = in.ImportantDates
	job.HowToApply = in.HowToApply
	job.Tags = in.Tags
	job.Category = in.Category
	job.JobType = in.JobType
	job.ExpiryDate = in.ExpiryDate
	job.Location = in.Location
	job.ImageURL = in.ImageURL
	job.YoutubeURL = in.YoutubeURL
	job.MetaTitle = in.MetaTitle
	job.MetaDescription = in.MetaDescription
	job.MetaKeywords = in.MetaKeywords
	job.IsPublished = in.IsPublished
	if !in.PublishDate.IsZero() {
		job.PublishDate = in.PublishDate
	}
}

func (s *Service) validateInput(in *JobInput) error {
	in.trim()
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if !in.PublishDate.IsZero() && in.ExpiryDate.Before(in.PublishDate) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", map[string]string{"ExpiryDate": "gtefield"})
	}
	return nil
}

func contentOf(job store.Job) gitrepo.Content {
	return gitrepo.Content{
		Title:              job.Title,
		Description:        job.Description,
		ApplicationProcess: job.ApplicationProcess,
		ImportantDates:     job.ImportantDates,
		HowToApply:         job.HowToApply,
	}
}

// recordRevision never fails the write that triggered it.
func (s *Service) recordRevision(job store.Job, session Session, message string) {
	if s.revisions == nil {
		return
	}
	if _, err := s.revisions.Commit(job.ID, contentOf(job), session.Username, message); err != nil {
		s.log.Warn("record job revision", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Service) syncSearch(job store.Job) {
	if s.search != nil {
		s.search.Sync(job)
	}
}

func (s *Service) ListAdminJobs(ctx context.Context, session Session) ([]store.Job, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListAdminJobs(ctx)
}

func (s *Service) GetAdminJob(ctx context.Context, session Session, id string) (store.Job, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return store.Job{}, err
	}
	return s.store.GetJob(ctx, id)
}

// CreateJob derives the slug from the title unless one is given.
func (s *Service) CreateJob(ctx context.Context, session Session, in JobInput) (store.Job, error) {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return store.Job{}, err
	}
	if err := s.validateInput(&in); err != nil {
		return store.Job{}, err
	}
	job := store.Job{ID: util.NewID(), CreatedBy: session.AdminID, PublishDate: s.now()}
	in.apply(&job)
	job.Slug = slugFor(in)
	if job.Slug == "" {
		return store.Job{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Title must contain letters or digits", map[string]string{"Slug": "required"})
	}

	created, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return store.Job{}, err
	}
	s.log.Info("job created",
		zap.String("job_id", created.ID),
		zap.String("admin", session.Username),
		zap.Int("application_process_len", len(created.ApplicationProcess)),
		zap.Int("important_dates_len", len(created.ImportantDates)),
		zap.Int("how_to_apply_len", len(created.HowToApply)),
	)
	s.recordRevision(created, session, "Create job")
	s.syncSearch(created)
	return created, nil
}

func slugFor(in JobInput) string {
	if in.Slug != "" {
		return store.Slugify(in.Slug)
	}
	return store.Slugify(in.Title)
}

// UpdateJob replaces every editable field. The slug only changes when the
// input names one, so published links stay stable.
func (s *Service) UpdateJob(ctx context.Context, session Session, id string, in JobInput) (store.Job, error) {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return store.Job{}, err
	}
	if err := s.validateInput(&in); err != nil {
		return store.Job{}, err
	}
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return store.Job{}, err
	}
	in.apply(&job)
	if in.Slug != "" {
		job.Slug = slugFor(in)
	}
	updatedBy := session.AdminID
	job.UpdatedBy = &updatedBy

	updated, err := s.store.UpdateJob(ctx, job)
	if err != nil {
		return store.Job{}, err
	}
	s.recordRevision(updated, session, "Update job")
	s.syncSearch(updated)
	return updated, nil
}

func (s *Service) DeleteJob(ctx context.Context, session Session, id string) error {
	if err := s.require(session, rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	if s.revisions != nil {
		if err := s.revisions.Remove(id); err != nil {
			s.log.Warn("remove job revisions", zap.String("job_id", id), zap.Error(err))
		}
	}
	if s.search != nil {
		s.search.Remove(id)
	}
	return nil
}

func (s *Service) JobHistory(ctx context.Context, session Session, id string, limit int) ([]gitrepo.Revision, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	if s.revisions == nil {
		return nil, errHistoryUnavailable
	}
	return s.revisions.History(id, limit)
}

func (s *Service) JobRevision(ctx context.Context, session Session, id, hash string) (gitrepo.Content, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return gitrepo.Content{}, err
	}
	if _, err := s.store.GetJob(ctx, id); err != nil {
		return gitrepo.Content{}, err
	}
	if s.revisions == nil {
		return gitrepo.Content{}, errHistoryUnavailable
	}
	content, err := s.revisions.ContentAt(id, hash)
	switch {
	case errors.Is(err, gitrepo.ErrNoHistory):
		return gitrepo.Content{}, err
	case err != nil:
		s.log.Debug("resolve revision", zap.String("job_id", id), zap.String("hash", hash), zap.Error(err))
		return gitrepo.Content{}, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	}
	return content, nil
}
