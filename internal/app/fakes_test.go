package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"jobboard/api/internal/authpw"
	"jobboard/api/internal/config"
	"jobboard/api/internal/export"
	"jobboard/api/internal/gitrepo"
	"jobboard/api/internal/metrics"
	"jobboard/api/internal/search"
	"jobboard/api/internal/session"
	"jobboard/api/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]store.Job
	admins map[string]store.Admin
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]store.Job), admins: make(map[string]store.Admin)}
}

func (f *fakeStore) CreateJob(_ context.Context, job store.Job) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.jobs {
		if existing.Slug == job.Slug {
			return store.Job{}, store.ErrDuplicate
		}
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) GetPublishedJobBySlug(_ context.Context, slug string) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.Slug == slug && job.IsPublished {
			return job, nil
		}
	}
	return store.Job{}, store.ErrNotFound
}

func (f *fakeStore) UpdateJob(_ context.Context, job store.Job) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.jobs[job.ID]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	job.Views = existing.Views
	job.CreatedBy = existing.CreatedBy
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now()
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) UpdateJobContent(_ context.Context, id string, content map[string]string, updatedBy string) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	for key, target := range map[string]*string{
		"description":        &job.Description,
		"applicationProcess": &job.ApplicationProcess,
		"importantDates":     &job.ImportantDates,
		"howToApply":         &job.HowToApply,
	} {
		if value, ok := content[key]; ok {
			*target = value
		}
	}
	job.UpdatedBy = &updatedBy
	f.jobs[id] = job
	return job, nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) ListAdminJobs(context.Context) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListPublishedJobs(_ context.Context, filter store.JobFilter) ([]store.Job, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Job
	for _, job := range f.jobs {
		if !job.IsPublished {
			continue
		}
		if filter.Category != "" && job.Category != filter.Category {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(job.Title), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PublishDate.After(matched[j].PublishDate) })
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (f *fakeStore) ListJobsByIDs(_ context.Context, ids []string) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Job
	for _, id := range ids {
		if job, ok := f.jobs[id]; ok && job.IsPublished {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementJobViews(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Views++
	f.jobs[id] = job
	return nil
}

func (f *fakeStore) ListSitemapEntries(context.Context) ([]store.SitemapEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SitemapEntry
	for _, job := range f.jobs {
		if job.IsPublished {
			out = append(out, store.SitemapEntry{Slug: job.Slug, UpdatedAt: job.UpdatedAt})
		}
	}
	return out, nil
}

func (f *fakeStore) GetAdminByID(_ context.Context, id string) (store.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	admin, ok := f.admins[id]
	if !ok {
		return store.Admin{}, store.ErrNotFound
	}
	return admin, nil
}

func (f *fakeStore) GetAdminByLogin(_ context.Context, login string) (store.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, admin := range f.admins {
		if admin.Username == login || admin.Email == strings.ToLower(login) {
			return admin, nil
		}
	}
	return store.Admin{}, store.ErrNotFound
}

func (f *fakeStore) CreateAdmin(_ context.Context, admin store.Admin) (store.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if admin.ID == "" {
		admin.ID = "admin-" + admin.Username
	}
	f.admins[admin.ID] = admin
	return admin, nil
}

func (f *fakeStore) TouchAdminLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	admin := f.admins[id]
	admin.LastLogin = &at
	f.admins[id] = admin
	return nil
}

func (f *fakeStore) setActive(id string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	admin := f.admins[id]
	admin.IsActive = active
	f.admins[id] = admin
}

type testEnv struct {
	store   *fakeStore
	service *Service
	server  http.Handler
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	fs := newFakeStore()
	m := metrics.New()
	cfg := config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		SiteURL:     "https://jobmilegi.in",
		SiteLocales: []string{"hi", "en"},
	}
	svc := NewService(cfg, Deps{
		Store:     fs,
		Auth:      authpw.NewService(fs),
		Revoked:   session.NewMemoryStore(),
		Search:    search.NewService(nil, fs, log),
		Revisions: gitrepo.New(t.TempDir()),
		Export:    export.NewService(fs, nil, export.Options{SiteURL: cfg.SiteURL, Locales: cfg.SiteLocales, Log: log}),
		Metrics:   m,
		Log:       log,
	})
	return &testEnv{store: fs, service: svc, server: NewHTTPServer(svc, "*").Handler(), metrics: m}
}

// admin creates an active admin and returns a session cookie for it.
func (e *testEnv) admin(t *testing.T, username, role string) *http.Cookie {
	t.Helper()
	_, _, err := authpw.NewService(e.store).CreateAdmin(context.Background(), authpw.CreateAdminRequest{
		Username: username,
		Email:    username + "@jobmilegi.in",
		Password: "secret-pass",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	rr := e.do(t, http.MethodPost, "/api/admin/login", `{"username":"`+username+`","password":"secret-pass"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == "admin-token" {
			return c
		}
	}
	t.Fatal("login did not set admin-token cookie")
	return nil
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}
