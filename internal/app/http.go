package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobboard/api/internal/auth"
	"jobboard/api/internal/authpw"
	"jobboard/api/internal/richtext"
	"jobboard/api/internal/store"
	"jobboard/api/internal/tablebuilder"
	"jobboard/api/internal/tabledoc"
)

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	secureCookie bool
	log          *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:      service,
		corsOrigin:   corsOrigin,
		secureCookie: strings.HasPrefix(service.cfg.SiteURL, "https://"),
		log:          service.log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.service.Metrics().Handler())
	r.Get("/sitemap.xml", s.handleSitemap)
	r.Get("/jobs/{slug}", s.handleJobPage)

	r.Get("/api/jobs", s.handleListJobs)
	r.Get("/api/jobs/{slug}", s.handleGetJob)

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Delete("/login", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/verify", s.handleVerify)

			r.Get("/jobs", s.handleAdminListJobs)
			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs/{id}", s.handleAdminGetJob)
			r.Put("/jobs/{id}", s.handleUpdateJob)
			r.Delete("/jobs/{id}", s.handleDeleteJob)
			r.Get("/jobs/{id}/history", s.handleJobHistory)
			r.Get("/jobs/{id}/history/{hash}", s.handleJobRevision)

			r.Route("/editor", func(r chi.Router) {
				r.Post("/tables/parse", s.handleParseTable)
				r.Post("/tables/render", s.handleRenderTable)

				r.Post("/workspaces", s.handleOpenWorkspace)
				r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
					r.Get("/", s.handleGetWorkspace)
					r.Delete("/", s.handleCloseWorkspace)
					r.Put("/fields/{field}", s.handleSetFieldContent)
					r.Post("/fields/{field}/selection", s.handleSelection)
					r.Post("/fields/{field}/paragraphs", s.handleInsertParagraph)
					r.Post("/fields/{field}/mount", s.handleMountField)
					r.Post("/fields/{field}/unmount", s.handleUnmountField)
					r.Delete("/fields/{field}/units/{ref}", s.handleDeleteUnit)
					r.Post("/fields/{field}/tables", s.handleOpenTable)
					r.Post("/fields/{field}/units/{ref}/edit", s.handleEditTable)
					r.Post("/builder/ops", s.handleTableOp)
					r.Post("/builder/confirm", s.handleConfirmTable)
					r.Post("/builder/cancel", s.handleCancelTable)
					r.Post("/save", s.handleSaveWorkspace)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSitemap(w http.ResponseWriter, r *http.Request) {
	body, err := s.service.Sitemap(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleJobPage serves /jobs/{slug} as HTML and /jobs/{slug}.pdf as a PDF.
func (s *HTTPServer) handleJobPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if base, ok := strings.CutSuffix(slug, ".pdf"); ok {
		result, err := s.service.JobPDF(r.Context(), base)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}
	page, err := s.service.JobPage(r.Context(), slug)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.service.ListJobs(r.Context(), ListJobsQuery{
		Page:     queryInt(q.Get("page"), 1),
		Limit:    queryInt(q.Get("limit"), 10),
		Category: q.Get("category"),
		Type:     q.Get("type"),
		Search:   q.Get("search"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.GetPublicJob(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body authpw.SignInRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, admin, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(session.Token, s.service.cfg.TokenTTL, s.secureCookie))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"admin": map[string]any{
			"id":       admin.ID,
			"username": admin.Username,
			"email":    admin.Email,
			"role":     admin.Role,
		},
	})
}

// handleLogout always clears the cookie. A still valid token is revoked.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if session, _, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			if err := s.service.Logout(r.Context(), session); err != nil {
				s.log.Warn("revoke admin token", zap.String("admin_id", session.AdminID), zap.Error(err))
			}
		}
	}
	http.SetCookie(w, auth.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	_, admin := sessionFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{"admin": admin})
}

func (s *HTTPServer) handleAdminListJobs(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	jobs, err := s.service.ListAdminJobs(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	var body JobInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	job, err := s.service.CreateJob(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *HTTPServer) handleAdminGetJob(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	job, err := s.service.GetAdminJob(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	var body JobInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	job, err := s.service.UpdateJob(r.Context(), session, chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	if err := s.service.DeleteJob(r.Context(), session, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	items, err := s.service.JobHistory(r.Context(), session, chi.URLParam(r, "id"), queryInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": items})
}

func (s *HTTPServer) handleJobRevision(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	content, err := s.service.JobRevision(r.Context(), session, chi.URLParam(r, "id"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *HTTPServer) handleParseTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Markup string `json:"markup"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": tabledoc.Parse(body.Markup)})
}

func (s *HTTPServer) handleRenderTable(w http.ResponseWriter, r *http.Request) {
	var doc tabledoc.Document
	if err := decodeBody(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := doc.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_TABLE", err.Error(), nil)
		return
	}
	if doc.HeaderColor == "" {
		doc.HeaderColor = tabledoc.DefaultHeaderColor
	}
	color, ok := tabledoc.NormalizeColor(doc.HeaderColor)
	if !ok {
		s.fail(w, r, tablebuilder.ErrBadColor)
		return
	}
	doc.HeaderColor = color
	writeJSON(w, http.StatusOK, map[string]any{"markup": tabledoc.Serialize(&doc)})
}

func (s *HTTPServer) handleOpenWorkspace(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	var body struct {
		JobID string `json:"jobId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.OpenWorkspace(r.Context(), session, strings.TrimSpace(body.JobID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// workspaceCall adapts the workspace operations that only need ids from the
// path.
func (s *HTTPServer) workspaceCall(w http.ResponseWriter, r *http.Request, fn func(Session, string) (WorkspaceView, error)) {
	session, _ := sessionFrom(r)
	view, err := fn(session, chi.URLParam(r, "workspaceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, s.service.GetWorkspace)
}

func (s *HTTPServer) handleCloseWorkspace(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	if err := s.service.CloseWorkspace(session, chi.URLParam(r, "workspaceID")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	var body SelectionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.SetSelection(session, id, chi.URLParam(r, "field"), body)
	})
}

func (s *HTTPServer) handleOpenTable(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.OpenTable(session, id, chi.URLParam(r, "field"))
	})
}

func (s *HTTPServer) handleSetFieldContent(w http.ResponseWriter, r *http.Request) {
	var body FieldContentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.SetFieldContent(session, id, chi.URLParam(r, "field"), body)
	})
}

func (s *HTTPServer) handleInsertParagraph(w http.ResponseWriter, r *http.Request) {
	var body ParagraphInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.InsertParagraph(session, id, chi.URLParam(r, "field"), body)
	})
}

func (s *HTTPServer) handleMountField(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.SetFieldMounted(session, id, chi.URLParam(r, "field"), true)
	})
}

func (s *HTTPServer) handleUnmountField(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.SetFieldMounted(session, id, chi.URLParam(r, "field"), false)
	})
}

func unitRef(w http.ResponseWriter, r *http.Request) (richtext.Ref, bool) {
	ref, err := strconv.ParseUint(chi.URLParam(r, "ref"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REF", "Unit reference must be a number", nil)
		return 0, false
	}
	return richtext.Ref(ref), true
}

func (s *HTTPServer) handleEditTable(w http.ResponseWriter, r *http.Request) {
	ref, ok := unitRef(w, r)
	if !ok {
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.EditTable(session, id, chi.URLParam(r, "field"), ref)
	})
}

func (s *HTTPServer) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	ref, ok := unitRef(w, r)
	if !ok {
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.DeleteUnit(session, id, chi.URLParam(r, "field"), ref)
	})
}

func (s *HTTPServer) handleTableOp(w http.ResponseWriter, r *http.Request) {
	var op tablebuilder.Op
	if err := decodeBody(r, &op); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.workspaceCall(w, r, func(session Session, id string) (WorkspaceView, error) {
		return s.service.ApplyTableOp(session, id, op)
	})
}

func (s *HTTPServer) handleConfirmTable(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, s.service.ConfirmTable)
}

func (s *HTTPServer) handleCancelTable(w http.ResponseWriter, r *http.Request) {
	s.workspaceCall(w, r, s.service.CancelTable)
}

func (s *HTTPServer) handleSaveWorkspace(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r)
	job, err := s.service.SaveWorkspace(r.Context(), session, chi.URLParam(r, "workspaceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type sessionKey struct{}

type sessionValue struct {
	session Session
	admin   store.Admin
}

// requireSession is the cookie guard in front of every admin route.
func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, admin, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.log.Error("session lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sessionValue{session: session, admin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) (Session, store.Admin) {
	v, _ := r.Context().Value(sessionKey{}).(sessionValue)
	return v.session, v.admin
}

// fail writes err as a JSON error. Unexpected errors are logged with the
// request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.service.Metrics().ObserveRequest(r.Method, route, writer.status, elapsed)
		s.log.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	if corsOrigin != "*" {
		header.Set("Access-Control-Allow-Credentials", "true")
	}
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
