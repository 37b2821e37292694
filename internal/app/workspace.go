package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobboard/api/internal/editsession"
	"jobboard/api/internal/rbac"
	"jobboard/api/internal/richtext"
	"jobboard/api/internal/store"
	"jobboard/api/internal/tablebuilder"
	"jobboard/api/internal/util"
)

const workspaceIdleTTL = 2 * time.Hour

// workspace is one admin's open job form. Every request against it holds mu,
// which serializes access to the form.
type workspace struct {
	mu       sync.Mutex
	id       string
	jobID    string
	ownerID  string
	form     *editsession.Form
	notices  []string
	lastUsed time.Time
}

type workspaceRegistry struct {
	mu    sync.Mutex
	items map[string]*workspace
	ttl   time.Duration
	now   func() time.Time
}

func newWorkspaceRegistry(ttl time.Duration) *workspaceRegistry {
	return &workspaceRegistry{items: make(map[string]*workspace), ttl: ttl, now: time.Now}
}

func (r *workspaceRegistry) add(ws *workspace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	ws.lastUsed = r.now()
	r.items[ws.id] = ws
}

func (r *workspaceRegistry) get(id, ownerID string) (*workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	ws, ok := r.items[id]
	if !ok || ws.ownerID != ownerID {
		return nil, false
	}
	ws.lastUsed = r.now()
	return ws, true
}

func (r *workspaceRegistry) remove(id, ownerID string) (*workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.items[id]
	if !ok || ws.ownerID != ownerID {
		return nil, false
	}
	delete(r.items, id)
	return ws, true
}

func (r *workspaceRegistry) closeOwnedBy(ownerID string) {
	r.mu.Lock()
	var closing []*workspace
	for id, ws := range r.items {
		if ws.ownerID == ownerID {
			closing = append(closing, ws)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()
	for _, ws := range closing {
		ws.close()
	}
}

// sweepLocked drops workspaces idle for longer than the ttl.
func (r *workspaceRegistry) sweepLocked() {
	cutoff := r.now().Add(-r.ttl)
	for id, ws := range r.items {
		if ws.lastUsed.Before(cutoff) {
			delete(r.items, id)
			go ws.close()
		}
	}
}

func (ws *workspace) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.form.Close()
}

// WorkspaceView is the client's picture of a workspace after each call.
type WorkspaceView struct {
	ID      string               `json:"id"`
	JobID   string               `json:"jobId,omitempty"`
	Fields  []FieldView          `json:"fields"`
	Builder *editsession.Session `json:"builder,omitempty"`
	Result  *editsession.Result  `json:"result,omitempty"`
	Notices []string             `json:"notices,omitempty"`
}

type FieldView struct {
	Field     editsession.FieldKey `json:"field"`
	Ready     bool                 `json:"ready"`
	Armed     bool                 `json:"armed"`
	HTML      string               `json:"html"`
	Rendered  string               `json:"rendered,omitempty"`
	Selection *richtext.Selection  `json:"selection,omitempty"`
	Tables    []richtext.Ref       `json:"tables"`
}

// view drains pending notices. The caller holds ws.mu.
func (ws *workspace) view() WorkspaceView {
	v := WorkspaceView{ID: ws.id, JobID: ws.jobID, Notices: ws.notices}
	ws.notices = nil
	for _, key := range editsession.Fields {
		c, _ := ws.form.Field(key)
		fv := FieldView{Field: key, Armed: c.Armed(), HTML: c.Value(), Tables: []richtext.Ref{}}
		if ed := c.Editor(); ed != nil {
			fv.Ready = true
			fv.Rendered = ed.Render()
			if sel, ok := ed.Selection(); ok {
				fv.Selection = &sel
			}
			for _, u := range ed.Units() {
				if u.Kind == richtext.KindEmbed && u.Embed == richtext.TableEmbedName {
					fv.Tables = append(fv.Tables, u.Ref)
				}
			}
		}
		v.Fields = append(v.Fields, fv)
	}
	if session, ok := ws.form.Session(); ok {
		v.Builder = &session
	}
	return v
}

// OpenWorkspace starts an editing session, loaded from jobID when given.
func (s *Service) OpenWorkspace(ctx context.Context, session Session, jobID string) (WorkspaceView, error) {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return WorkspaceView{}, err
	}
	var job store.Job
	if jobID != "" {
		var err error
		if job, err = s.store.GetJob(ctx, jobID); err != nil {
			return WorkspaceView{}, err
		}
	}

	ws := &workspace{id: util.NewID(), jobID: job.ID, ownerID: session.AdminID}
	ws.form = editsession.NewForm(editsession.Options{
		Log:      s.log.With(zap.String("workspace_id", ws.id)),
		Notifier: editsession.NotifierFunc(func(message string) { ws.notices = append(ws.notices, message) }),
		Observer: s.metrics,
	})
	ws.form.Load(map[editsession.FieldKey]string{
		editsession.FieldDescription:        job.Description,
		editsession.FieldApplicationProcess: job.ApplicationProcess,
		editsession.FieldImportantDates:     job.ImportantDates,
		editsession.FieldHowToApply:         job.HowToApply,
	})
	s.workspaces.add(ws)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.view(), nil
}

// withWorkspace runs fn under the workspace lock and returns the resulting
// view.
func (s *Service) withWorkspace(session Session, id string, fn func(ws *workspace) error) (WorkspaceView, error) {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return WorkspaceView{}, err
	}
	ws, ok := s.workspaces.get(id, session.AdminID)
	if !ok {
		return WorkspaceView{}, errWorkspaceNotFound
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if fn != nil {
		if err := fn(ws); err != nil {
			return WorkspaceView{}, err
		}
	}
	return ws.view(), nil
}

func (s *Service) GetWorkspace(session Session, id string) (WorkspaceView, error) {
	return s.withWorkspace(session, id, nil)
}

func (s *Service) CloseWorkspace(session Session, id string) error {
	ws, ok := s.workspaces.remove(id, session.AdminID)
	if !ok {
		return errWorkspaceNotFound
	}
	ws.close()
	return nil
}

func field(ws *workspace, key string) (*editsession.Controller, error) {
	parsed, ok := editsession.ParseField(key)
	if !ok {
		return nil, errUnknownField
	}
	c, _ := ws.form.Field(parsed)
	return c, nil
}

// SelectionInput moves the cursor of one field, or clears it with Blur.
type SelectionInput struct {
	Index  int  `json:"index" validate:"gte=0"`
	Length int  `json:"length" validate:"gte=0"`
	Blur   bool `json:"blur"`
}

func (s *Service) SetSelection(session Session, id, fieldKey string, in SelectionInput) (WorkspaceView, error) {
	if err := s.validate.Struct(in); err != nil {
		return WorkspaceView{}, err
	}
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		ed := c.Editor()
		if ed == nil {
			return editsession.ErrEditorNotReady
		}
		if in.Blur {
			ed.Blur()
			return nil
		}
		ed.SetSelection(in.Index, in.Length)
		return nil
	})
}

// FieldContentInput replaces a field's content with stored markup.
type FieldContentInput struct {
	HTML string `json:"html"`
}

// SetFieldContent loads new markup into a field. Units of the old content,
// including an armed table, no longer resolve.
func (s *Service) SetFieldContent(session Session, id, fieldKey string, in FieldContentInput) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		c.SetValue(in.HTML)
		return nil
	})
}

// ParagraphInput is typed text. Without an index it goes in at the cursor,
// or at the end when the field has no cursor.
type ParagraphInput struct {
	HTML  string `json:"html" validate:"required"`
	Index *int   `json:"index" validate:"omitempty,gte=0"`
}

func (s *Service) InsertParagraph(session Session, id, fieldKey string, in ParagraphInput) (WorkspaceView, error) {
	if err := s.validate.Struct(in); err != nil {
		return WorkspaceView{}, err
	}
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		ed := c.Editor()
		if ed == nil {
			return editsession.ErrEditorNotReady
		}
		pos := ed.Length()
		if sel, ok := ed.Selection(); ok {
			pos = sel.Index
		}
		if in.Index != nil {
			pos = *in.Index
		}
		ed.InsertParagraph(pos, in.HTML)
		ed.SetSelection(pos+1, 0)
		return nil
	})
}

// DeleteUnit removes one unit, a table or any other block, from a field.
func (s *Service) DeleteUnit(session Session, id, fieldKey string, ref richtext.Ref) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		ed := c.Editor()
		if ed == nil {
			return editsession.ErrEditorNotReady
		}
		pos, ok := ed.Locate(ref)
		if !ok {
			return richtext.ErrUnitNotFound
		}
		return ed.DeleteUnit(pos, 1)
	})
}

// SetFieldMounted shows or hides a field's editor, as when its form section
// is collapsed. A hidden field keeps its content but cannot take a table.
func (s *Service) SetFieldMounted(session Session, id, fieldKey string, mounted bool) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		switch {
		case mounted && c.Editor() == nil:
			c.Mount()
		case !mounted:
			c.Unmount()
		}
		return nil
	})
}

// OpenTable opens the builder to insert a new table into a field.
func (s *Service) OpenTable(session Session, id, fieldKey string) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		return c.OpenInsert()
	})
}

// EditTable is a click on a table's Edit button.
func (s *Service) EditTable(session Session, id, fieldKey string, ref richtext.Ref) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		c, err := field(ws, fieldKey)
		if err != nil {
			return err
		}
		return ws.form.Activate(c.Field(), ref)
	})
}

func (s *Service) ApplyTableOp(session Session, id string, op tablebuilder.Op) (WorkspaceView, error) {
	if err := s.validate.Struct(op); err != nil {
		return WorkspaceView{}, err
	}
	return s.withWorkspace(session, id, func(ws *workspace) error {
		return ws.form.Apply(op)
	})
}

func (s *Service) ConfirmTable(session Session, id string) (WorkspaceView, error) {
	var result editsession.Result
	view, err := s.withWorkspace(session, id, func(ws *workspace) error {
		var err error
		result, err = ws.form.Confirm()
		return err
	})
	if err != nil {
		return WorkspaceView{}, err
	}
	view.Result = &result
	return view, nil
}

func (s *Service) CancelTable(session Session, id string) (WorkspaceView, error) {
	return s.withWorkspace(session, id, func(ws *workspace) error {
		ws.form.Cancel()
		return nil
	})
}

// SaveWorkspace writes the four content fields back to the job.
func (s *Service) SaveWorkspace(ctx context.Context, session Session, id string) (store.Job, error) {
	var (
		jobID  string
		values map[editsession.FieldKey]string
	)
	if _, err := s.withWorkspace(session, id, func(ws *workspace) error {
		jobID = ws.jobID
		values = ws.form.Values()
		return nil
	}); err != nil {
		return store.Job{}, err
	}
	if jobID == "" {
		return store.Job{}, domainError(http.StatusConflict, "WORKSPACE_UNBOUND", "Workspace is not attached to a job; create the job with its field values", nil)
	}

	content := make(map[string]string, len(values))
	for key, markup := range values {
		content[string(key)] = markup
	}
	job, err := s.store.UpdateJobContent(ctx, jobID, content, session.AdminID)
	if err != nil {
		return store.Job{}, err
	}
	s.recordRevision(job, session, "Update content")
	s.syncSearch(job)
	return job, nil
}
