package app

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"jobboard/api/internal/editsession"
	"jobboard/api/internal/store"
)

const editorPath = "/api/admin/editor/workspaces"

func openWorkspace(t *testing.T, env *testEnv, cookie *http.Cookie, jobID string) WorkspaceView {
	t.Helper()
	rr := env.do(t, http.MethodPost, editorPath, `{"jobId":"`+jobID+`"}`, cookie)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open workspace status = %d body = %s", rr.Code, rr.Body.String())
	}
	var view WorkspaceView
	decodeJSON(t, rr.Body.Bytes(), &view)
	return view
}

func workspaceCall(t *testing.T, env *testEnv, cookie *http.Cookie, id, suffix, body string) WorkspaceView {
	t.Helper()
	rr := env.do(t, http.MethodPost, editorPath+"/"+id+suffix, body, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("POST %s status = %d body = %s", suffix, rr.Code, rr.Body.String())
	}
	var view WorkspaceView
	decodeJSON(t, rr.Body.Bytes(), &view)
	return view
}

func fieldView(t *testing.T, view WorkspaceView, key editsession.FieldKey) FieldView {
	t.Helper()
	for _, fv := range view.Fields {
		if fv.Field == key {
			return fv
		}
	}
	t.Fatalf("field %s missing from view", key)
	return FieldView{}
}

func TestWorkspaceEditsTableInPlace(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	job := createJob(t, env, cookie, jobBody)

	view := openWorkspace(t, env, cookie, job.ID)
	if view.JobID != job.ID || len(view.Fields) != 4 {
		t.Fatalf("view = %+v", view)
	}
	dates := fieldView(t, view, editsession.FieldImportantDates)
	if !dates.Ready || len(dates.Tables) != 1 {
		t.Fatalf("importantDates = %+v", dates)
	}
	if !strings.Contains(dates.Rendered, "table-edit-btn") {
		t.Fatalf("rendered field lacks the edit button: %s", dates.Rendered)
	}

	ref := strconv.FormatUint(uint64(dates.Tables[0]), 10)
	view = workspaceCall(t, env, cookie, view.ID, "/fields/importantDates/units/"+ref+"/edit", "")
	if view.Builder == nil || view.Builder.Mode != "open-for-edit" || view.Builder.Field != editsession.FieldImportantDates {
		t.Fatalf("builder = %+v", view.Builder)
	}
	if got := strings.Join(view.Builder.Document.Headers, ","); got != "Event,Date" {
		t.Fatalf("headers = %s", got)
	}
	if view.Builder.Document.HeaderColor != "#dc2626" {
		t.Fatalf("header color = %s", view.Builder.Document.HeaderColor)
	}
	if !fieldView(t, view, editsession.FieldImportantDates).Armed {
		t.Fatal("field should be armed for replace")
	}

	workspaceCall(t, env, cookie, view.ID, "/builder/ops", `{"op":"updateCell","row":0,"col":1,"value":"2 Jan"}`)
	view = workspaceCall(t, env, cookie, view.ID, "/builder/confirm", "")
	if view.Result == nil || view.Result.Outcome != editsession.OutcomeReplaced {
		t.Fatalf("result = %+v", view.Result)
	}
	if view.Builder != nil {
		t.Fatal("builder should be closed after confirm")
	}
	if dates := fieldView(t, view, editsession.FieldImportantDates); len(dates.Tables) != 1 || dates.Armed {
		t.Fatalf("importantDates after confirm = %+v", dates)
	}

	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/save", "", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d body = %s", rr.Code, rr.Body.String())
	}
	var saved store.Job
	decodeJSON(t, rr.Body.Bytes(), &saved)
	if !strings.Contains(saved.ImportantDates, "2 Jan") || strings.Contains(saved.ImportantDates, "1 Jan") {
		t.Fatalf("saved importantDates = %s", saved.ImportantDates)
	}
	if strings.Contains(saved.ImportantDates, "table-edit-btn") {
		t.Fatal("stored markup must not carry editing chrome")
	}
	if saved.Description != "<p>Posts open</p>" {
		t.Fatalf("description changed: %s", saved.Description)
	}

	revisions, err := env.service.revisions.History(job.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(revisions) != 2 || !strings.HasPrefix(revisions[0].Message, "Update content") {
		t.Fatalf("revisions = %+v", revisions)
	}

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), `jobboard_table_edits_total{field="importantDates",outcome="replaced"} 1`) {
		t.Fatalf("metrics missing table edit:\n%s", rr.Body.String())
	}
}

func TestWorkspaceInsertsTableAtCursor(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")

	view := openWorkspace(t, env, cookie, "")
	if view.JobID != "" {
		t.Fatalf("unbound workspace has job %q", view.JobID)
	}

	view = workspaceCall(t, env, cookie, view.ID, "/fields/description/selection", `{"index":0,"length":0}`)
	if sel := fieldView(t, view, editsession.FieldDescription).Selection; sel == nil || sel.Index != 0 {
		t.Fatalf("selection = %+v", sel)
	}

	view = workspaceCall(t, env, cookie, view.ID, "/fields/description/tables", "")
	if view.Builder == nil || view.Builder.Mode != "open-for-insert" {
		t.Fatalf("builder = %+v", view.Builder)
	}
	workspaceCall(t, env, cookie, view.ID, "/builder/ops", `{"op":"addRow"}`)
	view = workspaceCall(t, env, cookie, view.ID, "/builder/confirm", "")
	if view.Result == nil || view.Result.Outcome != editsession.OutcomeInserted || view.Result.Field != editsession.FieldDescription {
		t.Fatalf("result = %+v", view.Result)
	}
	desc := fieldView(t, view, editsession.FieldDescription)
	if len(desc.Tables) != 1 || !strings.Contains(desc.HTML, `<div class="ql-html-table">`) {
		t.Fatalf("description = %+v", desc)
	}
	if sel := desc.Selection; sel == nil || sel.Index != 1 {
		t.Fatalf("cursor should sit after the table, got %+v", sel)
	}

	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/save", "", cookie)
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "WORKSPACE_UNBOUND") {
		t.Fatalf("unbound save status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestWorkspaceCancelLeavesFieldUntouched(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	job := createJob(t, env, cookie, jobBody)
	view := openWorkspace(t, env, cookie, job.ID)
	before := fieldView(t, view, editsession.FieldImportantDates).HTML

	ref := strconv.FormatUint(uint64(fieldView(t, view, editsession.FieldImportantDates).Tables[0]), 10)
	workspaceCall(t, env, cookie, view.ID, "/fields/importantDates/units/"+ref+"/edit", "")
	workspaceCall(t, env, cookie, view.ID, "/builder/ops", `{"op":"updateHeader","col":0,"value":"Stage"}`)
	view = workspaceCall(t, env, cookie, view.ID, "/builder/cancel", "")

	dates := fieldView(t, view, editsession.FieldImportantDates)
	if view.Builder != nil || dates.Armed || dates.HTML != before {
		t.Fatalf("cancel changed the workspace: builder=%+v field=%+v", view.Builder, dates)
	}

	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/builder/confirm", "", cookie)
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "BUILDER_CLOSED") {
		t.Fatalf("confirm after cancel status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestWorkspaceRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	view := openWorkspace(t, env, cookie, "")

	cases := []struct {
		name   string
		suffix string
		body   string
		status int
		code   string
	}{
		{name: "unknown field", suffix: "/fields/salary/tables", status: http.StatusNotFound, code: "UNKNOWN_FIELD"},
		{name: "bad ref", suffix: "/fields/description/units/abc/edit", status: http.StatusBadRequest, code: "INVALID_REF"},
		{name: "missing unit", suffix: "/fields/description/units/999/edit", status: http.StatusNotFound, code: "UNIT_NOT_FOUND"},
		{name: "op without builder", suffix: "/builder/ops", body: `{"op":"addRow"}`, status: http.StatusConflict, code: "BUILDER_CLOSED"},
		{name: "op without kind", suffix: "/builder/ops", body: `{"row":1}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "negative selection", suffix: "/fields/description/selection", body: `{"index":-1}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+tc.suffix, tc.body, cookie)
			if rr.Code != tc.status || !strings.Contains(rr.Body.String(), tc.code) {
				t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
			}
		})
	}

	workspaceCall(t, env, cookie, view.ID, "/fields/description/tables", "")
	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/builder/ops", `{"op":"updateCell","row":9,"col":0,"value":"x"}`, cookie)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "INVALID_TABLE_OP") {
		t.Fatalf("out of range op status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestWorkspaceBelongsToItsOwner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.admin(t, "editor1", "editor")
	other := env.admin(t, "editor2", "editor")
	view := openWorkspace(t, env, owner, "")

	rr := env.do(t, http.MethodGet, editorPath+"/"+view.ID, "", other)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign workspace status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, editorPath+"/"+view.ID, "", other)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign close status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, editorPath+"/"+view.ID, "", owner)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner get status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, editorPath+"/"+view.ID, "", owner)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner close status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, editorPath+"/"+view.ID, "", owner)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("closed workspace status = %d", rr.Code)
	}
}

func TestLogoutClosesWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	view := openWorkspace(t, env, cookie, "")

	env.do(t, http.MethodDelete, "/api/admin/login", "", cookie)
	again := env.do(t, http.MethodPost, "/api/admin/login", `{"username":"editor1","password":"secret-pass"}`, nil)
	fresh := again.Result().Cookies()[0]

	rr := env.do(t, http.MethodGet, editorPath+"/"+view.ID, "", fresh)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("workspace after logout status = %d", rr.Code)
	}
}

func TestWorkspaceRegistrySweepsIdle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := newWorkspaceRegistry(time.Hour)
	reg.now = func() time.Time { return now }

	stale := &workspace{id: "stale", ownerID: "a", form: editsession.NewForm(editsession.Options{})}
	reg.add(stale)
	now = now.Add(2 * time.Hour)
	reg.add(&workspace{id: "fresh", ownerID: "a", form: editsession.NewForm(editsession.Options{})})

	if _, ok := reg.get("stale", "a"); ok {
		t.Fatal("idle workspace should be swept")
	}
	if _, ok := reg.get("fresh", "a"); !ok {
		t.Fatal("fresh workspace missing")
	}
	if _, ok := reg.get("fresh", "b"); ok {
		t.Fatal("workspace visible to another admin")
	}
}

func TestTableParseAndRender(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")

	rr := env.do(t, http.MethodPost, "/api/admin/editor/tables/parse", `{"markup":"<table><tr><th>A</th></tr><tr><td>1</td><td>2</td></tr></table>"}`, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("parse status = %d", rr.Code)
	}
	var parsed struct {
		Document struct {
			Headers []string   `json:"headers"`
			Rows    [][]string `json:"rows"`
		} `json:"document"`
	}
	decodeJSON(t, rr.Body.Bytes(), &parsed)
	if len(parsed.Document.Headers) != 1 || parsed.Document.Headers[0] != "A" {
		t.Fatalf("parsed = %+v", parsed.Document)
	}

	rr = env.do(t, http.MethodPost, "/api/admin/editor/tables/render", `{"headers":["Post","Vacancies"],"rows":[["Clerk","120"]],"headerColor":"#16A34A"}`, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("render status = %d body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "#16a34a") || !strings.Contains(rr.Body.String(), "Clerk") {
		t.Fatalf("render body = %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/admin/editor/tables/render", `{"headers":["A"],"rows":[["1"]],"headerColor":"red; x"}`, cookie)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad color status = %d", rr.Code)
	}
}

func workspaceRequest(t *testing.T, env *testEnv, cookie *http.Cookie, method, id, suffix, body string) WorkspaceView {
	t.Helper()
	rr := env.do(t, method, editorPath+"/"+id+suffix, body, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("%s %s status = %d body = %s", method, suffix, rr.Code, rr.Body.String())
	}
	var view WorkspaceView
	decodeJSON(t, rr.Body.Bytes(), &view)
	return view
}

func TestWorkspaceDeletingArmedTableAbortsConfirm(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	job := createJob(t, env, cookie, jobBody)
	view := openWorkspace(t, env, cookie, job.ID)

	ref := strconv.FormatUint(uint64(fieldView(t, view, editsession.FieldImportantDates).Tables[0]), 10)
	workspaceCall(t, env, cookie, view.ID, "/fields/importantDates/units/"+ref+"/edit", "")
	workspaceCall(t, env, cookie, view.ID, "/builder/ops", `{"op":"updateCell","row":0,"col":1,"value":"2 Jan"}`)

	view = workspaceRequest(t, env, cookie, http.MethodDelete, view.ID, "/fields/importantDates/units/"+ref, "")
	dates := fieldView(t, view, editsession.FieldImportantDates)
	if len(dates.Tables) != 0 || dates.HTML != "" {
		t.Fatalf("importantDates after delete = %+v", dates)
	}

	view = workspaceCall(t, env, cookie, view.ID, "/builder/confirm", "")
	if view.Result == nil || view.Result.Outcome != editsession.OutcomeAborted {
		t.Fatalf("result = %+v", view.Result)
	}
	if len(view.Notices) != 1 || view.Notices[0] != editsession.NotReadyMessage {
		t.Fatalf("notices = %v", view.Notices)
	}
	if dates := fieldView(t, view, editsession.FieldImportantDates); dates.HTML != "" || dates.Armed {
		t.Fatalf("importantDates after confirm = %+v", dates)
	}

	rr := env.do(t, http.MethodDelete, editorPath+"/"+view.ID+"/fields/importantDates/units/"+ref, "", cookie)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "UNIT_NOT_FOUND") {
		t.Fatalf("second delete status = %d body = %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), `jobboard_table_edits_total{field="importantDates",outcome="aborted"} 1`) {
		t.Fatalf("metrics missing aborted edit:\n%s", rr.Body.String())
	}
}

func TestWorkspaceHiddenFieldCannotTakeTable(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	view := openWorkspace(t, env, cookie, "")

	workspaceRequest(t, env, cookie, http.MethodPut, view.ID, "/fields/howToApply", `{"html":"<p>Online</p>"}`)
	workspaceCall(t, env, cookie, view.ID, "/fields/howToApply/tables", "")
	view = workspaceCall(t, env, cookie, view.ID, "/fields/howToApply/unmount", "")
	howTo := fieldView(t, view, editsession.FieldHowToApply)
	if howTo.Ready || howTo.HTML != "<p>Online</p>" {
		t.Fatalf("hidden field = %+v", howTo)
	}

	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/fields/howToApply/paragraphs", `{"html":"x"}`, cookie)
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "EDITOR_NOT_READY") {
		t.Fatalf("paragraph into hidden field status = %d body = %s", rr.Code, rr.Body.String())
	}

	view = workspaceCall(t, env, cookie, view.ID, "/builder/confirm", "")
	if view.Result == nil || view.Result.Outcome != editsession.OutcomeAborted {
		t.Fatalf("result = %+v", view.Result)
	}
	if len(view.Notices) != 1 || view.Notices[0] != editsession.NotReadyMessage {
		t.Fatalf("notices = %v", view.Notices)
	}

	view = workspaceCall(t, env, cookie, view.ID, "/fields/howToApply/mount", "")
	howTo = fieldView(t, view, editsession.FieldHowToApply)
	if !howTo.Ready || howTo.HTML != "<p>Online</p>" || len(howTo.Tables) != 0 {
		t.Fatalf("remounted field = %+v", howTo)
	}
}

func TestWorkspaceTypesParagraphs(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.admin(t, "editor1", "editor")
	view := openWorkspace(t, env, cookie, "")

	workspaceRequest(t, env, cookie, http.MethodPut, view.ID, "/fields/description", `{"html":"<p>a</p>"}`)
	view = workspaceCall(t, env, cookie, view.ID, "/fields/description/paragraphs", `{"html":"b"}`)
	desc := fieldView(t, view, editsession.FieldDescription)
	if desc.HTML != "<p>a</p><p>b</p>" {
		t.Fatalf("description = %s", desc.HTML)
	}
	if desc.Selection == nil || desc.Selection.Index != 2 {
		t.Fatalf("selection = %+v", desc.Selection)
	}

	view = workspaceCall(t, env, cookie, view.ID, "/fields/description/paragraphs", `{"html":"z","index":0}`)
	if got := fieldView(t, view, editsession.FieldDescription).HTML; got != "<p>z</p><p>a</p><p>b</p>" {
		t.Fatalf("description = %s", got)
	}

	rr := env.do(t, http.MethodPost, editorPath+"/"+view.ID+"/fields/description/paragraphs", `{"index":0}`, cookie)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("empty paragraph status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestWorkspaceRegistryExpiresOnLookup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := newWorkspaceRegistry(time.Hour)
	reg.now = func() time.Time { return now }
	reg.add(&workspace{id: "idle", ownerID: "a", form: editsession.NewForm(editsession.Options{})})

	now = now.Add(30 * time.Minute)
	if _, ok := reg.get("idle", "a"); !ok {
		t.Fatal("workspace used within the ttl should be live")
	}
	now = now.Add(61 * time.Minute)
	if _, ok := reg.get("idle", "a"); ok {
		t.Fatal("workspace idle past the ttl should be gone")
	}
}
