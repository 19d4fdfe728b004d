package project

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/provisioner/pkg/cerr"
	"github.com/kazz187/provisioner/pkg/clog"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

func newTestRouter(t *testing.T) (http.Handler, *fakePlatform) {
	t.Helper()
	s, f := newTestService(t)
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewServer(s).Routes(r)
	return r, f
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_CreateProject(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodPost, "/create_project",
		`{"org_name":"acme","repo_name":"svc","team_name":"svc-write","team_permission":"admin"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	outcome := decodeJSON[Outcome](t, rec)
	assert.Equal(t, StateCommitted, outcome.State)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, "acme", outcome.Org)
	assert.Equal(t, "svc", outcome.Repo)
	assert.Len(t, outcome.Resources, 7)
	assert.NotContains(t, rec.Body.String(), "squ_")
}

func TestServer_CreateProjectValidation(t *testing.T) {
	h, f := newTestRouter(t)

	rec := serve(h, http.MethodPost, "/create_project", `{"org_name":"acme","repo_name":"","team_name":"t","team_permission":"owner"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON[errorBody](t, rec)
	assert.Equal(t, "invalid_argument", body.Code)
	assert.Equal(t, "invalid request", body.Message)
	assert.Equal(t, []string{
		"repo_name: must not be empty",
		"team_permission: must be one of read, triage, write, maintain, admin",
	}, body.Details)
	assert.Zero(t, f.callCount())
}

func TestServer_MalformedBody(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, body := range []string{`{"org_name":`, `{"org":"acme"}`, ``} {
		rec := serve(h, http.MethodPost, "/create_project", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "malformed request body", decodeJSON[errorBody](t, rec).Message)
	}
}

func TestServer_CreateProjectOutcomeStatuses(t *testing.T) {
	const body = `{"org_name":"acme","repo_name":"svc","team_name":"svc-write"}`

	t.Run("conflict", func(t *testing.T) {
		h, f := newTestRouter(t)
		f.repos["acme/svc"] = true
		rec := serve(h, http.MethodPost, "/create_project", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, StateFailed, decodeJSON[Outcome](t, rec).State)
	})

	t.Run("rolled back", func(t *testing.T) {
		h, f := newTestRouter(t)
		f.fail("CreateProject", remoteErr(sonarqube.Platform, http.StatusInternalServerError))
		rec := serve(h, http.MethodPost, "/create_project", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, StateRolledBack, decodeJSON[Outcome](t, rec).State)
	})

	t.Run("partially rolled back", func(t *testing.T) {
		h, f := newTestRouter(t)
		f.fail("CreateProject", remoteErr(sonarqube.Platform, http.StatusInternalServerError))
		f.fail("DeleteRepo", remoteErr(sonarqube.Platform, http.StatusInternalServerError))
		rec := serve(h, http.MethodPost, "/create_project", body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		outcome := decodeJSON[Outcome](t, rec)
		assert.Equal(t, StatePartiallyRolledBack, outcome.State)
		assert.Len(t, outcome.Remaining(), 1)
	})
}

func TestServer_MultiProject(t *testing.T) {
	h, f := newTestRouter(t)
	f.repos["acme/b"] = true

	rec := serve(h, http.MethodPost, "/create_multi_project", `{"org_name":"acme","repo_names":["a","b","c"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	batch := decodeJSON[BatchResult](t, rec)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)

	rec = serve(h, http.MethodDelete, "/delete_multi_project", `{"org_name":"acme","repo_names":["a","c"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	batch = decodeJSON[BatchResult](t, rec)
	assert.Equal(t, OperationDeprovision, batch.Operation)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, map[string]bool{"acme/b": true}, f.repos)
}

func TestServer_DeleteProject(t *testing.T) {
	h, f := newTestRouter(t)
	require.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/create_project",
		`{"org_name":"acme","repo_name":"svc","team_name":"svc-write"}`).Code)

	rec := serve(h, http.MethodDelete, "/delete_project", `{"org_name":"acme","repo_name":"svc"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StateCompleted, decodeJSON[Outcome](t, rec).State)
	assert.True(t, f.empty())
}

func TestServer_UpdateRepoPermission(t *testing.T) {
	h, f := newTestRouter(t)
	require.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/create_project",
		`{"org_name":"acme","repo_name":"svc","team_name":"svc-write"}`).Code)

	rec := serve(h, http.MethodPut, "/update_repo_permission",
		`{"org_name":"acme","repo_name":"svc","team_name":"svc-write","new_permission":"triage"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PermissionUpdate{Org: "acme", Repo: "svc", Team: "svc-write", Permission: "triage"}, decodeJSON[PermissionUpdate](t, rec))
	assert.Equal(t, "triage", f.grants["acme/svc-write/svc"])

	rec = serve(h, http.MethodPut, "/update_repo_permission",
		`{"org_name":"acme","repo_name":"svc","team_name":"ghosts","new_permission":"triage"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeJSON[errorBody](t, rec).Code)
}

func TestServer_Preflight(t *testing.T) {
	h, f := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/preflight?org_name=acme", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[PreflightReport](t, rec).Ready)

	f.unknownOrgs["acme"] = true
	rec = serve(h, http.MethodGet, "/preflight?org_name=acme", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decodeJSON[PreflightReport](t, rec).Ready)

	rec = serve(h, http.MethodGet, "/preflight", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_History(t *testing.T) {
	f := newFakePlatform(t)
	s := NewService(NewProvisioner(f, f, WithRepository(&fakeRepository{})), NewCoordinator(1), testDefaults())
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewServer(s).Routes(r)

	created := serve(r, http.MethodPost, "/create_project", `{"org_name":"acme","repo_name":"svc","team_name":"svc-write"}`)
	require.Equal(t, http.StatusCreated, created.Code)

	rec := serve(r, http.MethodGet, "/history?org_name=acme&repo_name=svc&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON[struct {
		Outcomes []Outcome `json:"outcomes"`
	}](t, rec)
	require.Len(t, body.Outcomes, 1)
	assert.Equal(t, decodeJSON[Outcome](t, created).RunID, body.Outcomes[0].RunID)

	rec = serve(r, http.MethodGet, "/history?org_name=acme&repo_name=svc&limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"limit: must be an integer"}, decodeJSON[errorBody](t, rec).Details)
}

func TestServer_HistoryDisabled(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/history?org_name=acme&repo_name=svc", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "failed_precondition", decodeJSON[errorBody](t, rec).Code)
}

func TestServer_TagsRequestLogWithOrg(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/create_project",
		strings.NewReader(`{"org_name":"acme","repo_name":"svc","team_name":"svc-write"}`))
	ctx := clog.ContextWithSlog(req.Context())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusCreated, rec.Code)
	attrs := clog.GetAttributes(ctx)
	assert.Equal(t, "acme", attrs[clog.OrgAttributeKey])
	assert.NotContains(t, attrs, clog.RunIDAttributeKey)
}
