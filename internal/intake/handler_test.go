package intake

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/internal/release/releasetest"
)

func newTestHandler() *Handler {
	store := releasetest.NewStore()
	ci := &releasetest.FakeCITrigger{}
	rb := &releasetest.FakeRollbackLauncher{}
	policy := release.NewApprovalPolicy([]string{"alice", "bob"}, []string{"alice"})
	engine := release.NewEngine(store, policy, ci, rb, nil)
	return New(engine, true, func() error { return nil }, func() error { return nil }, nil)
}

func doJSON(h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/release", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandler_CreateRelease_Success(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(h.CreateRelease, http.MethodPost, `{
		"service_name": "billing",
		"release_tag": "v1.0.0",
		"initiated_by": "ci",
		"ci_run_id": "run-1"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CreateReleaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ReleaseID)
}

func TestHandler_CreateRelease_MissingFields(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(h.CreateRelease, http.MethodPost, `{"service_name": "billing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UpdateRelease_InvalidTransition(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(h.CreateRelease, http.MethodPost, `{
		"service_name": "billing", "release_tag": "v1", "initiated_by": "ci", "ci_run_id": "run-1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h.UpdateRelease, http.MethodPatch, `{"release_id": 1, "status": "deployed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UpdateRelease_UnknownID(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(h.UpdateRelease, http.MethodPatch, `{"release_id": 999, "status": "stage_building"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandler_SchemaBootstrap_Disabled(t *testing.T) {
	store := releasetest.NewStore()
	policy := release.NewApprovalPolicy([]string{"alice"}, nil)
	engine := release.NewEngine(store, policy, &releasetest.FakeCITrigger{}, &releasetest.FakeRollbackLauncher{}, nil)
	h := New(engine, false, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/table/create", nil)
	rec := httptest.NewRecorder()
	h.CreateTable(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
