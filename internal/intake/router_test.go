package intake

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gommgo/release-machine/internal/api/middleware"
	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/internal/release/releasetest"
)

func newTestRouter(authCfg middleware.AuthConfig) http.Handler {
	store := releasetest.NewStore()
	ci := &releasetest.FakeCITrigger{}
	rb := &releasetest.FakeRollbackLauncher{}
	policy := release.NewApprovalPolicy([]string{"alice", "bob"}, []string{"alice"})
	engine := release.NewEngine(store, policy, ci, rb, nil)
	handler := New(engine, true, func() error { return nil }, func() error { return nil }, nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter("/api/v1", handler, authCfg, log)
}

func TestRouter_Health_NoAuthRequired(t *testing.T) {
	router := newTestRouter(middleware.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_TableCreate_RequiresAdminWhenAuthEnabled(t *testing.T) {
	authCfg := middleware.AuthConfig{
		EnableAPIKey: true,
		APIKeys: map[string]*middleware.User{
			"ci-secret":     {ID: "ci", Username: "ci", Role: middleware.RoleAdmin},
			"viewer-secret": {ID: "viewer", Username: "viewer", Role: middleware.RoleViewer},
		},
	}
	router := newTestRouter(authCfg)

	reqNoAuth := httptest.NewRequest(http.MethodGet, "/api/v1/table/create", nil)
	recNoAuth := httptest.NewRecorder()
	router.ServeHTTP(recNoAuth, reqNoAuth)
	assert.Equal(t, http.StatusUnauthorized, recNoAuth.Code)

	reqViewer := httptest.NewRequest(http.MethodGet, "/api/v1/table/create", nil)
	reqViewer.Header.Set("Authorization", "ApiKey viewer-secret")
	recViewer := httptest.NewRecorder()
	router.ServeHTTP(recViewer, reqViewer)
	assert.Equal(t, http.StatusForbidden, recViewer.Code)

	reqAdmin := httptest.NewRequest(http.MethodGet, "/api/v1/table/create", nil)
	reqAdmin.Header.Set("Authorization", "ApiKey ci-secret")
	recAdmin := httptest.NewRecorder()
	router.ServeHTTP(recAdmin, reqAdmin)
	assert.Equal(t, http.StatusOK, recAdmin.Code)
}

func TestRouter_CreateRelease_RejectedWithoutCredentialsWhenAuthEnabled(t *testing.T) {
	authCfg := middleware.AuthConfig{
		EnableAPIKey: true,
		APIKeys: map[string]*middleware.User{
			"ci-secret": {ID: "ci", Username: "ci", Role: middleware.RoleAdmin},
		},
	}
	router := newTestRouter(authCfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/release", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
