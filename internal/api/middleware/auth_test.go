package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware_SharedSecretGrantsOperator(t *testing.T) {
	cfg := AuthConfig{SharedSecret: "ci-secret-value"}
	var gotUser *User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/release", nil)
	req.Header.Set(releaseSecretHeader, "ci-secret-value")
	rec := httptest.NewRecorder()

	AuthMiddleware(cfg)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.NotNil(t, gotUser) {
		assert.Equal(t, RoleOperator, gotUser.Role)
	}
}

func TestAuthMiddleware_SharedSecretRejectsWrongValue(t *testing.T) {
	cfg := AuthConfig{SharedSecret: "ci-secret-value"}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/release", nil)
	req.Header.Set(releaseSecretHeader, "wrong")
	rec := httptest.NewRecorder()

	AuthMiddleware(cfg)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_SharedSecretCannotReachAdminRoutes(t *testing.T) {
	cfg := AuthConfig{SharedSecret: "ci-secret-value"}
	var called bool
	admin := RBACMiddleware(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	handler := AuthMiddleware(cfg)(admin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/table/create", nil)
	req.Header.Set(releaseSecretHeader, "ci-secret-value")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called, "CI's operator identity must not satisfy an admin-gated route")
}

func TestAuthMiddleware_FallsBackToAPIKeyWhenSecretHeaderAbsent(t *testing.T) {
	cfg := AuthConfig{
		SharedSecret: "ci-secret-value",
		EnableAPIKey: true,
		APIKeys:      map[string]*User{"operator-key": {ID: "alice", Role: RoleAdmin}},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/table/create", nil)
	req.Header.Set(AuthorizationHeader, "ApiKey operator-key")
	rec := httptest.NewRecorder()

	AuthMiddleware(cfg)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
