package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	svc, _, _ := newTestService()
	return NewHandler(svc)
}

func doRequest(h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandler_Register_Success(t *testing.T) {
	h := newTestHandler()

	rr := doRequest(h, http.MethodPost, "/register", credentialsRequest{Login: "alice", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp authResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.AccountID)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestHandler_Register_DuplicateReturns409(t *testing.T) {
	h := newTestHandler()

	rr := doRequest(h, http.MethodPost, "/register", credentialsRequest{Login: "alice", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(h, http.MethodPost, "/register", credentialsRequest{Login: "alice", Password: "other"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_Login_WrongPasswordReturns401(t *testing.T) {
	h := newTestHandler()

	rr := doRequest(h, http.MethodPost, "/register", credentialsRequest{Login: "alice", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(h, http.MethodPost, "/login", credentialsRequest{Login: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_TwoFA_GenerateReturnsProvisioningURI(t *testing.T) {
	h := newTestHandler()

	rr := doRequest(h, http.MethodGet, "/1/two-fa", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp twoFAKeyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Key)
	assert.Contains(t, resp.ProvisioningURI, "otpauth://")
}

func TestAccountIDFromPath_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/not-a-number/two-fa", nil)
	req = mux.SetURLVars(req, map[string]string{"account_id": "not-a-number"})
	_, err := accountIDFromPath(req)
	assert.Error(t, err)
}
