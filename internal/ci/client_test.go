package ci

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gommgo/release-machine/internal/release"
)

func TestClient_TriggerDeployment_Success(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:    srv.URL,
		Owner:      "acme",
		Repo:       "platform",
		WorkflowID: "deploy.yml",
		Token:      "secret-token",
	}, http.DefaultClient, nil)

	r := &release.Release{ID: 42, ServiceName: "billing", ReleaseTag: "v1.2.3"}
	err := c.TriggerDeployment(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/repos/acme/platform/actions/workflows/deploy.yml/dispatches", gotPath)
}

func TestClient_TriggerDeployment_NonTwoXX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Owner: "acme", Repo: "platform", WorkflowID: "deploy.yml", Token: "t"}, http.DefaultClient, nil)
	r := &release.Release{ID: 1, ServiceName: "svc", ReleaseTag: "v1"}

	err := c.TriggerDeployment(context.Background(), r)
	assert.Error(t, err)
}

func TestClient_Dispatch_DefaultsRef(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Owner: "a", Repo: "b", WorkflowID: "w.yml", Token: "t"}, http.DefaultClient, nil)
	err := c.Dispatch(context.Background(), "", map[string]string{"x": "y"})
	require.NoError(t, err)
	assert.Contains(t, gotBody, `"ref":"main"`)
}
