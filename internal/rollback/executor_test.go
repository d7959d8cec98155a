package rollback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"

	"github.com/gommgo/release-machine/internal/release"
)

func TestExecutor_Launch_MissingTargetConfig(t *testing.T) {
	exec := New(Config{
		ProductionHost:     "prod.internal",
		ProductionUser:     "root",
		ProductionPassword: "secret",
		CallbackBaseURL:    "https://control-plane.internal",
		Targets:            map[string]ServiceTarget{},
	}, nil, nil)

	r := &release.Release{ID: 1, ServiceName: "billing"}
	err := exec.Launch(context.Background(), r, "v1.0.0")

	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "connect", launchErr.Stage)
}

func TestExecutor_Launch_ConnectFailureSurfaces(t *testing.T) {
	exec := New(Config{
		ProductionHost:     "prod.internal",
		ProductionUser:     "root",
		ProductionPassword: "secret",
		ConnectTimeout:     time.Second,
		CallbackBaseURL:    "https://control-plane.internal",
		Targets:            map[string]ServiceTarget{"billing": {Port: 8080, Prefix: "/api/billing"}},
	}, nil, nil)
	exec.dial = func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, errors.New("connection refused")
	}

	r := &release.Release{ID: 1, ServiceName: "billing"}
	err := exec.Launch(context.Background(), r, "v1.0.0")

	var launchErr *LaunchError
	assert.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "connect", launchErr.Stage)
}

func TestExecutor_Launch_HoldsLockAcrossAttempt(t *testing.T) {
	lock := newTestLock(t)
	exec := New(Config{
		ProductionHost:     "prod.internal",
		ProductionUser:     "root",
		ProductionPassword: "secret",
		CallbackBaseURL:    "https://control-plane.internal",
		Targets:            map[string]ServiceTarget{"billing": {Port: 8080, Prefix: "/api/billing"}},
	}, lock, nil)
	exec.dial = func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, errors.New("connection refused")
	}

	r := &release.Release{ID: 1, ServiceName: "billing"}
	_ = exec.Launch(context.Background(), r, "v1.0.0")

	// Launch released the lock on exit even though the attempt failed.
	assert.NoError(t, lock.Acquire(context.Background(), "billing"))
}
