package rollback

import (
	"errors"
	"fmt"
)

// ErrConcurrentRollback is returned by Executor.Launch when the Redis-backed
// lock for service_name is already held — a second line of defense behind
// the Engine's own status check, effective across server replicas.
var ErrConcurrentRollback = errors.New("rollback: a rollback for this service is already in flight")

// LaunchError wraps any failure to open the remote session, upload the
// plan, or start it: SSH connect failure, SFTP upload failure, launch
// failure. Satisfies release.RollbackLaunchError's Err field.
type LaunchError struct {
	Stage string // "connect", "upload", "start", "lock"
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("rollback: %s: %s", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
