package releasetest

import (
	"context"
	"sync"

	"github.com/gommgo/release-machine/internal/release"
)

// FakeCITrigger records every TriggerDeployment call. Err, if set, is
// returned (and not recorded as a success) on every call.
type FakeCITrigger struct {
	mu    sync.Mutex
	Calls []*release.Release
	Err   error
}

// TriggerDeployment implements release.CITrigger.
func (f *FakeCITrigger) TriggerDeployment(ctx context.Context, r *release.Release) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Calls = append(f.Calls, r)
	return nil
}

// CallCount returns the number of successful TriggerDeployment calls.
func (f *FakeCITrigger) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeRollbackLauncher records Launch calls and can be configured to fail.
type FakeRollbackLauncher struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

// Launch implements release.RollbackLauncher.
func (f *FakeRollbackLauncher) Launch(ctx context.Context, r *release.Release, rollbackToTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	return f.Err
}
