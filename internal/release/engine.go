package release

import (
	"context"
	"log/slog"
	"time"

	"github.com/gommgo/release-machine/pkg/logger"
)

// nowFunc is overridden in tests that need deterministic CompletedAt values.
var nowFunc = time.Now

// CITrigger is the CI Trigger Client's view from the Engine's side: a
// workflow dispatch carrying enough to start a deployment. Consumed only
// through this interface — the concrete implementation lives in
// internal/ci.
type CITrigger interface {
	TriggerDeployment(ctx context.Context, r *Release) error
}

// RollbackLauncher is the Rollback Executor's view from the Engine's side.
// Consumed only through this interface — the concrete implementation lives
// in internal/rollback.
type RollbackLauncher interface {
	Launch(ctx context.Context, r *Release, rollbackToTag string) error
}

// Engine owns the release state machine and its invariants: it is the only
// component permitted to mutate a Release. The console and intake handlers
// call only the Engine, never the Store directly.
type Engine struct {
	store    Store
	approval *ApprovalCoordinator
	ci       CITrigger
	rollback RollbackLauncher
	logger   *slog.Logger
}

// NewEngine wires a Store, approval policy, CI trigger, and rollback
// launcher into an Engine.
func NewEngine(store Store, policy *ApprovalPolicy, ci CITrigger, rollback RollbackLauncher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		approval: NewApprovalCoordinator(store, policy, ci, logger),
		ci:       ci,
		rollback: rollback,
		logger:   logger,
	}
}

// Create starts a new release in Initiated, as reported by a CI
// create_release event. Not idempotent — the caller is expected to
// deduplicate by ciRunID.
func (e *Engine) Create(ctx context.Context, serviceName, releaseTag, initiatedBy, ciRunID, ciActionLink, ciRef string) (int64, error) {
	id, err := e.store.Create(ctx, serviceName, releaseTag, initiatedBy, ciRunID, ciActionLink, ciRef)
	if err != nil {
		return 0, err
	}
	logger.WithRelease(e.logger, id).Info("release created", "service", serviceName, "tag", releaseTag, "ci_run_id", ciRunID)
	return id, nil
}

// Update applies a partial field update to a release, validating any
// requested status edge against the legal-edge table. Repeated
// Update(status=X) while already in X is a no-op. On a transition into a
// terminal state, CompletedAt is stamped.
func (e *Engine) Update(ctx context.Context, id int64, upd Update) (*Release, error) {
	next, err := e.store.GetForUpdate(ctx, id, func(ctx context.Context, r *Release) (*Release, error) {
		return applyUpdate(r, upd)
	})
	if err != nil {
		return nil, err
	}
	logger.WithRelease(e.logger, id).Info("release updated", "status", next.Status)
	return next, nil
}

// applyUpdate computes the next Release value for a requested Update,
// validating the status edge if one is requested. Terminal releases reject
// every transition except Deployed → Rollback.
func applyUpdate(r *Release, upd Update) (*Release, error) {
	next := *r
	if next.ApprovedList != nil {
		next.ApprovedList = append([]string(nil), r.ApprovedList...)
	}

	if upd.Status != nil {
		target := *upd.Status
		if target != r.Status {
			if !r.Status.CanTransitionTo(target) {
				if r.Status.IsTerminal() {
					return nil, ErrTerminal
				}
				return nil, ErrInvalidTransition
			}
			next.Status = target
			if target.IsTerminal() {
				now := nowFunc()
				next.CompletedAt = &now
			}
		}
	}
	if upd.CIRunID != nil {
		next.CIRunID = *upd.CIRunID
	}
	if upd.CIActionLink != nil {
		next.CIActionLink = *upd.CIActionLink
	}
	if upd.RollbackToTag != nil {
		next.RollbackToTag = *upd.RollbackToTag
	}
	if upd.ApprovedList != nil {
		next.ApprovedList = upd.ApprovedList
	}
	return &next, nil
}

// Approve delegates to the Approval Coordinator.
func (e *Engine) Approve(ctx context.Context, id int64, approver string) (ApprovalResult, error) {
	return e.approval.Approve(ctx, id, approver)
}

// Reject delegates to the Approval Coordinator.
func (e *Engine) Reject(ctx context.Context, id int64, approver string) error {
	return e.approval.Reject(ctx, id, approver)
}

// Rollback launches a production rollback of a Deployed release to
// rollbackToTag. The Engine refuses if the release is already in Rollback.
// On launch failure, the status reverts to Deployed, the only legal outward
// transition from Rollback when nothing has run.
func (e *Engine) Rollback(ctx context.Context, id int64, rollbackToTag string) (*Release, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == Rollback {
		return nil, ErrRollbackInProgress
	}

	announced, err := e.store.GetForUpdate(ctx, id, func(ctx context.Context, r *Release) (*Release, error) {
		if r.Status == Rollback {
			return nil, ErrRollbackInProgress
		}
		rollbackStatus := Rollback
		tag := rollbackToTag
		return applyUpdate(r, Update{Status: &rollbackStatus, RollbackToTag: &tag})
	})
	if err != nil {
		return nil, err
	}

	if err := e.rollback.Launch(ctx, announced, rollbackToTag); err != nil {
		deployed := Deployed
		empty := ""
		reverted, revertErr := e.store.GetForUpdate(ctx, id, func(ctx context.Context, r *Release) (*Release, error) {
			return applyUpdate(r, Update{Status: &deployed, RollbackToTag: &empty})
		})
		if revertErr != nil {
			logger.WithRelease(e.logger, id).Error("failed to revert release after rollback launch failure", "error", revertErr)
		} else {
			announced = reverted
		}
		return announced, &RollbackLaunchError{ReleaseID: id, Err: err}
	}

	return announced, nil
}

// ListActive, ListSuccessful, ListFailed back the console's three views.
func (e *Engine) ListActive(ctx context.Context, serviceName string) ([]*Release, error) {
	return e.store.ListActive(ctx, serviceName)
}

func (e *Engine) ListSuccessful(ctx context.Context, serviceName string) ([]*Release, error) {
	return e.store.ListSuccessful(ctx, serviceName)
}

func (e *Engine) ListFailed(ctx context.Context, serviceName string) ([]*Release, error) {
	return e.store.ListFailed(ctx, serviceName)
}

// RecentSuccessful backs rollback-target selection in the Operator Console.
func (e *Engine) RecentSuccessful(ctx context.Context, serviceName string, excludeID int64, limit int) ([]*Release, error) {
	return e.store.RecentSuccessful(ctx, serviceName, excludeID, limit)
}

// Get loads a single release, used by the console and intake handlers for
// read-only lookups that don't need the Engine's write-path validation.
func (e *Engine) Get(ctx context.Context, id int64) (*Release, error) {
	return e.store.Get(ctx, id)
}
