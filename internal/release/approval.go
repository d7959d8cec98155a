package release

import (
	"context"
	"log/slog"

	"github.com/gommgo/release-machine/pkg/logger"
)

// ApprovalResult is the outcome of a single Approve call, per spec.md §4.2.
type ApprovalResult string

const (
	AcceptedNotFinal ApprovalResult = "accepted_not_final"
	AcceptedFinal    ApprovalResult = "accepted_final"
)

// ApprovalCoordinator admits or rejects an approval attempt on a release
// currently in ManualTesting, decides when the quorum closes, and drives the
// side effects of closure: the list and the transition are persisted
// atomically, and the CI dispatch follows once that commit has happened.
//
// Grounded on the original ActiveReleaseService.handle_confirm_yes: the
// quorum-closing branch appends, persists, transitions, and dispatches CI in
// one code path; the non-closing branch only appends and persists.
type ApprovalCoordinator struct {
	store  Store
	policy *ApprovalPolicy
	ci     CITrigger
	logger *slog.Logger
}

// NewApprovalCoordinator wires a Store, ApprovalPolicy, and CITrigger into a
// coordinator. Used only by Engine — not part of the public console/intake
// surface.
func NewApprovalCoordinator(store Store, policy *ApprovalPolicy, ci CITrigger, logger *slog.Logger) *ApprovalCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalCoordinator{store: store, policy: policy, ci: ci, logger: logger}
}

// Approve implements the algorithm of spec.md §4.2 step by step:
//
//  1. Load the release; status must be ManualTesting or this fails
//     ErrNotInQuorumWindow.
//  2. approver must be a member of the configured required-approver set or
//     this fails ErrNotEligible.
//  3. approver must not already be recorded or this fails ErrAlreadyApproved.
//  4. Append approver. If the list is still short of quorum, persist and
//     return AcceptedNotFinal.
//  5. If the append closes the quorum, persist the list and transition to
//     ManualTestPassed in one GetForUpdate critical section, then dispatch
//     the CI workflow after that commit; return AcceptedFinal. If the CI dispatch fails the
//     store commit has already happened — the transition to
//     ManualTestPassed stands, and the caller (console) surfaces the
//     dispatch error for an operator-initiated retry.
func (c *ApprovalCoordinator) Approve(ctx context.Context, id int64, approver string) (ApprovalResult, error) {
	var result ApprovalResult
	var dispatchErr error
	var finalRelease *Release

	_, err := c.store.GetForUpdate(ctx, id, func(ctx context.Context, r *Release) (*Release, error) {
		if r.Status != ManualTesting {
			return nil, ErrNotInQuorumWindow
		}
		if !c.policy.IsEligible(approver) {
			return nil, ErrNotEligible
		}
		if r.HasApproved(approver) {
			return nil, ErrAlreadyApproved
		}

		approvedList := append(append([]string(nil), r.ApprovedList...), approver)

		if len(approvedList) < c.policy.QuorumSize() {
			result = AcceptedNotFinal
			return applyUpdate(r, Update{ApprovedList: approvedList})
		}

		result = AcceptedFinal
		passed := ManualTestPassed
		next, err := applyUpdate(r, Update{ApprovedList: approvedList, Status: &passed})
		if err != nil {
			return nil, err
		}
		finalRelease = next
		return next, nil
	})
	if err != nil {
		return "", err
	}

	if result == AcceptedFinal && finalRelease != nil {
		if dispatchErr = c.ci.TriggerDeployment(ctx, finalRelease); dispatchErr != nil {
			logger.WithRelease(c.logger, id).Error("CI dispatch failed after quorum closed", "error", dispatchErr)
			return result, &CIDispatchError{ReleaseID: id, Err: dispatchErr}
		}
		logger.WithRelease(c.logger, id).Info("quorum closed, CI dispatch sent", "approver", approver)
	} else {
		logger.WithRelease(c.logger, id).Info("approval recorded", "approver", approver, "result", result)
	}

	return result, nil
}

// Reject transitions a release from ManualTesting to ManualTestFailed on a
// single call from an eligible approver. There is no multi-vote rejection.
// CI is not notified — it observes the terminal state via its own polling
// or callback.
func (c *ApprovalCoordinator) Reject(ctx context.Context, id int64, rejector string) error {
	if !c.policy.IsEligible(rejector) {
		return ErrNotEligible
	}

	_, err := c.store.GetForUpdate(ctx, id, func(ctx context.Context, r *Release) (*Release, error) {
		if r.Status != ManualTesting {
			return nil, ErrNotInQuorumWindow
		}
		failed := ManualTestFailed
		return applyUpdate(r, Update{Status: &failed})
	})
	if err != nil {
		return err
	}

	logger.WithRelease(c.logger, id).Info("release rejected", "rejector", rejector)
	return nil
}
