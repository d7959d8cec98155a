// Package release implements the release state machine, the approval
// quorum, and the store that backs both — the control plane's core domain.
package release

import "time"

// Status is one of the states a Release can occupy. Stored as its lowercase
// token so the wire and the database agree on spelling.
type Status string

const (
	Initiated               Status = "initiated"
	StageBuilding           Status = "stage_building"
	StageBuildingFailed     Status = "stage_building_failed"
	StageTestRollback       Status = "stage_test_rollback"
	StageRollbackTestFailed Status = "stage_rollback_test_failed"
	ManualTesting           Status = "manual_testing"
	ManualTestPassed        Status = "manual_test_passed"
	ManualTestFailed        Status = "manual_test_failed"
	Deploying               Status = "deploying"
	Deployed                Status = "deployed"
	ProductionFailed        Status = "production_failed"
	Rollback                Status = "rollback"
	RollbackDone            Status = "rollback_done"
	RollbackFailed          Status = "rollback_failed"
)

// legalEdges enumerates every allowed status transition. Any edge not listed
// here is a programming error, surfaced as ErrInvalidTransition.
var legalEdges = map[Status][]Status{
	Initiated:         {StageBuilding},
	StageBuilding:     {StageBuildingFailed, StageTestRollback},
	StageTestRollback: {StageRollbackTestFailed, ManualTesting},
	ManualTesting:     {ManualTestPassed, ManualTestFailed},
	ManualTestPassed:  {Deploying},
	Deploying:         {Deployed, ProductionFailed},
	Deployed:          {Rollback},
	Rollback:          {RollbackDone, RollbackFailed},
}

// terminalSuccessful, terminalFailed classify the buckets described in the
// state machine. A release belongs to exactly one of {active, successful,
// failed}.
var terminalSuccessful = map[Status]bool{
	Deployed:     true,
	RollbackDone: true,
}

var terminalFailed = map[Status]bool{
	StageBuildingFailed:     true,
	StageRollbackTestFailed: true,
	ManualTestFailed:        true,
	ProductionFailed:        true,
	RollbackFailed:          true,
}

// IsTerminal reports whether s is a terminal-successful or terminal-failed
// state. Terminal states have no outward edge in legalEdges, except
// Deployed, which keeps its single edge to Rollback.
func (s Status) IsTerminal() bool {
	return terminalSuccessful[s] || terminalFailed[s]
}

// IsSuccessful reports membership in the terminal-successful bucket.
func (s Status) IsSuccessful() bool {
	return terminalSuccessful[s]
}

// IsFailed reports membership in the terminal-failed bucket.
func (s Status) IsFailed() bool {
	return terminalFailed[s]
}

// CanTransitionTo reports whether s → next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, edge := range legalEdges[s] {
		if edge == next {
			return true
		}
	}
	return false
}

// Release is the durable record of one candidate release of one service.
// Mutated only by the Engine — never directly by the console or intake
// handlers.
type Release struct {
	ID            int64
	ServiceName   string
	ReleaseTag    string
	RollbackToTag string
	Status        Status
	InitiatedBy   string
	CIRunID       string
	CIActionLink  string
	CIRef         string
	ApprovedList  []string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Classification is the console's three-way view of a release.
type Classification string

const (
	Active     Classification = "active"
	Successful Classification = "successful"
	Failed     Classification = "failed"
)

// Classify returns which of the three console views r belongs in.
func (r *Release) Classify() Classification {
	switch {
	case r.Status.IsSuccessful():
		return Successful
	case r.Status.IsFailed():
		return Failed
	default:
		return Active
	}
}

// HasApproved reports whether approver already appears in ApprovedList.
func (r *Release) HasApproved(approver string) bool {
	for _, a := range r.ApprovedList {
		if a == approver {
			return true
		}
	}
	return false
}

// Update is the set of optionally-provided fields for Engine.Update. A nil
// field is left unmodified.
type Update struct {
	Status        *Status
	CIRunID       *string
	CIActionLink  *string
	RollbackToTag *string
	ApprovedList  []string
}
