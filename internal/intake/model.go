// Package intake implements the Event Intake HTTP API: the two endpoints
// (create/update release) CI reports release lifecycle events to, plus
// health and schema-bootstrap endpoints.
package intake

import "github.com/gommgo/release-machine/internal/release"

// CreateReleaseRequest is the body of POST {prefix}/release, spec.md §4.5.
type CreateReleaseRequest struct {
	ServiceName  string `json:"service_name" validate:"required"`
	ReleaseTag   string `json:"release_tag" validate:"required"`
	InitiatedBy  string `json:"initiated_by" validate:"required"`
	CIRunID      string `json:"ci_run_id" validate:"required"`
	CIActionLink string `json:"ci_action_link"`
	CIRef        string `json:"ci_ref"`
}

// CreateReleaseResponse is the 201 body of POST {prefix}/release.
type CreateReleaseResponse struct {
	ReleaseID int64 `json:"release_id"`
}

// UpdateReleaseRequest is the body of PATCH {prefix}/release, spec.md §4.5.
// Only non-nil fields are applied.
type UpdateReleaseRequest struct {
	ReleaseID     int64           `json:"release_id" validate:"required"`
	Status        *release.Status `json:"status,omitempty"`
	CIRunID       *string         `json:"ci_run_id,omitempty"`
	CIActionLink  *string         `json:"ci_action_link,omitempty"`
	RollbackToTag *string         `json:"rollback_to_tag,omitempty"`
}

// ErrorResponse is the standard JSON error envelope for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
