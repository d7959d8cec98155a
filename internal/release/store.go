package release

import "context"

// Store is the durable record of every release. Implementations MUST
// serialize all writes to a single release — row-level locking or
// optimistic concurrency with retry — so two concurrent approvals of the
// same release produce one ApprovedList with both entries, never a
// last-write-wins loss.
type Store interface {
	// Create inserts a row with Status = Initiated, ApprovedList = nil,
	// RollbackToTag = "". Not idempotent: the caller (CI, via ci_run_id)
	// is responsible for deduplication.
	Create(ctx context.Context, serviceName, releaseTag, initiatedBy, ciRunID, ciActionLink, ciRef string) (int64, error)

	// Get loads a single release by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id int64) (*Release, error)

	// GetForUpdate loads a release with a row lock held for the lifetime of
	// fn, so the read-modify-write the caller performs inside fn is
	// serialized against concurrent GetForUpdate calls on the same row.
	// Implementations that cannot take a row lock (e.g. in tests) may
	// serialize some other way as long as the same guarantee holds.
	GetForUpdate(ctx context.Context, id int64, fn func(ctx context.Context, r *Release) (*Release, error)) (*Release, error)

	// ListActive, ListSuccessful, ListFailed back the console's three
	// views, per the classification in model.go.
	ListActive(ctx context.Context, serviceName string) ([]*Release, error)
	ListSuccessful(ctx context.Context, serviceName string) ([]*Release, error)
	ListFailed(ctx context.Context, serviceName string) ([]*Release, error)

	// RecentSuccessful returns the most recent terminal-successful releases
	// for serviceName, most recent first, excluding excludeID (0 to exclude
	// nothing), capped at limit. Backs rollback-target selection.
	RecentSuccessful(ctx context.Context, serviceName string, excludeID int64, limit int) ([]*Release, error)
}
