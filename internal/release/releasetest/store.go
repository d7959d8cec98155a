// Package releasetest provides an in-memory release.Store and fake
// collaborators for tests across the control plane, playing the role the
// teacher fills with sqlmock for lighter unit tests (see DESIGN.md for why
// the domain-level test suite uses this instead of spinning up Postgres).
package releasetest

import (
	"context"
	"sync"

	"github.com/gommgo/release-machine/internal/release"
)

// Store is an in-memory release.Store. Row-level locking is simulated with
// a single mutex held for the duration of GetForUpdate's callback, giving
// the same "serialize all writes to a single release" guarantee spec.md §5
// requires without a real database.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	releases map[int64]*release.Release
}

// NewStore builds an empty in-memory Store.
func NewStore() *Store {
	return &Store{releases: make(map[int64]*release.Release)}
}

func clone(r *release.Release) *release.Release {
	c := *r
	c.ApprovedList = append([]string(nil), r.ApprovedList...)
	return &c
}

// Create implements release.Store.
func (s *Store) Create(ctx context.Context, serviceName, releaseTag, initiatedBy, ciRunID, ciActionLink, ciRef string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.releases[id] = &release.Release{
		ID:           id,
		ServiceName:  serviceName,
		ReleaseTag:   releaseTag,
		InitiatedBy:  initiatedBy,
		CIRunID:      ciRunID,
		CIActionLink: ciActionLink,
		CIRef:        ciRef,
		Status:       release.Initiated,
		ApprovedList: nil,
	}
	return id, nil
}

// Get implements release.Store.
func (s *Store) Get(ctx context.Context, id int64) (*release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.releases[id]
	if !ok {
		return nil, release.ErrNotFound
	}
	return clone(r), nil
}

// GetForUpdate implements release.Store, serializing the whole
// read-modify-write under the store's single mutex — sufficient to prove
// the "no last-write-wins loss" property in concurrent tests even though
// it is coarser than the real Postgres row lock.
func (s *Store) GetForUpdate(ctx context.Context, id int64, fn func(ctx context.Context, r *release.Release) (*release.Release, error)) (*release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.releases[id]
	if !ok {
		return nil, release.ErrNotFound
	}

	next, err := fn(ctx, clone(current))
	if err != nil {
		return nil, err
	}

	s.releases[id] = clone(next)
	return clone(next), nil
}

func (s *Store) listByClassification(serviceName string, want release.Classification) []*release.Release {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*release.Release
	for _, r := range s.releases {
		if serviceName != "" && r.ServiceName != serviceName {
			continue
		}
		if r.Classify() == want {
			out = append(out, clone(r))
		}
	}
	return out
}

// ListActive implements release.Store.
func (s *Store) ListActive(ctx context.Context, serviceName string) ([]*release.Release, error) {
	return s.listByClassification(serviceName, release.Active), nil
}

// ListSuccessful implements release.Store.
func (s *Store) ListSuccessful(ctx context.Context, serviceName string) ([]*release.Release, error) {
	return s.listByClassification(serviceName, release.Successful), nil
}

// ListFailed implements release.Store.
func (s *Store) ListFailed(ctx context.Context, serviceName string) ([]*release.Release, error) {
	return s.listByClassification(serviceName, release.Failed), nil
}

// RecentSuccessful implements release.Store.
func (s *Store) RecentSuccessful(ctx context.Context, serviceName string, excludeID int64, limit int) ([]*release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}

	var out []*release.Release
	for _, r := range s.releases {
		if r.ServiceName != serviceName || r.ID == excludeID {
			continue
		}
		if r.Classify() == release.Successful {
			out = append(out, clone(r))
		}
	}
	// newest-first by CompletedAt, insertion order is not guaranteed by the
	// map so a simple selection sort keeps this dependency-free.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CompletedAt != nil && (out[i].CompletedAt == nil || out[j].CompletedAt.After(*out[i].CompletedAt)) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
