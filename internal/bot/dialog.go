// Package bot implements the Operator Console: a Telegram-based chat
// interface presenting active/successful/failed releases, one at a time,
// with approve/reject and rollback-start actions routed only through the
// Release Engine (spec.md §4.6).
package bot

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gommgo/release-machine/internal/release"
)

// View is one of the console's three top-level views.
type View string

const (
	ViewActive     View = "active"
	ViewSuccessful View = "successful"
	ViewFailed     View = "failed"
)

// DialogState is the per-conversation state the console keeps beyond the
// Engine's ground truth: the selected view, a cached page of releases, the
// current index into it, and any rollback target pending confirmation.
// Refreshed from the Engine on every /start and "refresh" callback —
// mirrors the original's dialog_manager.dialog_data being ephemeral,
// per-conversation state (spec.md §4.6).
type DialogState struct {
	View     View
	Releases []*release.Release
	Index    int

	// RollbackSourceID is the DEPLOYED release the operator chose to roll
	// back, set when they tap "Rollback" on it.
	RollbackSourceID int64
	// RollbackCandidates is the last-3-successful-releases page offered as
	// rollback targets.
	RollbackCandidates []*release.Release
	// PendingRollbackTarget is the candidate the operator picked, awaiting
	// confirmation before Engine.Rollback fires.
	PendingRollbackTarget *release.Release
}

// Current returns the release the dialog is positioned on, or nil if the
// cached page is empty.
func (d *DialogState) Current() *release.Release {
	if d == nil || d.Index < 0 || d.Index >= len(d.Releases) {
		return nil
	}
	return d.Releases[d.Index]
}

// DialogStore is an in-memory LRU of chatID -> *DialogState, grounded on the
// teacher's hashicorp/golang-lru usage in internal/notification/template
// (TemplateCache), generalized here to per-chat dialog state instead of
// parsed templates.
type DialogStore struct {
	cache *lru.Cache[int64, *DialogState]
}

// NewDialogStore builds a DialogStore holding at most size conversations'
// worth of state, evicting least-recently-used chats beyond that.
func NewDialogStore(size int) (*DialogStore, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[int64, *DialogState](size)
	if err != nil {
		return nil, err
	}
	return &DialogStore{cache: c}, nil
}

// Get returns the dialog state for chatID, creating an empty one (view
// ViewActive) if absent.
func (s *DialogStore) Get(chatID int64) *DialogState {
	if st, ok := s.cache.Get(chatID); ok {
		return st
	}
	st := &DialogState{View: ViewActive}
	s.cache.Add(chatID, st)
	return st
}

// Set overwrites the dialog state for chatID.
func (s *DialogStore) Set(chatID int64, st *DialogState) {
	s.cache.Add(chatID, st)
}
