package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/internal/release/releasetest"
)

func TestDialogStore_GetCreatesDefault(t *testing.T) {
	store, err := NewDialogStore(4)
	require.NoError(t, err)

	st := store.Get(1)
	assert.Equal(t, ViewActive, st.View)
	assert.Nil(t, st.Current())
}

func TestDialogStore_SetPersists(t *testing.T) {
	store, err := NewDialogStore(4)
	require.NoError(t, err)

	st := store.Get(1)
	st.View = ViewFailed
	store.Set(1, st)

	got := store.Get(1)
	assert.Equal(t, ViewFailed, got.View)
}

func TestRefresh_LoadsActiveByDefault(t *testing.T) {
	ctx := context.Background()
	rstore := releasetest.NewStore()
	policy := release.NewApprovalPolicy([]string{"alice"}, nil)
	engine := release.NewEngine(rstore, policy, &releasetest.FakeCITrigger{}, &releasetest.FakeRollbackLauncher{}, nil)

	_, err := engine.Create(ctx, "svc", "v1", "ci", "run-1", "", "")
	require.NoError(t, err)

	st := &DialogState{View: ViewActive}
	require.NoError(t, refresh(ctx, engine, st))
	assert.Len(t, st.Releases, 1)
	assert.Equal(t, 0, st.Index)
}

func TestRenderRelease_EmptyView(t *testing.T) {
	st := &DialogState{View: ViewActive}
	policy := release.NewApprovalPolicy(nil, nil)
	text, _ := renderRelease(st, policy, "alice")
	assert.Contains(t, text, "No active releases")
}

func TestRenderRelease_ApproveVisibleWhenEligible(t *testing.T) {
	st := &DialogState{
		View: ViewActive,
		Releases: []*release.Release{
			{ID: 1, ServiceName: "svc", ReleaseTag: "v1", Status: release.ManualTesting},
		},
	}
	policy := release.NewApprovalPolicy([]string{"alice"}, nil)
	_, kb := renderRelease(st, policy, "alice")

	found := false
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.Text == "Approve" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestRenderRelease_ApproveHiddenWhenAlreadyApproved(t *testing.T) {
	st := &DialogState{
		View: ViewActive,
		Releases: []*release.Release{
			{ID: 1, ServiceName: "svc", ReleaseTag: "v1", Status: release.ManualTesting, ApprovedList: []string{"alice"}},
		},
	}
	policy := release.NewApprovalPolicy([]string{"alice"}, nil)
	_, kb := renderRelease(st, policy, "alice")

	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			assert.NotEqual(t, "Approve", btn.Text)
		}
	}
}

func TestRenderRollbackPicker_Empty(t *testing.T) {
	text, _ := renderRollbackPicker(nil)
	assert.Contains(t, text, "No other successful releases")
}

func TestRenderRollbackPicker_ListsCandidates(t *testing.T) {
	candidates := []*release.Release{
		{ID: 2, ReleaseTag: "v0.9"},
		{ID: 3, ReleaseTag: "v0.8"},
	}
	text, kb := renderRollbackPicker(candidates)
	assert.Contains(t, text, "v0.9")
	assert.Contains(t, text, "v0.8")
	assert.Len(t, kb.InlineKeyboard, 3) // 2 candidates + cancel row
}
