package bot

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestRedisDialogStore(t *testing.T) *RedisDialogStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisDialogStore(client)
}

func TestRedisDialogStore_GetMissingReturnsFreshState(t *testing.T) {
	s := newTestRedisDialogStore(t)
	st := s.Get(42)
	assert.Equal(t, ViewActive, st.View)
	assert.Nil(t, st.Current())
}

func TestRedisDialogStore_SetThenGetRoundTrips(t *testing.T) {
	s := newTestRedisDialogStore(t)
	want := &DialogState{View: ViewFailed, Index: 1, RollbackSourceID: 7}

	s.Set(99, want)
	got := s.Get(99)

	assert.Equal(t, want.View, got.View)
	assert.Equal(t, want.Index, got.Index)
	assert.Equal(t, want.RollbackSourceID, got.RollbackSourceID)
}
