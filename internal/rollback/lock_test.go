package rollback

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLock(client, time.Minute)
}

func TestLock_AcquireRelease(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "billing"))

	err := l.Acquire(ctx, "billing")
	assert.ErrorIs(t, err, ErrConcurrentRollback)

	require.NoError(t, l.Release(ctx, "billing"))
	assert.NoError(t, l.Acquire(ctx, "billing"))
}

func TestLock_DistinctServicesIndependent(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "billing"))
	assert.NoError(t, l.Acquire(ctx, "inventory"))
}
