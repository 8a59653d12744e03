package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/GoCodeAlone/viewhost"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+mr.Addr()+"/0", "test:session:")
	require.NoError(t, err)
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(func() { _ = store.Stop(context.Background()) })
	return store, mr
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := newRedisStore(t)

	sess := viewhost.NewSession(10 * time.Minute)
	sess.Set("theme", "dark")
	require.NoError(t, store.Save(ctx, sess))
	assert.True(t, mr.Exists("test:session:"+sess.ID))
	assert.Equal(t, 10*time.Minute, mr.TTL("test:session:"+sess.ID))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.False(t, got.IsNew())
	v, _ := got.Get("theme")
	assert.Equal(t, "dark", v)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, viewhost.ErrSessionNotFound)
}

func TestRedisStore_ExpiresWithTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := newRedisStore(t)

	sess := viewhost.NewSession(time.Minute)
	require.NoError(t, store.Save(ctx, sess))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, viewhost.ErrSessionNotFound)
}

func TestRedisStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)
	require.NoError(t, store.Start(ctx), "Start is idempotent")

	require.NoError(t, store.Stop(ctx))
	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrStoreStopped)
	assert.NoError(t, store.Stop(ctx))

	require.NoError(t, store.Start(ctx), "a stopped store can be restarted")
	_, err = store.Get(ctx, "x")
	assert.ErrorIs(t, err, viewhost.ErrSessionNotFound)
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	store, err := NewRedisStore("redis://"+addr, "x:")
	require.NoError(t, err)
	assert.Error(t, store.Start(context.Background()))

	_, err = NewRedisStore("not a url", "x:")
	assert.Error(t, err)
}

func TestRedisStore_SharedWithSessionHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	first := viewhost.NewSharedSessionHandler(store)
	second := viewhost.NewSharedSessionHandler(store)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, second.Start(ctx))
	require.NoError(t, first.Stop(ctx))

	sess := viewhost.NewSession(time.Minute)
	require.NoError(t, second.Store().Save(ctx, sess), "the store outlives a view's session handler")
}
