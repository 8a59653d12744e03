package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/viewhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(0)

	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrStoreStopped)
	assert.ErrorIs(t, store.Save(ctx, viewhost.NewSession(time.Minute)), ErrStoreStopped)

	require.NoError(t, store.Start(ctx))
	require.NoError(t, store.Start(ctx), "Start is idempotent")

	sess := viewhost.NewSession(time.Minute)
	sess.Set("user", "ada")
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	v, _ := got.Get("user")
	assert.Equal(t, "ada", v)

	got.Set("user", "grace")
	again, _ := store.Get(ctx, sess.ID)
	v, _ = again.Get("user")
	assert.Equal(t, "ada", v, "returned sessions are copies")

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, viewhost.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Stop(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(0)
	require.NoError(t, store.Start(ctx))

	stale := viewhost.NewSession(time.Minute)
	stale.LastAccessed = time.Now().Add(-time.Hour)
	fresh := viewhost.NewSession(time.Minute)
	require.NoError(t, store.Save(ctx, stale))
	require.NoError(t, store.Save(ctx, fresh))

	_, err := store.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, viewhost.ErrSessionExpired)

	n, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_MaxItems(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(2)
	require.NoError(t, store.Start(ctx))

	a, b := viewhost.NewSession(0), viewhost.NewSession(0)
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))
	assert.ErrorIs(t, store.Save(ctx, viewhost.NewSession(0)), ErrStoreFull)
	assert.NoError(t, store.Save(ctx, a), "updating an existing session is always allowed")
	assert.ErrorIs(t, store.Save(ctx, &viewhost.Session{}), ErrInvalidSession)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(0)
	require.NoError(t, store.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := viewhost.NewSession(time.Minute)
			sess.Set("i", fmt.Sprint(i))
			assert.NoError(t, store.Save(ctx, sess))
			_, err := store.Get(ctx, sess.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, store.Len())
}
