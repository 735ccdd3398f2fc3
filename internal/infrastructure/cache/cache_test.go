package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire then complete then load", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		ok, err := store.Acquire(ctx, "k1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Acquire(ctx, "k1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "second claim must fail while the first is in flight")

		resp, err := store.Load(ctx, "k1")
		require.NoError(t, err)
		assert.Nil(t, resp)

		require.NoError(t, store.Complete(ctx, "k1", shared.StoredResponse{
			StatusCode: 201, ContentType: "application/json", Body: []byte(`{"ok":true}`), RequestHash: "h",
		}, time.Minute))

		resp, err = store.Load(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 201, resp.StatusCode)
		assert.Equal(t, "h", resp.RequestHash)

		ok, err = store.Acquire(ctx, "k1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("abandon frees an in-flight key", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		ok, _ := store.Acquire(ctx, "k2", time.Minute)
		require.True(t, ok)
		require.NoError(t, store.Abandon(ctx, "k2"))

		ok, err := store.Acquire(ctx, "k2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("abandon keeps completed responses", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		require.NoError(t, store.Complete(ctx, "k3", shared.StoredResponse{StatusCode: 200}, time.Minute))
		require.NoError(t, store.Abandon(ctx, "k3"))

		resp, err := store.Load(ctx, "k3")
		require.NoError(t, err)
		assert.NotNil(t, resp)
	})

	t.Run("entries expire", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }

		require.NoError(t, store.Complete(ctx, "k4", shared.StoredResponse{StatusCode: 200}, time.Minute))
		now = now.Add(2 * time.Minute)

		resp, err := store.Load(ctx, "k4")
		require.NoError(t, err)
		assert.Nil(t, resp)

		store.cleanup()
		assert.Equal(t, 0, store.Size())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	unlock, err := locker.Obtain(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotObtained)

	_, err = locker.Obtain(ctx, "scan", time.Minute)
	assert.NoError(t, err, "locks are per key")

	require.NoError(t, unlock(ctx))
	unlock, err = locker.Obtain(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	// Expired lock can be taken over; the stale unlock must not free the new holder
	now = now.Add(2 * time.Minute)
	_, err = locker.Obtain(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
	_, err = locker.Obtain(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotObtained)
}
