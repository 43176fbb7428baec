package tokencache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/kcadmin/tokencache"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cache reports a miss", func(t *testing.T) {
		cache := tokencache.NewMemory()

		token, expiresAt, err := cache.Get(ctx)

		require.NoError(t, err)
		assert.Empty(t, token)
		assert.True(t, expiresAt.IsZero())
	})

	t.Run("stores and returns a token", func(t *testing.T) {
		cache := tokencache.NewMemory()
		expiresAt := time.Now().Add(5 * time.Minute)

		require.NoError(t, cache.Put(ctx, "cached-token", expiresAt))

		token, gotExpiry, err := cache.Get(ctx)

		require.NoError(t, err)
		assert.Equal(t, "cached-token", token)
		assert.Equal(t, expiresAt, gotExpiry)
	})

	t.Run("expired entry reports a miss", func(t *testing.T) {
		cache := tokencache.NewMemory()

		require.NoError(t, cache.Put(ctx, "stale-token", time.Now().Add(-time.Second)))

		token, _, err := cache.Get(ctx)

		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("later Put replaces the entry", func(t *testing.T) {
		cache := tokencache.NewMemory()

		require.NoError(t, cache.Put(ctx, "first", time.Now().Add(time.Minute)))
		require.NoError(t, cache.Put(ctx, "second", time.Now().Add(2*time.Minute)))

		token, _, err := cache.Get(ctx)

		require.NoError(t, err)
		assert.Equal(t, "second", token)
	})
}
