// Package persistencetest holds a behavioral suite every persistence.KV
// backend runs in its own tests.
package persistencetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/gomarketplace/internal/persistence"
)

// Run exercises kv against the persistence.KV contract. newKV must return an
// empty store.
func Run(t *testing.T, newKV func(t *testing.T) persistence.KV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		kv := newKV(t)
		got, err := kv.Get(context.Background(), "nope")
		assert.Nil(t, got)
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("SetThenGet", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Set(ctx, "k", []byte(`[{"id":"a"}]`)))

		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"a"}]`, string(got))
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Set(ctx, "k", []byte("one")))
		require.NoError(t, kv.Set(ctx, "k", []byte("two")))

		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("Remove", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Set(ctx, "k", []byte("v")))
		require.NoError(t, kv.Remove(ctx, "k"))

		_, err := kv.Get(ctx, "k")
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("RemoveMissing", func(t *testing.T) {
		kv := newKV(t)
		assert.NoError(t, kv.Remove(context.Background(), "never-set"))
	})

	t.Run("ListKeysByPrefix", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		for _, k := range []string{"@GoMarketplace:b", "@GoMarketplace:a", "other:c", "@GoMarket"} {
			require.NoError(t, kv.Set(ctx, k, []byte("x")))
		}

		keys, err := kv.ListKeys(ctx, "@GoMarketplace:")
		require.NoError(t, err)
		assert.Equal(t, []string{"@GoMarketplace:a", "@GoMarketplace:b"}, keys)
	})

	t.Run("ListKeysEmpty", func(t *testing.T) {
		kv := newKV(t)
		keys, err := kv.ListKeys(context.Background(), "cart:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ListKeysGlobCharacters", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Set(ctx, "a*b:1", []byte("x")))
		require.NoError(t, kv.Set(ctx, "axxb:2", []byte("x")))

		keys, err := kv.ListKeys(ctx, "a*b:")
		require.NoError(t, err)
		assert.Equal(t, []string{"a*b:1"}, keys)
	})

	t.Run("Ping", func(t *testing.T) {
		kv := newKV(t)
		assert.NoError(t, kv.Ping(context.Background()))
	})
}
