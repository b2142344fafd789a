package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/internal/persistence/persistencetest"
)

func openTestKV(t *testing.T, path string) *KV {
	t.Helper()
	kv, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestKV_Conformance(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.KV {
		return openTestKV(t, filepath.Join(t.TempDir(), "cart.db"))
	})
}

func TestOpen_EmptyPath(t *testing.T) {
	kv, err := Open("  ")
	assert.Nil(t, kv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage path is required")
}

func TestKV_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.db")
	ctx := context.Background()

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "@GoMarketplace/cart", []byte(`[{"id":"a","quantity":2}]`)))
	require.NoError(t, first.Close())

	second := openTestKV(t, path)
	got, err := second.Get(ctx, "@GoMarketplace/cart")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","quantity":2}]`, string(got))
}

func TestKV_SetEmptyValue(t *testing.T) {
	kv := openTestKV(t, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", nil))

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKV_CloseNil(t *testing.T) {
	var kv *KV
	assert.NoError(t, kv.Close())
}
