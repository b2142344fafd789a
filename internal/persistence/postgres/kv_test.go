package postgres

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/gomarketplace/internal/persistence"
	"github.com/utafrali/gomarketplace/pkg/logger"
)

func setupKV(t *testing.T) (*KV, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewKV(mock), mock
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestKV_Get_Success(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(`SELECT value FROM cart_kv WHERE key = \$1`).
		WithArgs("@GoMarketplace/cart").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))

	got, err := kv.Get(context.Background(), "@GoMarketplace/cart")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Get_NotFound(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(`SELECT value FROM cart_kv`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := kv.Get(context.Background(), "missing")
	assert.Nil(t, got)
	assert.True(t, persistence.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Get_DBError(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(`SELECT value FROM cart_kv`).
		WithArgs("k").
		WillReturnError(errors.New("connection reset"))

	_, err := kv.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, persistence.IsNotFound(err))
	assert.Contains(t, err.Error(), "postgres get k")
}

// ---------------------------------------------------------------------------
// Set / Remove
// ---------------------------------------------------------------------------

func TestKV_Set_Upserts(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec(`INSERT INTO cart_kv`).
		WithArgs("k", []byte("v")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, kv.Set(context.Background(), "k", []byte("v")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_Set_Error(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec(`INSERT INTO cart_kv`).
		WithArgs("k", []byte("v")).
		WillReturnError(errors.New("disk full"))

	err := kv.Set(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestKV_Remove(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec(`DELETE FROM cart_kv WHERE key = \$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, kv.Remove(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListKeys / migrations / ping
// ---------------------------------------------------------------------------

func TestKV_ListKeys(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(`SELECT key FROM cart_kv WHERE starts_with\(key, \$1\) ORDER BY key`).
		WithArgs("@GoMarketplace:").
		WillReturnRows(pgxmock.NewRows([]string{"key"}).
			AddRow("@GoMarketplace:a").
			AddRow("@GoMarketplace:b"))

	keys, err := kv.ListKeys(context.Background(), "@GoMarketplace:")
	require.NoError(t, err)
	assert.Equal(t, []string{"@GoMarketplace:a", "@GoMarketplace:b"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_ListKeys_Empty(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectQuery(`SELECT key FROM cart_kv`).
		WithArgs("p:").
		WillReturnRows(pgxmock.NewRows([]string{"key"}))

	keys, err := kv.ListKeys(context.Background(), "p:")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestKV_Migrate(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("0001_cart_kv.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cart_kv`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs("0001_cart_kv.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, kv.Migrate(context.Background(), logger.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_cart_kv.up.sql")
	assert.Contains(t, names, "0001_cart_kv.down.sql")
}

func TestKV_Ping(t *testing.T) {
	kv, mock := setupKV(t)

	mock.ExpectPing()
	require.NoError(t, kv.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
