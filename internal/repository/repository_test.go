package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/celery8911/InnerLedger/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestRelayTransactionRepository_GetByTxHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRelayTransactionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "sender", "target", "gas", "deadline", "tx_hash", "status"}).
		AddRow("id-1", "0xabc", "0xdef", 450000, 1700003600, "0xhash", "submitted")
	mock.ExpectQuery(`SELECT \* FROM "relay_transactions" WHERE tx_hash = \$1`).
		WillReturnRows(rows)

	tx, err := repo.GetByTxHash(context.Background(), "0xhash")
	require.NoError(t, err)
	assert.Equal(t, "id-1", tx.ID)
	assert.Equal(t, uint64(450000), tx.Gas)
	assert.Equal(t, models.RelayStatusSubmitted, tx.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayTransactionRepository_GetByTxHashNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRelayTransactionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "relay_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByTxHash(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelayTransactionRepository_GetByTxHashDBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRelayTransactionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "relay_transactions"`).WillReturnError(sql.ErrConnDone)

	_, err := repo.GetByTxHash(context.Background(), "0xhash")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRelayTransactionRepository_MarkStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRelayTransactionRepository(db)

	mock.ExpectExec(`UPDATE "relay_transactions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkStatus(context.Background(), "0xhash", models.RelayStatusFailed, "nonce too low")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayTransactionRepository_CountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRelayTransactionRepository(db)

	mock.ExpectQuery(`SELECT status, count\(\*\) as count FROM "relay_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("confirmed", 7).
			AddRow("reverted", 2))

	stats, err := repo.CountByStatus(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, models.RelayStatusConfirmed, stats[0].Status)
	assert.Equal(t, int64(7), stats[0].Count)
}

func TestIdempotencyRepository_FindMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "relay_idempotency_keys" WHERE sender = \$1 AND key = \$2 AND expires_at > \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Find(context.Background(), "0xabc", "k1", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdempotencyRepository_FindHit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(`SELECT \* FROM "relay_idempotency_keys"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sender", "key", "tx_hash", "expires_at"}).
			AddRow("id-1", "0xabc", "k1", "0xhash", expires))

	rec, err := repo.Find(context.Background(), "0xabc", "k1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "0xhash", rec.TxHash)
	assert.False(t, rec.Expired(time.Now()))
	assert.True(t, rec.Expired(expires))
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIdempotencyRepository(db)

	mock.ExpectExec(`DELETE FROM "relay_idempotency_keys" WHERE expires_at <= \$1`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
