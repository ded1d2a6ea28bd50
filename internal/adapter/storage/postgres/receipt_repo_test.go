package postgres

import (
	"context"
	"testing"
	"time"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReceiptRepo(mock)
	vaultID, transferID := uuid.New(), uuid.New()
	log := &domain.ReceiptLog{
		Key:        domain.BuildReceiptKey(vaultID, transferID),
		TransferID: transferID,
		AppliedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO receipt_logs").
		WithArgs(log.Key, log.TransferID, log.AppliedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, log)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReceiptRepo(mock)
	vaultID, transferID := uuid.New(), uuid.New()
	key := domain.BuildReceiptKey(vaultID, transferID)
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM receipt_logs WHERE key").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key", "transfer_id", "applied_at"}).
			AddRow(key, transferID, now))

	result, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, transferID, result.TransferID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReceiptRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM receipt_logs WHERE key").
		WithArgs("no-such-key").
		WillReturnRows(pgxmock.NewRows([]string{"key", "transfer_id", "applied_at"}))

	result, err := repo.Get(context.Background(), "no-such-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
