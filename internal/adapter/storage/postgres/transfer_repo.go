package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferRepo implements ports.TransferRepository.
type TransferRepo struct {
	pool Pool
}

// NewTransferRepo creates a new TransferRepo.
func NewTransferRepo(pool Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

const transferColumns = `id, vault_id, destination, asset, amount, base_value, shares,
		origin_unitary_value, mode, status, created_at, settled_at`

// Create inserts a dispatched transfer within a transaction.
func (r *TransferRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.ReplicaTransfer) error {
	query := `INSERT INTO replica_transfers (id, vault_id, destination, asset, amount, base_value, shares,
		origin_unitary_value, mode, status, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.VaultID, t.Destination, string(t.Asset), t.Amount, t.BaseValue, t.Shares,
		t.OriginUnitaryValue, string(t.Mode), string(t.Status), t.CreatedAt, t.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert replica transfer: %w", err)
	}
	return nil
}

// Get fetches a transfer by UUID.
func (r *TransferRepo) Get(ctx context.Context, id uuid.UUID) (*domain.ReplicaTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM replica_transfers WHERE id = $1`
	return scanTransfer(r.pool.QueryRow(ctx, query, id))
}

// GetForUpdate fetches a transfer with pessimistic locking.
// This MUST be called within a transaction.
func (r *TransferRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ReplicaTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM replica_transfers WHERE id = $1 FOR UPDATE`
	return scanTransfer(tx.QueryRow(ctx, query, id))
}

// UpdateStatus moves a transfer to a terminal status within a transaction.
func (r *TransferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus) error {
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE replica_transfers SET status = $1, settled_at = $2 WHERE id = $3`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("replica transfer not found: %s", id)
	}
	return nil
}

func scanTransfer(row pgx.Row) (*domain.ReplicaTransfer, error) {
	t := &domain.ReplicaTransfer{}
	err := row.Scan(
		&t.ID, &t.VaultID, &t.Destination, &t.Asset, &t.Amount, &t.BaseValue, &t.Shares,
		&t.OriginUnitaryValue, &t.Mode, &t.Status, &t.CreatedAt, &t.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan replica transfer: %w", err)
	}
	return t, nil
}
