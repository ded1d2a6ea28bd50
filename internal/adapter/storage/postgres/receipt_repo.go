package postgres

import (
	"context"
	"errors"
	"fmt"

	"pooled-asset-vault/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ReceiptRepo implements ports.ReceiptRepository, the durable layer behind
// the redis receipt cache.
type ReceiptRepo struct {
	pool Pool
}

// NewReceiptRepo creates a new ReceiptRepo.
func NewReceiptRepo(pool Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// Create inserts a receipt log within a database transaction.
func (r *ReceiptRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.ReceiptLog) error {
	query := `INSERT INTO receipt_logs (key, transfer_id, applied_at) VALUES ($1, $2, $3)`

	_, err := tx.Exec(ctx, query, log.Key, log.TransferID, log.AppliedAt)
	if err != nil {
		return fmt.Errorf("insert receipt log: %w", err)
	}
	return nil
}

// Get fetches a receipt log by its vault-scoped key.
func (r *ReceiptRepo) Get(ctx context.Context, key string) (*domain.ReceiptLog, error) {
	query := `SELECT key, transfer_id, applied_at FROM receipt_logs WHERE key = $1`

	log := &domain.ReceiptLog{}
	err := r.pool.QueryRow(ctx, query, key).Scan(&log.Key, &log.TransferID, &log.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get receipt log: %w", err)
	}
	return log, nil
}
