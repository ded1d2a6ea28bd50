package postgres

import (
	"context"
	"errors"
	"fmt"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository. Balances are NUMERIC(78,0)
// base-unit integers; activation is the absolute unlock time of the whole
// balance.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const shareAccountColumns = `vault_id, holder_id, balance, activation, created_at, updated_at`

// Get fetches a holder's account without locking.
func (r *LedgerRepo) Get(ctx context.Context, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error) {
	query := `SELECT ` + shareAccountColumns + ` FROM share_accounts WHERE vault_id = $1 AND holder_id = $2`
	return scanShareAccount(r.pool.QueryRow(ctx, query, vaultID, holderID))
}

// GetForUpdate fetches a holder's account with pessimistic locking.
// This MUST be called within a transaction.
func (r *LedgerRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error) {
	query := `SELECT ` + shareAccountColumns + ` FROM share_accounts WHERE vault_id = $1 AND holder_id = $2 FOR UPDATE`
	return scanShareAccount(tx.QueryRow(ctx, query, vaultID, holderID))
}

// Upsert inserts or replaces a holder's account within a transaction.
func (r *LedgerRepo) Upsert(ctx context.Context, tx pgx.Tx, a *domain.ShareAccount) error {
	query := `INSERT INTO share_accounts (vault_id, holder_id, balance, activation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (vault_id, holder_id)
		DO UPDATE SET balance = EXCLUDED.balance, activation = EXCLUDED.activation, updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		a.VaultID, a.HolderID, a.Balance, a.Activation, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert share account: %w", err)
	}
	return nil
}

// Delete removes a zeroed account within a transaction.
func (r *LedgerRepo) Delete(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) error {
	tag, err := tx.Exec(ctx,
		`DELETE FROM share_accounts WHERE vault_id = $1 AND holder_id = $2`,
		vaultID, holderID,
	)
	if err != nil {
		return fmt.Errorf("delete share account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("share account not found: %s/%s", vaultID, holderID)
	}
	return nil
}

// HolderCount reports the number of accounts with a positive balance.
func (r *LedgerRepo) HolderCount(ctx context.Context, vaultID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM share_accounts WHERE vault_id = $1 AND balance > 0`,
		vaultID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count holders: %w", err)
	}
	return count, nil
}

func scanShareAccount(row pgx.Row) (*domain.ShareAccount, error) {
	a := &domain.ShareAccount{}
	err := row.Scan(&a.VaultID, &a.HolderID, &a.Balance, &a.Activation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan share account: %w", err)
	}
	return a, nil
}
