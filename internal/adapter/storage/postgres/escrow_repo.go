package postgres

import (
	"context"
	"errors"
	"fmt"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EscrowRepo implements ports.EscrowRepository.
type EscrowRepo struct {
	pool Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(pool Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// Get fetches an escrow account by its derived UUID.
func (r *EscrowRepo) Get(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error) {
	query := `SELECT id, vault_id, op_type, created_at FROM escrow_accounts WHERE id = $1`

	a := &domain.EscrowAccount{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.VaultID, &a.OpType, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get escrow account: %w", err)
	}
	return a, nil
}

// GetOrCreate inserts the account if absent and returns the stored row
// either way. The derived primary key makes the insert race-safe.
func (r *EscrowRepo) GetOrCreate(ctx context.Context, tx pgx.Tx, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
	query := `INSERT INTO escrow_accounts (id, vault_id, op_type, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, vault_id, op_type, created_at`

	stored := &domain.EscrowAccount{}
	err := tx.QueryRow(ctx, query,
		account.ID, account.VaultID, string(account.OpType), account.CreatedAt,
	).Scan(&stored.ID, &stored.VaultID, &stored.OpType, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get-or-create escrow account: %w", err)
	}
	return stored, nil
}
