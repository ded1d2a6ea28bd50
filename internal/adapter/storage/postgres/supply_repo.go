package postgres

import (
	"context"
	"errors"
	"fmt"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SupplyRepo implements ports.SupplyRepository. One row per vault; virtual
// supply may be negative.
type SupplyRepo struct {
	pool Pool
}

// NewSupplyRepo creates a new SupplyRepo.
func NewSupplyRepo(pool Pool) *SupplyRepo {
	return &SupplyRepo{pool: pool}
}

// Get fetches the supply state without locking.
func (r *SupplyRepo) Get(ctx context.Context, vaultID uuid.UUID) (*domain.SupplyState, error) {
	query := `SELECT vault_id, total_supply, virtual_supply, updated_at FROM supply_states WHERE vault_id = $1`
	return scanSupplyState(r.pool.QueryRow(ctx, query, vaultID))
}

// GetForUpdate fetches the supply state with pessimistic locking.
// This MUST be called within a transaction.
func (r *SupplyRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID) (*domain.SupplyState, error) {
	query := `SELECT vault_id, total_supply, virtual_supply, updated_at FROM supply_states WHERE vault_id = $1 FOR UPDATE`
	return scanSupplyState(tx.QueryRow(ctx, query, vaultID))
}

// Update inserts or replaces the supply row within a transaction.
func (r *SupplyRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.SupplyState) error {
	query := `INSERT INTO supply_states (vault_id, total_supply, virtual_supply, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vault_id)
		DO UPDATE SET total_supply = EXCLUDED.total_supply, virtual_supply = EXCLUDED.virtual_supply, updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query, s.VaultID, s.TotalSupply, s.VirtualSupply, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update supply state: %w", err)
	}
	return nil
}

func scanSupplyState(row pgx.Row) (*domain.SupplyState, error) {
	s := &domain.SupplyState{}
	err := row.Scan(&s.VaultID, &s.TotalSupply, &s.VirtualSupply, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan supply state: %w", err)
	}
	return s, nil
}
