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

// VaultRepo implements ports.VaultRepository. Metadata and parameters live
// in separate tables so parameter updates never touch the immutable row.
type VaultRepo struct {
	pool Pool
}

// NewVaultRepo creates a new VaultRepo.
func NewVaultRepo(pool Pool) *VaultRepo {
	return &VaultRepo{pool: pool}
}

// Create inserts the vault row and its initial parameters atomically.
func (r *VaultRepo) Create(ctx context.Context, v *domain.Vault, p *domain.VaultParameters) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin vault create: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO vaults (id, name, symbol, decimals, owner_id, base_asset, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.Name, v.Symbol, v.Decimals, v.OwnerID, string(v.BaseAsset), v.Locked, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vault: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO vault_parameters (vault_id, min_hold_period_seconds, spread_bps, fee_bps, fee_collector, allowlist_provider, minimum_order_divisor, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.VaultID, int64(p.MinHoldPeriod/time.Second), p.SpreadBps, p.FeeBps,
		p.FeeCollector, p.AllowlistProvider, p.MinimumOrderDivisor, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vault parameters: %w", err)
	}

	return tx.Commit(ctx)
}

// Get fetches a vault by its UUID.
func (r *VaultRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Vault, error) {
	query := `SELECT id, name, symbol, decimals, owner_id, base_asset, locked, created_at, updated_at
		FROM vaults WHERE id = $1`

	v := &domain.Vault{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Symbol, &v.Decimals, &v.OwnerID,
		&v.BaseAsset, &v.Locked, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vault: %w", err)
	}
	return v, nil
}

// GetParameters fetches the owner-tunable parameters of a vault.
func (r *VaultRepo) GetParameters(ctx context.Context, vaultID uuid.UUID) (*domain.VaultParameters, error) {
	query := `SELECT vault_id, min_hold_period_seconds, spread_bps, fee_bps, fee_collector, allowlist_provider, minimum_order_divisor, updated_at
		FROM vault_parameters WHERE vault_id = $1`

	p := &domain.VaultParameters{}
	var holdSeconds int64
	err := r.pool.QueryRow(ctx, query, vaultID).Scan(
		&p.VaultID, &holdSeconds, &p.SpreadBps, &p.FeeBps,
		&p.FeeCollector, &p.AllowlistProvider, &p.MinimumOrderDivisor, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vault parameters: %w", err)
	}
	p.MinHoldPeriod = time.Duration(holdSeconds) * time.Second
	return p, nil
}

// UpdateParameters replaces the parameter row within a transaction.
func (r *VaultRepo) UpdateParameters(ctx context.Context, tx pgx.Tx, p *domain.VaultParameters) error {
	query := `UPDATE vault_parameters
		SET min_hold_period_seconds = $1, spread_bps = $2, fee_bps = $3, fee_collector = $4,
			allowlist_provider = $5, minimum_order_divisor = $6, updated_at = $7
		WHERE vault_id = $8`

	tag, err := tx.Exec(ctx, query,
		int64(p.MinHoldPeriod/time.Second), p.SpreadBps, p.FeeBps, p.FeeCollector,
		p.AllowlistProvider, p.MinimumOrderDivisor, p.UpdatedAt, p.VaultID,
	)
	if err != nil {
		return fmt.Errorf("update vault parameters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vault parameters not found: %s", p.VaultID)
	}
	return nil
}

// SetLocked flips the vault's locked flag within a transaction.
func (r *VaultRepo) SetLocked(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, locked bool) error {
	tag, err := tx.Exec(ctx,
		`UPDATE vaults SET locked = $1, updated_at = NOW() WHERE id = $2`,
		locked, vaultID,
	)
	if err != nil {
		return fmt.Errorf("set vault locked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vault not found: %s", vaultID)
	}
	return nil
}
