package postgres

import (
	"context"
	"fmt"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AssetRegistryRepo implements ports.AssetRegistryRepository.
type AssetRegistryRepo struct {
	pool Pool
}

// NewAssetRegistryRepo creates a new AssetRegistryRepo.
func NewAssetRegistryRepo(pool Pool) *AssetRegistryRepo {
	return &AssetRegistryRepo{pool: pool}
}

// List fetches the active asset set of a vault, oldest first.
func (r *AssetRegistryRepo) List(ctx context.Context, vaultID uuid.UUID) ([]domain.ActiveAsset, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT vault_id, asset, added_at FROM active_assets WHERE vault_id = $1 ORDER BY added_at`,
		vaultID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.ActiveAsset
	for rows.Next() {
		a := domain.ActiveAsset{}
		if err := rows.Scan(&a.VaultID, &a.Asset, &a.AddedAt); err != nil {
			return nil, fmt.Errorf("scan active asset row: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active asset rows: %w", err)
	}
	return assets, nil
}

// IsActive reports whether asset is in the vault's registry.
func (r *AssetRegistryRepo) IsActive(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM active_assets WHERE vault_id = $1 AND asset = $2)`,
		vaultID, string(asset),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active asset: %w", err)
	}
	return exists, nil
}

// Count reports the registry size of a vault.
func (r *AssetRegistryRepo) Count(ctx context.Context, vaultID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM active_assets WHERE vault_id = $1`,
		vaultID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active assets: %w", err)
	}
	return count, nil
}

// Add inserts a registry entry within a transaction. Re-adding an existing
// asset is a no-op.
func (r *AssetRegistryRepo) Add(ctx context.Context, tx pgx.Tx, e *domain.ActiveAsset) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO active_assets (vault_id, asset, added_at) VALUES ($1, $2, $3)
		ON CONFLICT (vault_id, asset) DO NOTHING`,
		e.VaultID, string(e.Asset), e.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("add active asset: %w", err)
	}
	return nil
}
