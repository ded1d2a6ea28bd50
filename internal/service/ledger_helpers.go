package service

import (
	"context"
	"fmt"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// creditShares adds shares to a holder's account inside a unit of work,
// creating the account on first touch. A non-zero activation resets the lock
// on the entire balance.
func creditShares(
	ctx context.Context,
	dbTx pgx.Tx,
	ledgerRepo ports.LedgerRepository,
	vaultID, holderID uuid.UUID,
	shares decimal.Decimal,
	now, activation time.Time,
) error {
	acct, err := ledgerRepo.GetForUpdate(ctx, dbTx, vaultID, holderID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if acct == nil {
		acct = &domain.ShareAccount{
			VaultID:   vaultID,
			HolderID:  holderID,
			Balance:   decimal.Zero,
			CreatedAt: now,
		}
	}
	acct.Balance = acct.Balance.Add(shares)
	if !activation.IsZero() {
		acct.Activation = activation
	} else if acct.Activation.IsZero() {
		acct.Activation = now
	}
	acct.UpdatedAt = now

	if err := ledgerRepo.Upsert(ctx, dbTx, acct); err != nil {
		return apperror.InternalError(fmt.Errorf("upsert account: %w", err))
	}
	return nil
}

// registerActiveAsset adds a non-base asset to the active registry the first
// time it enters custody through a tracked path. Assets without a price feed
// are rejected; the registry is hard-capped.
func registerActiveAsset(
	ctx context.Context,
	dbTx pgx.Tx,
	assetRepo ports.AssetRegistryRepository,
	prices ports.PriceConverter,
	vault *domain.Vault,
	asset domain.AssetID,
) error {
	active, err := assetRepo.IsActive(ctx, vault.ID, asset)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check active asset: %w", err))
	}
	if active {
		return nil
	}

	hasFeed, err := prices.HasPriceFeed(ctx, asset)
	if err != nil {
		return apperror.ErrCollaboratorFailure(fmt.Errorf("price feed check: %w", err))
	}
	if !hasFeed {
		return apperror.ErrAssetNotActive(string(asset))
	}

	count, err := assetRepo.Count(ctx, vault.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("count active assets: %w", err))
	}
	if count >= domain.ActiveAssetCap {
		return apperror.ErrAssetCapReached()
	}

	entry := &domain.ActiveAsset{
		VaultID: vault.ID,
		Asset:   asset,
		AddedAt: time.Now().UTC(),
	}
	if err := assetRepo.Add(ctx, dbTx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("add active asset: %w", err))
	}
	return nil
}
