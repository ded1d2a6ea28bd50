package service

import (
	"context"
	"fmt"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ValuationServiceImpl implements ports.ValuationService. It never caches:
// every call walks the active asset set and prices it fresh, so no mutation
// can ever trade against a stale NAV.
type ValuationServiceImpl struct {
	vaultRepo  ports.VaultRepository
	supplyRepo ports.SupplyRepository
	assetRepo  ports.AssetRegistryRepository
	custody    ports.CustodyClient
	prices     ports.PriceConverter
	log        zerolog.Logger
}

// NewValuationService creates a new ValuationServiceImpl.
func NewValuationService(
	vaultRepo ports.VaultRepository,
	supplyRepo ports.SupplyRepository,
	assetRepo ports.AssetRegistryRepository,
	custody ports.CustodyClient,
	prices ports.PriceConverter,
	log zerolog.Logger,
) *ValuationServiceImpl {
	return &ValuationServiceImpl{
		vaultRepo:  vaultRepo,
		supplyRepo: supplyRepo,
		assetRepo:  assetRepo,
		custody:    custody,
		prices:     prices,
		log:        log,
	}
}

// Recompute computes unitaryValue = totalAssetValue * 10^decimals /
// effectiveSupply. If effectiveSupply is not positive (extreme outbound
// virtual-supply skew) it divides by totalSupply alone, understating the NAV
// on purpose instead of faulting.
func (s *ValuationServiceImpl) Recompute(ctx context.Context, vaultID uuid.UUID) (*domain.ValuationState, error) {
	vault, err := s.vaultRepo.Get(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}

	params, err := s.vaultRepo.GetParameters(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get parameters: %w", err))
	}
	if params == nil {
		return nil, apperror.ErrNotFound("vault parameters")
	}

	supply, err := s.supplyRepo.Get(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get supply: %w", err))
	}
	if supply == nil {
		return nil, apperror.ErrNotFound("supply state")
	}

	if supply.TotalSupply.Cmp(params.MinimumOrder(vault.Decimals)) < 0 {
		return nil, apperror.ErrSupplyDust()
	}

	totalValue, err := s.totalAssetValue(ctx, vault)
	if err != nil {
		return nil, err
	}

	effective := supply.Effective()
	denominator := effective
	if effective.Sign() <= 0 {
		// Documented understatement, not a division fault.
		denominator = supply.TotalSupply
		s.log.Warn().
			Str("vault_id", vaultID.String()).
			Str("effective_supply", effective.String()).
			Msg("effective supply not positive, valuing against total supply alone")
	}

	unitary, _ := totalValue.Mul(vault.UnitScale()).QuoRem(denominator, 0)

	return &domain.ValuationState{
		UnitaryValue:    unitary,
		TotalSupply:     supply.TotalSupply,
		VirtualSupply:   supply.VirtualSupply,
		EffectiveSupply: effective,
		TotalAssetValue: totalValue,
		ComputedAt:      time.Now().UTC(),
	}, nil
}

// totalAssetValue sums the vault's custody balances over the base asset and
// every registered active asset, priced in base units.
func (s *ValuationServiceImpl) totalAssetValue(ctx context.Context, vault *domain.Vault) (decimal.Decimal, error) {
	total, err := s.custody.Balance(ctx, vault.ID, vault.BaseAsset)
	if err != nil {
		return decimal.Zero, apperror.ErrCollaboratorFailure(fmt.Errorf("base asset balance: %w", err))
	}

	assets, err := s.assetRepo.List(ctx, vault.ID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("list active assets: %w", err))
	}

	for _, a := range assets {
		if a.Asset == vault.BaseAsset {
			continue
		}
		bal, err := s.custody.Balance(ctx, vault.ID, a.Asset)
		if err != nil {
			return decimal.Zero, apperror.ErrCollaboratorFailure(fmt.Errorf("balance of %s: %w", a.Asset, err))
		}
		if bal.Sign() == 0 {
			continue
		}
		val, err := s.prices.ConvertToBase(ctx, vault.ID, a.Asset, bal)
		if err != nil {
			return decimal.Zero, apperror.ErrCollaboratorFailure(fmt.Errorf("price %s: %w", a.Asset, err))
		}
		total = total.Add(val)
	}

	return total, nil
}
