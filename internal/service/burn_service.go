package service

import (
	"context"
	"fmt"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BurnServiceImpl implements ports.BurnService.
//
// Ordering decision: the transaction fee is skimmed in shares first, the
// spread is deducted from the resulting payout second. Mint orders the two
// the other way around; see MintServiceImpl.
type BurnServiceImpl struct {
	vaultRepo  ports.VaultRepository
	ledgerRepo ports.LedgerRepository
	supplyRepo ports.SupplyRepository
	assetRepo  ports.AssetRegistryRepository
	valuation  ports.ValuationService
	custody    ports.CustodyClient
	prices     ports.PriceConverter
	mutex      ports.MutationLock
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewBurnService creates a new BurnServiceImpl.
func NewBurnService(
	vaultRepo ports.VaultRepository,
	ledgerRepo ports.LedgerRepository,
	supplyRepo ports.SupplyRepository,
	assetRepo ports.AssetRegistryRepository,
	valuation ports.ValuationService,
	custody ports.CustodyClient,
	prices ports.PriceConverter,
	mutex ports.MutationLock,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *BurnServiceImpl {
	return &BurnServiceImpl{
		vaultRepo:  vaultRepo,
		ledgerRepo: ledgerRepo,
		supplyRepo: supplyRepo,
		assetRepo:  assetRepo,
		valuation:  valuation,
		custody:    custody,
		prices:     prices,
		mutex:      mutex,
		transactor: transactor,
		log:        log,
	}
}

// Burn redeems shares for base-asset value.
func (s *BurnServiceImpl) Burn(ctx context.Context, req ports.BurnRequest) (*ports.BurnResult, error) {
	req.Asset = ""
	return s.burn(ctx, req)
}

// BurnForAsset redeems shares for a non-base asset. Permitted only as a
// fallback when the vault's base-asset custody balance cannot cover the
// payout.
func (s *BurnServiceImpl) BurnForAsset(ctx context.Context, req ports.BurnRequest) (*ports.BurnResult, error) {
	if req.Asset == "" {
		return nil, apperror.Validation("burn asset is required")
	}
	return s.burn(ctx, req)
}

func (s *BurnServiceImpl) burn(ctx context.Context, req ports.BurnRequest) (*ports.BurnResult, error) {
	if req.AmountIn.Sign() <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.MinPayout.Sign() < 0 {
		return nil, apperror.Validation("negative minimum payout")
	}

	vault, err := s.vaultRepo.Get(ctx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}

	params, err := s.vaultRepo.GetParameters(ctx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get parameters: %w", err))
	}
	if params == nil {
		return nil, apperror.ErrNotFound("vault parameters")
	}

	// The self-balance sentinel resolves to the base asset: the payout lands
	// in the caller's own wallet balance of it.
	payoutAsset := req.Asset
	if payoutAsset == domain.SelfBalanceAsset {
		payoutAsset = ""
	}

	acquired, err := s.mutex.Acquire(ctx, req.VaultID, mutationLockTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("acquire mutation lock: %w", err))
	}
	if !acquired {
		return nil, apperror.ErrMutationInProgress()
	}
	defer func() {
		if err := s.mutex.Release(ctx, req.VaultID); err != nil {
			s.log.Warn().Err(err).Str("vault_id", req.VaultID.String()).Msg("failed to release mutation lock")
		}
	}()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acct, err := s.ledgerRepo.GetForUpdate(ctx, dbTx, req.VaultID, req.HolderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if acct == nil || acct.Balance.Cmp(req.AmountIn) < 0 {
		return nil, apperror.ErrInsufficientShares()
	}

	now := time.Now().UTC()
	if !acct.Unlocked(now) {
		return nil, apperror.ErrHoldPeriodActive()
	}

	supply, err := s.supplyRepo.GetForUpdate(ctx, dbTx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock supply: %w", err))
	}
	if supply == nil {
		return nil, apperror.ErrNotFound("supply state")
	}

	valuation, err := s.valuation.Recompute(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}
	unitary := valuation.UnitaryValue

	// Fee first, in shares. The collector pays no fee on its own burns.
	feeShares := decimal.Zero
	if params.FeeBps > 0 && req.HolderID != params.FeeCollector {
		feeShares = domain.BasisPointCut(req.AmountIn, params.FeeBps)
	}
	netShares := req.AmountIn.Sub(feeShares)

	gross := domain.ValueForShares(netShares, unitary, vault.Decimals)

	// Spread second, on the payout; its value is routed to the operational
	// account as shares, not destroyed.
	spreadShares := decimal.Zero
	payout := gross
	if params.SpreadBps > 0 {
		spreadValue := domain.BasisPointCut(gross, params.SpreadBps)
		payout = gross.Sub(spreadValue)
		spreadShares = domain.SharesForValue(spreadValue, unitary, vault.Decimals)
	}

	payout, err = s.resolvePayout(ctx, vault, payoutAsset, payout)
	if err != nil {
		return nil, err
	}
	if payout.Cmp(req.MinPayout) < 0 {
		return nil, apperror.ErrSlippage()
	}

	// Debit the holder; delete the account when fully burned.
	acct.Balance = acct.Balance.Sub(req.AmountIn)
	acct.UpdatedAt = now
	if acct.Balance.Sign() == 0 {
		if err := s.ledgerRepo.Delete(ctx, dbTx, req.VaultID, req.HolderID); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("delete account: %w", err))
		}
	} else {
		if err := s.ledgerRepo.Upsert(ctx, dbTx, acct); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update account: %w", err))
		}
	}

	operational := feeShares.Add(spreadShares)
	if operational.Sign() > 0 {
		if err := creditShares(ctx, dbTx, s.ledgerRepo, req.VaultID, params.FeeCollector, operational, now, time.Time{}); err != nil {
			return nil, err
		}
	}

	// Net shares are destroyed; fee shares changed hands, spread shares were
	// minted to the operational account.
	supply.TotalSupply = supply.TotalSupply.Sub(netShares).Add(spreadShares)
	supply.UpdatedAt = now
	if err := s.supplyRepo.Update(ctx, dbTx, supply); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update supply: %w", err))
	}

	// A burn alone can push the ratio below the floor, so re-check with the
	// post-burn total.
	if !domain.MeetsRedeemableFloor(supply.TotalSupply, supply.VirtualSupply) {
		return nil, apperror.ErrSupplyFloor()
	}

	resolvedAsset := payoutAsset
	if resolvedAsset == "" {
		resolvedAsset = vault.BaseAsset
	}
	if err := s.custody.Forward(ctx, vault.ID, req.HolderID, resolvedAsset, payout); err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("pay out: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("vault_id", req.VaultID.String()).
		Str("holder", req.HolderID.String()).
		Str("burned_shares", netShares.String()).
		Str("payout", payout.String()).
		Str("payout_asset", string(resolvedAsset)).
		Msg("burn processed")

	return &ports.BurnResult{
		Payout:       payout,
		PayoutAsset:  resolvedAsset,
		BurnedShares: netShares,
		FeeShares:    feeShares,
		SpreadShares: spreadShares,
		Valuation:    valuation,
	}, nil
}

// resolvePayout applies the non-base fallback rule: an alternate-asset
// payout is allowed only when base custody cannot cover it, and its amount
// comes from the price collaborator.
func (s *BurnServiceImpl) resolvePayout(ctx context.Context, vault *domain.Vault, asset domain.AssetID, basePayout decimal.Decimal) (decimal.Decimal, error) {
	if asset == "" || asset == vault.BaseAsset {
		return basePayout, nil
	}

	baseBal, err := s.custody.Balance(ctx, vault.ID, vault.BaseAsset)
	if err != nil {
		return decimal.Zero, apperror.ErrCollaboratorFailure(fmt.Errorf("base balance: %w", err))
	}
	if baseBal.Cmp(basePayout) >= 0 {
		return decimal.Zero, apperror.Validation("base asset balance covers the payout; burn for the base asset")
	}

	active, err := s.assetRepo.IsActive(ctx, vault.ID, asset)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("check active asset: %w", err))
	}
	if !active {
		return decimal.Zero, apperror.ErrAssetNotActive(string(asset))
	}

	converted, err := s.prices.ConvertFromBase(ctx, vault.ID, asset, basePayout)
	if err != nil {
		return decimal.Zero, apperror.ErrCollaboratorFailure(fmt.Errorf("convert payout: %w", err))
	}
	return converted, nil
}
