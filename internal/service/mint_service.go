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
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// mutationLockTTL bounds how long a crashed unit of work can hold a vault's
// mutation lock before it expires on its own.
const mutationLockTTL = 30 * time.Second

// MintServiceImpl implements ports.MintService.
//
// Ordering decision: spread is deducted from the deposit value first, the
// transaction fee is skimmed from the minted shares second. Burn orders the
// two the other way around; see BurnServiceImpl.
type MintServiceImpl struct {
	vaultRepo  ports.VaultRepository
	ledgerRepo ports.LedgerRepository
	supplyRepo ports.SupplyRepository
	assetRepo  ports.AssetRegistryRepository
	valuation  ports.ValuationService
	custody    ports.CustodyClient
	prices     ports.PriceConverter
	allowList  ports.AllowList
	mutex      ports.MutationLock
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewMintService creates a new MintServiceImpl.
func NewMintService(
	vaultRepo ports.VaultRepository,
	ledgerRepo ports.LedgerRepository,
	supplyRepo ports.SupplyRepository,
	assetRepo ports.AssetRegistryRepository,
	valuation ports.ValuationService,
	custody ports.CustodyClient,
	prices ports.PriceConverter,
	allowList ports.AllowList,
	mutex ports.MutationLock,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *MintServiceImpl {
	return &MintServiceImpl{
		vaultRepo:  vaultRepo,
		ledgerRepo: ledgerRepo,
		supplyRepo: supplyRepo,
		assetRepo:  assetRepo,
		valuation:  valuation,
		custody:    custody,
		prices:     prices,
		allowList:  allowList,
		mutex:      mutex,
		transactor: transactor,
		log:        log,
	}
}

// Mint deposits base-asset value and issues shares to the recipient.
func (s *MintServiceImpl) Mint(ctx context.Context, req ports.MintRequest) (*ports.MintResult, error) {
	req.Asset = ""
	return s.mint(ctx, req)
}

// MintWithAsset deposits a non-base asset; its value is converted to base
// units through the price collaborator before share math runs.
func (s *MintServiceImpl) MintWithAsset(ctx context.Context, req ports.MintRequest) (*ports.MintResult, error) {
	if req.Asset == "" || req.Asset == domain.SelfBalanceAsset {
		return nil, apperror.Validation("mint asset is required")
	}
	return s.mint(ctx, req)
}

func (s *MintServiceImpl) mint(ctx context.Context, req ports.MintRequest) (*ports.MintResult, error) {
	if req.Recipient == uuid.Nil {
		return nil, apperror.ErrInvalidRecipient()
	}
	if req.AmountIn.Sign() <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.MinSharesOut.Sign() < 0 {
		return nil, apperror.Validation("negative minimum output")
	}

	vault, err := s.vaultRepo.Get(ctx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}
	if vault.Locked {
		return nil, apperror.ErrVaultLocked()
	}

	params, err := s.vaultRepo.GetParameters(ctx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get parameters: %w", err))
	}
	if params == nil {
		return nil, apperror.ErrNotFound("vault parameters")
	}

	if req.AmountIn.Cmp(params.MinimumOrder(vault.Decimals)) < 0 {
		return nil, apperror.ErrBelowMinimumOrder()
	}

	if params.AllowlistProvider != nil {
		ok, err := s.allowList.IsParticipant(ctx, *params.AllowlistProvider, req.Recipient)
		if err != nil {
			return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("allow-list check: %w", err))
		}
		if !ok {
			return nil, apperror.ErrNotAllowlisted()
		}
	}

	// One unit of work per vault at a time.
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

	supply, err := s.supplyRepo.GetForUpdate(ctx, dbTx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock supply: %w", err))
	}
	if supply == nil {
		return nil, apperror.ErrNotFound("supply state")
	}

	// First deposit prices at par; afterwards the NAV is recomputed fresh
	// for every mint.
	var unitary decimal.Decimal
	var valuation *domain.ValuationState
	if supply.TotalSupply.Cmp(params.MinimumOrder(vault.Decimals)) < 0 {
		unitary = domain.ParValue(vault.Decimals)
		valuation = &domain.ValuationState{
			UnitaryValue:    unitary,
			TotalSupply:     supply.TotalSupply,
			VirtualSupply:   supply.VirtualSupply,
			EffectiveSupply: supply.Effective(),
			ComputedAt:      time.Now().UTC(),
		}
	} else {
		valuation, err = s.valuation.Recompute(ctx, req.VaultID)
		if err != nil {
			return nil, err
		}
		unitary = valuation.UnitaryValue
	}

	converted := req.AmountIn
	if req.Asset != "" && req.Asset != vault.BaseAsset {
		if err := s.registerAsset(ctx, dbTx, vault, req.Asset); err != nil {
			return nil, err
		}
		converted, err = s.prices.ConvertToBase(ctx, req.VaultID, req.Asset, req.AmountIn)
		if err != nil {
			return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("convert %s: %w", req.Asset, err))
		}
	}

	// Spread protects existing holders from dilution; the vault's sole
	// holder has nobody to dilute.
	spreadShares := decimal.Zero
	net := converted
	sole, err := s.isSoleHolder(ctx, req.VaultID, req.CallerID)
	if err != nil {
		return nil, err
	}
	if !sole && params.SpreadBps > 0 {
		spreadValue := domain.BasisPointCut(converted, params.SpreadBps)
		net = converted.Sub(spreadValue)
		spreadShares = domain.SharesForValue(spreadValue, unitary, vault.Decimals)
	}

	minted := domain.SharesForValue(net, unitary, vault.Decimals)
	if minted.Sign() <= 0 {
		return nil, apperror.ErrSlippage()
	}

	feeShares := decimal.Zero
	if params.FeeBps > 0 && params.FeeCollector != req.Recipient {
		feeShares = domain.BasisPointCut(minted, params.FeeBps)
	}
	recipientShares := minted.Sub(feeShares)

	if recipientShares.Cmp(req.MinSharesOut) < 0 {
		return nil, apperror.ErrSlippage()
	}

	now := time.Now().UTC()

	// Minting resets the activation lock on the recipient's entire balance,
	// not just the new increment.
	if err := creditShares(ctx, dbTx, s.ledgerRepo, req.VaultID, req.Recipient, recipientShares, now, now.Add(params.MinHoldPeriod)); err != nil {
		return nil, err
	}

	operational := spreadShares.Add(feeShares)
	if operational.Sign() > 0 {
		if err := creditShares(ctx, dbTx, s.ledgerRepo, req.VaultID, params.FeeCollector, operational, now, time.Time{}); err != nil {
			return nil, err
		}
	}

	supply.TotalSupply = supply.TotalSupply.Add(minted).Add(spreadShares)
	supply.UpdatedAt = now
	if err := s.supplyRepo.Update(ctx, dbTx, supply); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update supply: %w", err))
	}

	// Pull the deposit into vault custody before committing; a failed pull
	// rolls the whole unit of work back.
	depositAsset := req.Asset
	if depositAsset == "" {
		depositAsset = vault.BaseAsset
	}
	if err := s.custody.Forward(ctx, req.Recipient, vault.ID, depositAsset, req.AmountIn); err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("pull deposit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("vault_id", req.VaultID.String()).
		Str("recipient", req.Recipient.String()).
		Str("amount_in", req.AmountIn.String()).
		Str("shares_issued", recipientShares.String()).
		Str("fee_shares", feeShares.String()).
		Str("spread_shares", spreadShares.String()).
		Msg("mint processed")

	return &ports.MintResult{
		SharesIssued: recipientShares,
		FeeShares:    feeShares,
		SpreadShares: spreadShares,
		Valuation:    valuation,
	}, nil
}

// isSoleHolder reports whether caller holds the vault's only account.
func (s *MintServiceImpl) isSoleHolder(ctx context.Context, vaultID, callerID uuid.UUID) (bool, error) {
	count, err := s.ledgerRepo.HolderCount(ctx, vaultID)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("holder count: %w", err))
	}
	if count == 0 {
		// First depositor: nobody to dilute.
		return true, nil
	}
	if count > 1 {
		return false, nil
	}
	acct, err := s.ledgerRepo.Get(ctx, vaultID, callerID)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("get caller account: %w", err))
	}
	return acct != nil && acct.Balance.Sign() > 0, nil
}

// registerAsset puts a non-base asset on the active registry the first time
// it enters custody through a tracked path.
func (s *MintServiceImpl) registerAsset(ctx context.Context, dbTx pgx.Tx, vault *domain.Vault, asset domain.AssetID) error {
	return registerActiveAsset(ctx, dbTx, s.assetRepo, s.prices, vault, asset)
}
