package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const receiptTTL = 24 * time.Hour

// SupplyServiceImpl implements the cross-replica virtual-supply protocol.
//
// Transfer mode is NAV-neutral: both sides convert the moved value to shares
// at the *origin* replica's unitary value, so the NAV fraction's numerator
// and denominator scale together and the ratio is unchanged on both ends.
// Sync mode moves value only and lets the NAV drift.
type SupplyServiceImpl struct {
	vaultRepo    ports.VaultRepository
	supplyRepo   ports.SupplyRepository
	assetRepo    ports.AssetRegistryRepository
	transferRepo ports.TransferRepository
	receiptRepo  ports.ReceiptRepository
	receiptCache ports.ReceiptCache
	valuation    ports.ValuationService
	custody      ports.CustodyClient
	prices       ports.PriceConverter
	dispatcher   ports.DispatchClient
	mutex        ports.MutationLock
	transactor   ports.DBTransactor
	replicaID    string
	log          zerolog.Logger
}

// NewSupplyService creates a new SupplyServiceImpl. replicaID identifies
// this replica in outbound transfer messages.
func NewSupplyService(
	vaultRepo ports.VaultRepository,
	supplyRepo ports.SupplyRepository,
	assetRepo ports.AssetRegistryRepository,
	transferRepo ports.TransferRepository,
	receiptRepo ports.ReceiptRepository,
	receiptCache ports.ReceiptCache,
	valuation ports.ValuationService,
	custody ports.CustodyClient,
	prices ports.PriceConverter,
	dispatcher ports.DispatchClient,
	mutex ports.MutationLock,
	transactor ports.DBTransactor,
	replicaID string,
	log zerolog.Logger,
) *SupplyServiceImpl {
	return &SupplyServiceImpl{
		vaultRepo:    vaultRepo,
		supplyRepo:   supplyRepo,
		assetRepo:    assetRepo,
		transferRepo: transferRepo,
		receiptRepo:  receiptRepo,
		receiptCache: receiptCache,
		valuation:    valuation,
		custody:      custody,
		prices:       prices,
		dispatcher:   dispatcher,
		mutex:        mutex,
		transactor:   transactor,
		replicaID:    replicaID,
		log:          log,
	}
}

// Dispatch debits this replica's virtual supply at the current unitary value
// (Transfer mode), records the transfer, and hands the signed message to the
// transport. The origin unitary value travels with the transfer so the
// receiving replica credits the exact same share count.
func (s *SupplyServiceImpl) Dispatch(ctx context.Context, req ports.DispatchRequest) (*domain.ReplicaTransfer, error) {
	if !req.Mode.Valid() {
		return nil, apperror.Validation("unknown transfer mode")
	}
	if req.Amount.Sign() <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Destination == "" {
		return nil, apperror.Validation("destination replica is required")
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

	valuation, err := s.valuation.Recompute(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}

	baseValue := req.Amount
	if req.Asset != vault.BaseAsset {
		active, err := s.assetRepo.IsActive(ctx, req.VaultID, req.Asset)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check active asset: %w", err))
		}
		if !active {
			return nil, apperror.ErrAssetNotActive(string(req.Asset))
		}
		baseValue, err = s.prices.ConvertToBase(ctx, req.VaultID, req.Asset, req.Amount)
		if err != nil {
			return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("convert %s: %w", req.Asset, err))
		}
	}

	now := time.Now().UTC()
	shares := decimal.Zero
	if req.Mode == domain.TransferModeTransfer {
		shares = domain.SharesForValue(baseValue, valuation.UnitaryValue, vault.Decimals)

		newVirtual := supply.VirtualSupply.Sub(shares)
		if !domain.MeetsRedeemableFloor(supply.TotalSupply, newVirtual) {
			return nil, apperror.ErrSupplyFloor()
		}
		supply.VirtualSupply = newVirtual
		supply.UpdatedAt = now
		if err := s.supplyRepo.Update(ctx, dbTx, supply); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update supply: %w", err))
		}
	}

	transfer := &domain.ReplicaTransfer{
		ID:                 uuid.New(),
		VaultID:            req.VaultID,
		Destination:        req.Destination,
		Asset:              req.Asset,
		Amount:             req.Amount,
		BaseValue:          baseValue,
		Shares:             shares,
		OriginUnitaryValue: valuation.UnitaryValue,
		Mode:               req.Mode,
		Status:             domain.TransferStatusDispatched,
		CreatedAt:          now,
	}
	if err := s.transferRepo.Create(ctx, dbTx, transfer); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transfer: %w", err))
	}

	// Hand the outgoing asset to the transport's custody before commit; if
	// the hand-off fails the whole dispatch rolls back.
	escrowID := domain.DeriveEscrowID(req.VaultID, escrowOpForMode(req.Mode))
	if err := s.custody.Forward(ctx, vault.ID, escrowID, req.Asset, req.Amount); err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("hand off to transport: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Delivery is best-effort after commit: the transport owns retries, and
	// a failed delivery ends in a refund claimed through escrow recovery.
	msg := ports.TransferMessage{
		TransferID:         transfer.ID,
		VaultID:            transfer.VaultID,
		Source:             s.replicaID,
		SourceAccount:      escrowID,
		Asset:              transfer.Asset,
		Amount:             transfer.Amount,
		OriginUnitaryValue: transfer.OriginUnitaryValue,
		Mode:               transfer.Mode,
	}
	if err := s.dispatcher.Send(ctx, req.Destination, msg); err != nil {
		s.log.Error().Err(err).
			Str("transfer_id", transfer.ID.String()).
			Str("destination", req.Destination).
			Msg("transfer delivery failed, awaiting transport retry or refund")
	}

	s.log.Info().
		Str("transfer_id", transfer.ID.String()).
		Str("vault_id", req.VaultID.String()).
		Str("mode", string(req.Mode)).
		Str("shares", shares.String()).
		Str("origin_unitary_value", transfer.OriginUnitaryValue.String()).
		Msg("cross-replica transfer dispatched")

	return transfer, nil
}

// Receive applies an inbound transfer as one unit of work. The actual credit
// runs as two sequential calls via CreditReceipt; receipts are deduplicated
// in redis with a database backup.
func (s *SupplyServiceImpl) Receive(ctx context.Context, req ports.ReceiveRequest) (*ports.ReceiveResult, error) {
	if !req.Mode.Valid() {
		return nil, apperror.Validation("unknown transfer mode")
	}
	if req.Amount.Sign() <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Mode == domain.TransferModeTransfer && req.OriginUnitaryValue.Sign() <= 0 {
		return nil, apperror.Validation("origin unitary value is required for transfer mode")
	}
	if req.TransferID == uuid.Nil {
		return nil, apperror.Validation("transfer id is required")
	}

	dedupKey := domain.BuildReceiptKey(req.VaultID, req.TransferID)

	// Layer 1: redis dedup check.
	cached, err := s.receiptCache.Get(ctx, dedupKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", dedupKey).Msg("redis receipt check failed, falling through to DB")
	}
	if cached != nil {
		return nil, apperror.ErrDuplicateReceipt()
	}

	// Layer 2: DB dedup check.
	applied, err := s.receiptRepo.Get(ctx, dedupKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db receipt check: %w", err))
	}
	if applied != nil {
		return nil, apperror.ErrDuplicateReceipt()
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

	uow := ports.NewUnitOfWork(dbTx)
	req.RegisterAsset = true
	result, err := s.CreditReceipt(ctx, uow, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	receipt := &domain.ReceiptLog{
		Key:        dedupKey,
		TransferID: req.TransferID,
		AppliedAt:  now,
	}
	if err := s.receiptRepo.Create(ctx, dbTx, receipt); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save receipt: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache the receipt (best-effort).
	respJSON, _ := json.Marshal(result)
	if err := s.receiptCache.Set(ctx, dedupKey, respJSON, receiptTTL); err != nil {
		s.log.Warn().Err(err).Str("key", dedupKey).Msg("failed to cache receipt in redis")
	}

	s.log.Info().
		Str("transfer_id", req.TransferID.String()).
		Str("vault_id", req.VaultID.String()).
		Str("mode", string(req.Mode)).
		Str("shares_credited", result.SharesCredited.String()).
		Msg("cross-replica transfer received")

	return result, nil
}

// CreditReceipt runs the receipt-side credit as two sequential,
// non-overlapping calls inside the caller's unit of work: beginReceipt
// records the baseline, the custody pull happens in between, and
// settleReceipt verifies the realized increase before touching supply. The
// baseline lives only in the unit of work, so no other caller can seed or
// read it.
func (s *SupplyServiceImpl) CreditReceipt(ctx context.Context, uow *ports.UnitOfWork, req ports.ReceiveRequest) (*ports.ReceiveResult, error) {
	vault, err := s.vaultRepo.Get(ctx, req.VaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}

	if err := s.beginReceipt(ctx, uow, vault, req); err != nil {
		return nil, err
	}

	// The custody movement between the two calls is what the baseline
	// guards: anything other than the expected increase is rejected.
	if err := s.custody.Forward(ctx, req.SourceAccount, vault.ID, req.Asset, req.Amount); err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("pull transfer funds: %w", err))
	}

	return s.settleReceipt(ctx, uow, vault, req)
}

// beginReceipt is phase one: record the pre-transfer custody total and NAV
// in unit-of-work-scoped storage.
func (s *SupplyServiceImpl) beginReceipt(ctx context.Context, uow *ports.UnitOfWork, vault *domain.Vault, req ports.ReceiveRequest) error {
	before, err := s.custody.Balance(ctx, vault.ID, req.Asset)
	if err != nil {
		return apperror.ErrCollaboratorFailure(fmt.Errorf("custody baseline: %w", err))
	}

	local := decimal.Zero
	if v, err := s.valuation.Recompute(ctx, req.VaultID); err == nil {
		local = v.UnitaryValue
	}

	uow.PutBaseline(req.TransferID.String(), ports.ReceiptBaseline{
		Asset:              req.Asset,
		CustodyBefore:      before,
		ExpectedIncrease:   req.Amount,
		OriginUnitaryValue: req.OriginUnitaryValue,
		LocalUnitaryValue:  local,
	})
	return nil
}

// settleReceipt is phase two: verify the realized custody increase against
// the baseline, then apply the virtual-supply credit.
func (s *SupplyServiceImpl) settleReceipt(ctx context.Context, uow *ports.UnitOfWork, vault *domain.Vault, req ports.ReceiveRequest) (*ports.ReceiveResult, error) {
	baseline, ok := uow.TakeBaseline(req.TransferID.String())
	if !ok || baseline.Asset != req.Asset {
		return nil, apperror.ErrBaselineMismatch()
	}

	after, err := s.custody.Balance(ctx, vault.ID, req.Asset)
	if err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("custody verification: %w", err))
	}
	if !after.Sub(baseline.CustodyBefore).Equal(baseline.ExpectedIncrease) {
		return nil, apperror.ErrBaselineMismatch()
	}

	// Tracked custody path: non-base assets with a feed enter the registry.
	// Escrow claims skip this so refunds cannot grief the registry.
	priced := req.Asset == vault.BaseAsset
	if !priced {
		if req.RegisterAsset {
			if err := registerActiveAsset(ctx, uow.Tx, s.assetRepo, s.prices, vault, req.Asset); err != nil {
				return nil, err
			}
			priced = true
		} else {
			priced, err = s.assetRepo.IsActive(ctx, vault.ID, req.Asset)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("check active asset: %w", err))
			}
		}
	}

	shares := decimal.Zero
	if req.Mode == domain.TransferModeTransfer {
		baseValue := req.Amount
		if req.Asset != vault.BaseAsset {
			if priced {
				baseValue, err = s.prices.ConvertToBase(ctx, req.VaultID, req.Asset, req.Amount)
				if err != nil {
					return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("convert %s: %w", req.Asset, err))
				}
			} else {
				// Allow-listed but feedless refunds return funds with zero
				// share credit.
				baseValue = decimal.Zero
			}
		}

		// Origin NAV, not the local one: this is what keeps the per-share
		// value unchanged at both replicas.
		shares = domain.SharesForValue(baseValue, baseline.OriginUnitaryValue, vault.Decimals)

		supply, err := s.supplyRepo.GetForUpdate(ctx, uow.Tx, req.VaultID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock supply: %w", err))
		}
		if supply == nil {
			return nil, apperror.ErrNotFound("supply state")
		}
		supply.VirtualSupply = supply.VirtualSupply.Add(shares)
		supply.UpdatedAt = time.Now().UTC()
		if err := s.supplyRepo.Update(ctx, uow.Tx, supply); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update supply: %w", err))
		}
	}

	return &ports.ReceiveResult{
		SharesCredited: shares,
		Valuation: &domain.ValuationState{
			UnitaryValue: baseline.LocalUnitaryValue,
			ComputedAt:   time.Now().UTC(),
		},
	}, nil
}

// Settle marks a dispatched transfer as settled on the far side.
func (s *SupplyServiceImpl) Settle(ctx context.Context, vaultID, transferID uuid.UUID) error {
	return s.transition(ctx, vaultID, transferID, domain.TransferStatusSettled)
}

// MarkRefunded marks a dispatched transfer as failed and refunded; its
// funds are then claimable through escrow recovery.
func (s *SupplyServiceImpl) MarkRefunded(ctx context.Context, vaultID, transferID uuid.UUID) error {
	return s.transition(ctx, vaultID, transferID, domain.TransferStatusRefunded)
}

func (s *SupplyServiceImpl) transition(ctx context.Context, vaultID, transferID uuid.UUID, status domain.TransferStatus) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transfer, err := s.transferRepo.GetForUpdate(ctx, dbTx, transferID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock transfer: %w", err))
	}
	if transfer == nil || transfer.VaultID != vaultID {
		return apperror.ErrNotFound("transfer")
	}
	if transfer.Status != domain.TransferStatusDispatched {
		return apperror.Validation("transfer is already terminal")
	}

	if err := s.transferRepo.UpdateStatus(ctx, dbTx, transferID, status); err != nil {
		return apperror.InternalError(fmt.Errorf("update transfer status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("transfer_id", transferID.String()).
		Str("status", string(status)).
		Msg("transfer status updated")
	return nil
}

// escrowOpForMode maps a transfer mode to its escrow operation type.
func escrowOpForMode(mode domain.TransferMode) domain.EscrowOpType {
	if mode == domain.TransferModeSync {
		return domain.EscrowOpSync
	}
	return domain.EscrowOpTransfer
}
