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
)

// RecoveryServiceImpl implements ports.RecoveryService: when the transport
// refunds a failed transfer into the deterministic escrow account, Claim
// forwards the funds back to the vault and replays the receipt-side credit,
// reversing the dispatch-side virtual-supply debit.
//
// Only allow-listed assets (plus the native asset) can be claimed, whether
// or not they have a price feed. Claims never grow the active-asset
// registry, so adversarial refunds cannot grief it.
type RecoveryServiceImpl struct {
	vaultRepo    ports.VaultRepository
	escrowRepo   ports.EscrowRepository
	transferRepo ports.TransferRepository
	supplySvc    ports.SupplyService
	custody      ports.CustodyClient
	allowList    ports.AllowList
	mutex        ports.MutationLock
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewRecoveryService creates a new RecoveryServiceImpl.
func NewRecoveryService(
	vaultRepo ports.VaultRepository,
	escrowRepo ports.EscrowRepository,
	transferRepo ports.TransferRepository,
	supplySvc ports.SupplyService,
	custody ports.CustodyClient,
	allowList ports.AllowList,
	mutex ports.MutationLock,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *RecoveryServiceImpl {
	return &RecoveryServiceImpl{
		vaultRepo:    vaultRepo,
		escrowRepo:   escrowRepo,
		transferRepo: transferRepo,
		supplySvc:    supplySvc,
		custody:      custody,
		allowList:    allowList,
		mutex:        mutex,
		transactor:   transactor,
		log:          log,
	}
}

// EscrowAccountFor derives the recovery account identity for (vault, opType)
// and creates the row lazily. Calling it twice yields the same account.
func (s *RecoveryServiceImpl) EscrowAccountFor(ctx context.Context, vaultID uuid.UUID, op domain.EscrowOpType) (*domain.EscrowAccount, error) {
	if !op.Valid() {
		return nil, apperror.Validation("unknown escrow operation type")
	}

	vault, err := s.vaultRepo.Get(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}

	id := domain.DeriveEscrowID(vaultID, op)
	existing, err := s.escrowRepo.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get escrow: %w", err))
	}
	if existing != nil {
		return existing, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err := s.escrowRepo.GetOrCreate(ctx, dbTx, &domain.EscrowAccount{
		ID:        id,
		VaultID:   vaultID,
		OpType:    op,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create escrow: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return account, nil
}

// Claim recovers a refunded transfer: the full refunded escrow balance is
// forwarded to the vault and the receipt-side credit is re-run with the
// origin unitary value stored at dispatch time.
func (s *RecoveryServiceImpl) Claim(ctx context.Context, req ports.ClaimRequest) (*ports.ClaimResult, error) {
	transfer, err := s.transferRepo.Get(ctx, req.TransferID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transfer: %w", err))
	}
	if transfer == nil || transfer.VaultID != req.VaultID {
		return nil, apperror.ErrNotFound("transfer")
	}
	if !transfer.Recoverable() {
		return nil, apperror.ErrTransferNotRefundable()
	}

	asset := req.Asset
	if asset == "" {
		asset = transfer.Asset
	}

	// Allow-list gate, independent of any price feed.
	if asset != domain.NativeAsset {
		ok, err := s.allowList.IsRecoverable(ctx, req.VaultID, asset)
		if err != nil {
			return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("recovery allow-list: %w", err))
		}
		if !ok {
			return nil, apperror.ErrAssetNotRecoverable(string(asset))
		}
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

	escrow, err := s.escrowRepo.GetOrCreate(ctx, dbTx, &domain.EscrowAccount{
		ID:        domain.DeriveEscrowID(req.VaultID, escrowOpForMode(transfer.Mode)),
		VaultID:   req.VaultID,
		OpType:    escrowOpForMode(transfer.Mode),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get-or-create escrow: %w", err))
	}

	balance, err := s.custody.Balance(ctx, escrow.ID, asset)
	if err != nil {
		return nil, apperror.ErrCollaboratorFailure(fmt.Errorf("escrow balance: %w", err))
	}
	if balance.Sign() <= 0 {
		return nil, apperror.Validation("nothing to claim for this asset")
	}

	lockedTransfer, err := s.transferRepo.GetForUpdate(ctx, dbTx, req.TransferID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transfer: %w", err))
	}
	if lockedTransfer == nil || !lockedTransfer.Recoverable() {
		return nil, apperror.ErrTransferNotRefundable()
	}

	// Re-run the receipt-side credit with the origin NAV recorded at
	// dispatch; this exactly reverses the dispatch-side debit.
	uow := ports.NewUnitOfWork(dbTx)
	result, err := s.supplySvc.CreditReceipt(ctx, uow, ports.ReceiveRequest{
		VaultID:            req.VaultID,
		TransferID:         req.TransferID,
		SourceAccount:      escrow.ID,
		Asset:              asset,
		Amount:             balance,
		OriginUnitaryValue: lockedTransfer.OriginUnitaryValue,
		Mode:               lockedTransfer.Mode,
		RegisterAsset:      false,
	})
	if err != nil {
		return nil, err
	}

	if err := s.transferRepo.UpdateStatus(ctx, dbTx, req.TransferID, domain.TransferStatusRecovered); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark recovered: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("transfer_id", req.TransferID.String()).
		Str("escrow_id", escrow.ID.String()).
		Str("asset", string(asset)).
		Str("amount", balance.String()).
		Str("shares_credited", result.SharesCredited.String()).
		Msg("escrow claim processed")

	return &ports.ClaimResult{
		EscrowID:        escrow.ID,
		AmountForwarded: balance,
		SharesCredited:  result.SharesCredited,
	}, nil
}
