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

// VaultServiceImpl implements ports.VaultService. Creation happens once at
// bootstrap; owner and base asset are immutable afterwards.
type VaultServiceImpl struct {
	vaultRepo  ports.VaultRepository
	supplyRepo ports.SupplyRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewVaultService creates a new VaultServiceImpl.
func NewVaultService(
	vaultRepo ports.VaultRepository,
	supplyRepo ports.SupplyRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *VaultServiceImpl {
	return &VaultServiceImpl{
		vaultRepo:  vaultRepo,
		supplyRepo: supplyRepo,
		transactor: transactor,
		log:        log,
	}
}

// Create deploys the vault replica: metadata, parameters and a zeroed
// supply row.
func (s *VaultServiceImpl) Create(ctx context.Context, req ports.CreateVaultRequest) (*domain.Vault, error) {
	if req.Name == "" || req.Symbol == "" {
		return nil, apperror.Validation("name and symbol are required")
	}
	if req.OwnerID == uuid.Nil {
		return nil, apperror.Validation("owner is required")
	}
	if req.BaseAsset == "" {
		return nil, apperror.Validation("base asset is required")
	}
	if req.Decimals <= 0 || req.Decimals > 18 {
		return nil, apperror.Validation("decimals must be in (0, 18]")
	}

	now := time.Now().UTC()
	vault := &domain.Vault{
		ID:        uuid.New(),
		Name:      req.Name,
		Symbol:    req.Symbol,
		Decimals:  req.Decimals,
		OwnerID:   req.OwnerID,
		BaseAsset: req.BaseAsset,
		CreatedAt: now,
		UpdatedAt: now,
	}

	params := req.Params
	params.VaultID = vault.ID
	if params.MinimumOrderDivisor == 0 {
		params.MinimumOrderDivisor = domain.DefaultMinimumOrderDivisor
	}
	params.UpdatedAt = now
	if err := params.Validate(); err != nil {
		return nil, apperror.ErrInvalidParameters(err.Error())
	}

	if err := s.vaultRepo.Create(ctx, vault, &params); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create vault: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	supply := &domain.SupplyState{
		VaultID:       vault.ID,
		TotalSupply:   decimal.Zero,
		VirtualSupply: decimal.Zero,
		UpdatedAt:     now,
	}
	if err := s.supplyRepo.Update(ctx, dbTx, supply); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("init supply: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("vault_id", vault.ID.String()).
		Str("symbol", vault.Symbol).
		Str("base_asset", string(vault.BaseAsset)).
		Msg("vault created")
	return vault, nil
}

// UpdateParameters replaces the owner-tunable parameters. Owner capability
// is resolved before dispatch; the service re-checks actor identity.
func (s *VaultServiceImpl) UpdateParameters(ctx context.Context, actorID uuid.UUID, params *domain.VaultParameters) error {
	vault, err := s.vaultRepo.Get(ctx, params.VaultID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return apperror.ErrNotFound("vault")
	}
	if vault.OwnerID != actorID {
		return apperror.ErrCapabilityDenied()
	}
	if err := params.Validate(); err != nil {
		return apperror.ErrInvalidParameters(err.Error())
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	params.UpdatedAt = time.Now().UTC()
	if err := s.vaultRepo.UpdateParameters(ctx, dbTx, params); err != nil {
		return apperror.InternalError(fmt.Errorf("update parameters: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("vault_id", params.VaultID.String()).
		Int64("spread_bps", params.SpreadBps).
		Int64("fee_bps", params.FeeBps).
		Dur("min_hold_period", params.MinHoldPeriod).
		Msg("vault parameters updated")
	return nil
}

// SetLocked flips the vault's locked flag.
func (s *VaultServiceImpl) SetLocked(ctx context.Context, actorID, vaultID uuid.UUID, locked bool) error {
	vault, err := s.vaultRepo.Get(ctx, vaultID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get vault: %w", err))
	}
	if vault == nil {
		return apperror.ErrNotFound("vault")
	}
	if vault.OwnerID != actorID {
		return apperror.ErrCapabilityDenied()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.vaultRepo.SetLocked(ctx, dbTx, vaultID, locked); err != nil {
		return apperror.InternalError(fmt.Errorf("set locked: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("vault_id", vaultID.String()).Bool("locked", locked).Msg("vault lock updated")
	return nil
}
