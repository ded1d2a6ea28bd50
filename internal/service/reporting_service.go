package service

import (
	"context"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	vaultRepo    ports.VaultRepository
	ledgerRepo   ports.LedgerRepository
	assetRepo    ports.AssetRegistryRepository
	transferRepo ports.TransferRepository
	valuationSvc ports.ValuationService
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	vaultRepo ports.VaultRepository,
	ledgerRepo ports.LedgerRepository,
	assetRepo ports.AssetRegistryRepository,
	transferRepo ports.TransferRepository,
	valuationSvc ports.ValuationService,
) ports.ReportingService {
	return &reportingService{
		vaultRepo:    vaultRepo,
		ledgerRepo:   ledgerRepo,
		assetRepo:    assetRepo,
		transferRepo: transferRepo,
		valuationSvc: valuationSvc,
	}
}

// GetVault returns vault metadata.
func (s *reportingService) GetVault(ctx context.Context, vaultID uuid.UUID) (*domain.Vault, error) {
	vault, err := s.vaultRepo.Get(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if vault == nil {
		return nil, apperror.ErrNotFound("vault")
	}
	return vault, nil
}

// GetParameters returns the current owner-tunable parameters.
func (s *reportingService) GetParameters(ctx context.Context, vaultID uuid.UUID) (*domain.VaultParameters, error) {
	params, err := s.vaultRepo.GetParameters(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if params == nil {
		return nil, apperror.ErrNotFound("vault parameters")
	}
	return params, nil
}

// GetSnapshot recomputes and returns the live supply/valuation view. The
// snapshot is advisory: every mutation recomputes its own.
func (s *reportingService) GetSnapshot(ctx context.Context, vaultID uuid.UUID) (*domain.ValuationState, error) {
	return s.valuationSvc.Recompute(ctx, vaultID)
}

// GetAccount returns a holder's share account view.
func (s *reportingService) GetAccount(ctx context.Context, vaultID, holderID uuid.UUID) (*ports.AccountView, error) {
	account, err := s.ledgerRepo.Get(ctx, vaultID, holderID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if account == nil {
		return nil, apperror.ErrNotFound("share account")
	}
	return &ports.AccountView{
		HolderID:   account.HolderID,
		Balance:    account.Balance,
		Activation: account.Activation.Unix(),
		Unlocked:   account.Unlocked(time.Now().UTC()),
	}, nil
}

// ListAssets returns the active asset registry.
func (s *reportingService) ListAssets(ctx context.Context, vaultID uuid.UUID) ([]domain.ActiveAsset, error) {
	assets, err := s.assetRepo.List(ctx, vaultID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return assets, nil
}

// GetTransfer returns a dispatched cross-replica transfer.
func (s *reportingService) GetTransfer(ctx context.Context, transferID uuid.UUID) (*domain.ReplicaTransfer, error) {
	transfer, err := s.transferRepo.Get(ctx, transferID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if transfer == nil {
		return nil, apperror.ErrNotFound("transfer")
	}
	return transfer, nil
}
