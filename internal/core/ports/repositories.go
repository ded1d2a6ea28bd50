package ports

import (
	"context"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// VaultRepository defines persistence for vault metadata and parameters.
// Each field family lives under its own table/columns so future fields never
// collide with existing ones.
type VaultRepository interface {
	Create(ctx context.Context, vault *domain.Vault, params *domain.VaultParameters) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Vault, error)
	GetParameters(ctx context.Context, vaultID uuid.UUID) (*domain.VaultParameters, error)
	UpdateParameters(ctx context.Context, tx pgx.Tx, params *domain.VaultParameters) error
	SetLocked(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID, locked bool) error
}

// LedgerRepository defines persistence for per-holder share accounts.
// Methods accepting pgx.Tx run inside units of work with pessimistic locking.
type LedgerRepository interface {
	Get(ctx context.Context, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) (*domain.ShareAccount, error)
	Upsert(ctx context.Context, tx pgx.Tx, account *domain.ShareAccount) error
	// Delete removes a zeroed account.
	Delete(ctx context.Context, tx pgx.Tx, vaultID, holderID uuid.UUID) error
	// HolderCount reports the number of accounts with non-zero balance.
	HolderCount(ctx context.Context, vaultID uuid.UUID) (int64, error)
}

// SupplyRepository defines persistence for total and virtual supply.
type SupplyRepository interface {
	Get(ctx context.Context, vaultID uuid.UUID) (*domain.SupplyState, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, vaultID uuid.UUID) (*domain.SupplyState, error)
	Update(ctx context.Context, tx pgx.Tx, state *domain.SupplyState) error
}

// AssetRegistryRepository defines persistence for the active-asset set.
type AssetRegistryRepository interface {
	List(ctx context.Context, vaultID uuid.UUID) ([]domain.ActiveAsset, error)
	IsActive(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error)
	Count(ctx context.Context, vaultID uuid.UUID) (int64, error)
	Add(ctx context.Context, tx pgx.Tx, entry *domain.ActiveAsset) error
}

// TransferRepository defines persistence for dispatched cross-replica
// transfers.
type TransferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transfer *domain.ReplicaTransfer) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ReplicaTransfer, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.ReplicaTransfer, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransferStatus) error
}

// EscrowRepository defines get-or-create persistence for recovery accounts.
type EscrowRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.EscrowAccount, error)
	// GetOrCreate is idempotent: creating the same (vault, opType) twice
	// yields the same row.
	GetOrCreate(ctx context.Context, tx pgx.Tx, account *domain.EscrowAccount) (*domain.EscrowAccount, error)
}

// ReceiptRepository defines persistence for applied cross-replica receipts
// (DB backup behind the redis fast path).
type ReceiptRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.ReceiptLog) error
	Get(ctx context.Context, key string) (*domain.ReceiptLog, error)
}

// OperatorRepository defines persistence for authentication principals.
type OperatorRepository interface {
	Create(ctx context.Context, operator *domain.Operator) error
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	List(ctx context.Context, actorID *uuid.UUID, limit, offset int) ([]domain.AuditLog, error)
}

// DBTransactor provides database transaction management. One pgx transaction
// is one unit of work: it commits whole or rolls back whole.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountView is the read-model for a holder account returned by reporting.
type AccountView struct {
	HolderID   uuid.UUID       `json:"holder_id"`
	Balance    decimal.Decimal `json:"balance"`
	Activation int64           `json:"activation"` // Unix seconds
	Unlocked   bool            `json:"unlocked"`
}
