package ports

import (
	"context"
	"time"

	"pooled-asset-vault/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- External collaborator ports (venues, feeds, custody, allow-lists) ---

// PriceConverter is the narrow price-conversion surface of the external
// feed/venue adapters. Amounts are integer-valued decimals in smallest units.
type PriceConverter interface {
	// ConvertToBase values amount of asset in base-asset units.
	ConvertToBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, amount decimal.Decimal) (decimal.Decimal, error)
	// ConvertFromBase values baseValue in units of asset.
	ConvertFromBase(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID, baseValue decimal.Decimal) (decimal.Decimal, error)
	// HasPriceFeed reports whether a valid feed exists for asset.
	HasPriceFeed(ctx context.Context, asset domain.AssetID) (bool, error)
}

// CustodyClient is the balance-query and forwarding surface of the external
// custody collaborator. Accounts are addressed by stable identity: the vault
// account is the vault ID, escrow accounts are their derived IDs.
type CustodyClient interface {
	Balance(ctx context.Context, accountID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error)
	// HolderBalance returns a holder wallet's own balance of asset (used by
	// the burn-side self-balance sentinel).
	HolderBalance(ctx context.Context, holderID uuid.UUID, asset domain.AssetID) (decimal.Decimal, error)
	// Forward moves the full given amount between custody accounts.
	Forward(ctx context.Context, from, to uuid.UUID, asset domain.AssetID, amount decimal.Decimal) error
}

// AllowList is the external allow-list collaborator.
type AllowList interface {
	// IsParticipant checks the mint-side participation list of a provider.
	IsParticipant(ctx context.Context, provider string, account uuid.UUID) (bool, error)
	// IsRecoverable checks the escrow-recovery asset list. The native asset
	// is always recoverable; everything else needs an explicit entry,
	// price feed or not.
	IsRecoverable(ctx context.Context, vaultID uuid.UUID, asset domain.AssetID) (bool, error)
}

// --- Infrastructure ports ---

// MutationLock is the per-vault reentrancy guard: one unit of work at a
// time, released even on failure. Sequential units are permitted.
type MutationLock interface {
	// Acquire returns false if another unit of work holds the lock.
	Acquire(ctx context.Context, vaultID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, vaultID uuid.UUID) error
}

// ReceiptCache is the redis fast path for cross-replica receipt dedup.
type ReceiptCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil if absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for transport replay prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// SignatureService handles HMAC-SHA256 signing of transport messages.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles operator credential hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(operatorID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OperatorID uuid.UUID
	Role       domain.Role
}

// DispatchClient delivers signed transfer messages to peer replicas.
type DispatchClient interface {
	Send(ctx context.Context, destination string, msg TransferMessage) error
}

// TransferMessage is the wire form of a cross-replica transfer.
type TransferMessage struct {
	TransferID         uuid.UUID           `json:"transfer_id"`
	VaultID            uuid.UUID           `json:"vault_id"`
	Source             string              `json:"source"` // dispatching replica identifier
	SourceAccount      uuid.UUID           `json:"source_account"`
	Asset              domain.AssetID      `json:"asset"`
	Amount             decimal.Decimal     `json:"amount"`
	OriginUnitaryValue decimal.Decimal     `json:"origin_unitary_value"`
	Mode               domain.TransferMode `json:"mode"`
}

// --- Service ports (business logic) ---

// ValuationService computes NAV from local state plus collaborators.
type ValuationService interface {
	// Recompute returns a fresh valuation. Refuses dust supply unless the
	// caller opts into par pricing for a first deposit.
	Recompute(ctx context.Context, vaultID uuid.UUID) (*domain.ValuationState, error)
}

// MintService performs deposits.
type MintService interface {
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)
	MintWithAsset(ctx context.Context, req MintRequest) (*MintResult, error)
}

// MintRequest holds validated input for a deposit.
type MintRequest struct {
	VaultID      uuid.UUID
	CallerID     uuid.UUID
	Recipient    uuid.UUID
	AmountIn     decimal.Decimal
	MinSharesOut decimal.Decimal
	Asset        domain.AssetID // empty = base asset; set only via MintWithAsset
	ClientIP     string
}

// MintResult reports the share movements of a deposit.
type MintResult struct {
	SharesIssued decimal.Decimal        `json:"shares_issued"` // credited to recipient
	FeeShares    decimal.Decimal        `json:"fee_shares"`
	SpreadShares decimal.Decimal        `json:"spread_shares"`
	Valuation    *domain.ValuationState `json:"valuation"`
}

// BurnService performs redemptions.
type BurnService interface {
	Burn(ctx context.Context, req BurnRequest) (*BurnResult, error)
	BurnForAsset(ctx context.Context, req BurnRequest) (*BurnResult, error)
}

// BurnRequest holds validated input for a redemption.
type BurnRequest struct {
	VaultID   uuid.UUID
	HolderID  uuid.UUID
	AmountIn  decimal.Decimal
	MinPayout decimal.Decimal
	Asset     domain.AssetID // empty = base; domain.SelfBalanceAsset = caller wallet balance
	ClientIP  string
}

// BurnResult reports the payout of a redemption.
type BurnResult struct {
	Payout       decimal.Decimal        `json:"payout"`
	PayoutAsset  domain.AssetID         `json:"payout_asset"`
	BurnedShares decimal.Decimal        `json:"burned_shares"`
	FeeShares    decimal.Decimal        `json:"fee_shares"`
	SpreadShares decimal.Decimal        `json:"spread_shares"`
	Valuation    *domain.ValuationState `json:"valuation"`
}

// SupplyService implements the cross-replica virtual-supply protocol.
type SupplyService interface {
	// Dispatch debits virtual supply (Transfer mode) and hands the transfer
	// to the transport client.
	Dispatch(ctx context.Context, req DispatchRequest) (*domain.ReplicaTransfer, error)
	// Receive applies an inbound transfer as one unit of work containing the
	// two-phase baseline-then-verify credit. Trusted transport only.
	Receive(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error)
	// CreditReceipt runs the two sequential receipt phases inside a caller-
	// provided unit of work (used by Receive and by escrow recovery).
	CreditReceipt(ctx context.Context, uow *UnitOfWork, req ReceiveRequest) (*ReceiveResult, error)
	// Settle and MarkRefunded are transport status callbacks for transfers
	// dispatched from this replica.
	Settle(ctx context.Context, vaultID, transferID uuid.UUID) error
	MarkRefunded(ctx context.Context, vaultID, transferID uuid.UUID) error
}

// DispatchRequest holds input for an outbound cross-replica transfer.
type DispatchRequest struct {
	VaultID     uuid.UUID
	Asset       domain.AssetID
	Amount      decimal.Decimal
	Mode        domain.TransferMode
	Destination string
}

// ReceiveRequest holds an inbound cross-replica transfer. SourceAccount is
// the custody account holding the in-flight funds; the credit pulls from it
// between the two receipt phases, inside the same unit of work. For normal
// receipts that is the transport's landing account, for escrow claims the
// escrow account itself.
type ReceiveRequest struct {
	VaultID            uuid.UUID
	TransferID         uuid.UUID
	SourceAccount      uuid.UUID
	Asset              domain.AssetID
	Amount             decimal.Decimal
	OriginUnitaryValue decimal.Decimal
	Mode               domain.TransferMode
	// RegisterAsset marks tracked custody paths that may grow the active
	// asset registry. Escrow claims never register assets.
	RegisterAsset bool
}

// ReceiveResult reports the effect of an applied receipt.
type ReceiveResult struct {
	SharesCredited decimal.Decimal        `json:"shares_credited"`
	Valuation      *domain.ValuationState `json:"valuation"`
}

// RecoveryService implements escrow recovery of refunded transfers.
type RecoveryService interface {
	// EscrowAccountFor derives and lazily creates the recovery account for
	// (vault, opType). Idempotent.
	EscrowAccountFor(ctx context.Context, vaultID uuid.UUID, op domain.EscrowOpType) (*domain.EscrowAccount, error)
	// Claim forwards a refunded balance from escrow to the vault and
	// replays the receipt-side virtual-supply credit.
	Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error)
}

// ClaimRequest holds input for an escrow claim.
type ClaimRequest struct {
	VaultID    uuid.UUID
	TransferID uuid.UUID
	Asset      domain.AssetID
}

// ClaimResult reports a completed escrow claim.
type ClaimResult struct {
	EscrowID        uuid.UUID       `json:"escrow_id"`
	AmountForwarded decimal.Decimal `json:"amount_forwarded"`
	SharesCredited  decimal.Decimal `json:"shares_credited"`
}

// VaultService manages vault metadata and parameters.
type VaultService interface {
	Create(ctx context.Context, req CreateVaultRequest) (*domain.Vault, error)
	UpdateParameters(ctx context.Context, actorID uuid.UUID, params *domain.VaultParameters) error
	SetLocked(ctx context.Context, actorID, vaultID uuid.UUID, locked bool) error
}

// CreateVaultRequest holds bootstrap input; owner and base asset are
// immutable afterwards.
type CreateVaultRequest struct {
	Name      string
	Symbol    string
	Decimals  int32
	OwnerID   uuid.UUID
	BaseAsset domain.AssetID
	Params    domain.VaultParameters
}

// ReportingService serves the read-only views.
type ReportingService interface {
	GetVault(ctx context.Context, vaultID uuid.UUID) (*domain.Vault, error)
	GetParameters(ctx context.Context, vaultID uuid.UUID) (*domain.VaultParameters, error)
	// GetSnapshot recomputes and returns the supply/valuation view.
	GetSnapshot(ctx context.Context, vaultID uuid.UUID) (*domain.ValuationState, error)
	GetAccount(ctx context.Context, vaultID, holderID uuid.UUID) (*AccountView, error)
	ListAssets(ctx context.Context, vaultID uuid.UUID) ([]domain.ActiveAsset, error)
	GetTransfer(ctx context.Context, transferID uuid.UUID) (*domain.ReplicaTransfer, error)
}

// AuthService authenticates operators.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// AuditService records audited actions.
type AuditService interface {
	Record(ctx context.Context, log *domain.AuditLog)
	List(ctx context.Context, actorID *uuid.UUID, limit, offset int) ([]domain.AuditLog, error)
}
