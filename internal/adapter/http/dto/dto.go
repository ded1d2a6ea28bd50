package dto

import (
	"github.com/shopspring/decimal"
)

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// VaultParamsPayload carries owner-tunable vault parameters.
type VaultParamsPayload struct {
	MinHoldPeriodSeconds int64   `json:"min_hold_period_seconds" binding:"gte=0"`
	SpreadBps            int64   `json:"spread_bps" binding:"gte=0,lte=1000"`
	FeeBps               int64   `json:"fee_bps" binding:"gte=0,lte=100"`
	FeeCollector         string  `json:"fee_collector" binding:"required,uuid"`
	AllowlistProvider    *string `json:"allowlist_provider,omitempty" binding:"omitempty,safe_id"`
	MinimumOrderDivisor  int64   `json:"minimum_order_divisor" binding:"omitempty,gt=0"`
}

// CreateVaultRequest is the request body for vault bootstrap.
type CreateVaultRequest struct {
	Name      string             `json:"name" binding:"required,min=1,max=100"`
	Symbol    string             `json:"symbol" binding:"required,min=1,max=16,safe_id"`
	Decimals  int32              `json:"decimals" binding:"gte=0,lte=18"`
	OwnerID   string             `json:"owner_id" binding:"required,uuid"`
	BaseAsset string             `json:"base_asset" binding:"required,safe_id"`
	Params    VaultParamsPayload `json:"params" binding:"required"`
}

// MintRequest is the request body for a deposit.
type MintRequest struct {
	Recipient    string `json:"recipient" binding:"required,uuid"`
	Amount       string `json:"amount" binding:"required,unit_amount"`
	MinSharesOut string `json:"min_shares_out,omitempty" binding:"omitempty,unit_amount"`
	Asset        string `json:"asset,omitempty" binding:"omitempty,safe_id"`
}

// BurnRequest is the request body for a redemption.
type BurnRequest struct {
	Holder    string `json:"holder" binding:"required,uuid"`
	Amount    string `json:"amount" binding:"required,unit_amount"`
	MinPayout string `json:"min_payout,omitempty" binding:"omitempty,unit_amount"`
	Asset     string `json:"asset,omitempty" binding:"omitempty,safe_id"`
}

// DispatchRequest is the request body for an outbound cross-replica transfer.
type DispatchRequest struct {
	Destination string `json:"destination" binding:"required,safe_id"`
	Asset       string `json:"asset" binding:"required,safe_id"`
	Amount      string `json:"amount" binding:"required,unit_amount"`
	Mode        string `json:"mode" binding:"required,oneof=TRANSFER SYNC"`
}

// ReceiveTransferRequest mirrors the signed transfer message a peer replica
// delivers. Decimal fields arrive as JSON strings in smallest units.
type ReceiveTransferRequest struct {
	TransferID         string          `json:"transfer_id" binding:"required,uuid"`
	VaultID            string          `json:"vault_id" binding:"required,uuid"`
	Source             string          `json:"source" binding:"required,safe_id"`
	SourceAccount      string          `json:"source_account" binding:"required,uuid"`
	Asset              string          `json:"asset" binding:"required,safe_id"`
	Amount             decimal.Decimal `json:"amount" binding:"required"`
	OriginUnitaryValue decimal.Decimal `json:"origin_unitary_value" binding:"required"`
	Mode               string          `json:"mode" binding:"required,oneof=TRANSFER SYNC"`
}

// TransferStatusRequest is the transport callback body for settle/refund
// notifications on transfers dispatched from this replica.
type TransferStatusRequest struct {
	VaultID string `json:"vault_id" binding:"required,uuid"`
}

// ClaimRequest is the request body for an escrow recovery claim.
type ClaimRequest struct {
	TransferID string `json:"transfer_id" binding:"required,uuid"`
	Asset      string `json:"asset" binding:"required,safe_id"`
}

// SetLockRequest is the request body for the vault lock toggle.
type SetLockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

// Amount converts a validated unit_amount string. Must only be called on
// fields that passed binding.
func Amount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, _ := decimal.NewFromString(s)
	return d
}
