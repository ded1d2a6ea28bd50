package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RedeemableFloorDivisor fixes the post-adjustment floor: effective supply
// must stay at or above totalSupply/8 (12.5% locally redeemable).
const RedeemableFloorDivisor = 8

// SupplyState tracks a replica's share supply. VirtualSupply is the signed
// count of shares believed to live on other replicas; its sum across all
// replicas of one vault is always zero.
type SupplyState struct {
	VaultID       uuid.UUID       `json:"vault_id"`
	TotalSupply   decimal.Decimal `json:"total_supply"`
	VirtualSupply decimal.Decimal `json:"virtual_supply"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Effective returns totalSupply + virtualSupply, the true NAV denominator.
func (s *SupplyState) Effective() decimal.Decimal {
	return s.TotalSupply.Add(s.VirtualSupply)
}

// RedeemableFloor returns floor(totalSupply / 8).
func RedeemableFloor(totalSupply decimal.Decimal) decimal.Decimal {
	q, _ := totalSupply.QuoRem(decimal.NewFromInt(RedeemableFloorDivisor), 0)
	return q
}

// MeetsRedeemableFloor reports whether totalSupply+virtualSupply sits at or
// above the floor. Checked after every virtual-supply adjustment and, with
// post-burn totals, after every burn.
func MeetsRedeemableFloor(totalSupply, virtualSupply decimal.Decimal) bool {
	return totalSupply.Add(virtualSupply).Cmp(RedeemableFloor(totalSupply)) >= 0
}

// TransferMode selects the cross-replica semantics of a value movement.
type TransferMode string

const (
	// TransferModeTransfer is NAV-neutral: both sides adjust virtual supply
	// using the origin replica's unitary value at dispatch time.
	TransferModeTransfer TransferMode = "TRANSFER"
	// TransferModeSync is NAV-impacting: value moves, no supply adjustment.
	TransferModeSync TransferMode = "SYNC"
)

// Valid reports whether m is a known mode.
func (m TransferMode) Valid() bool {
	return m == TransferModeTransfer || m == TransferModeSync
}

// TransferStatus is the lifecycle state of a dispatched transfer.
type TransferStatus string

const (
	TransferStatusDispatched TransferStatus = "DISPATCHED"
	TransferStatusSettled    TransferStatus = "SETTLED"
	TransferStatusRefunded   TransferStatus = "REFUNDED"
	TransferStatusRecovered  TransferStatus = "RECOVERED"
)

// ReplicaTransfer records a dispatched cross-replica transfer. The stored
// origin unitary value is what escrow recovery replays to reverse the
// dispatch-side virtual-supply debit exactly.
type ReplicaTransfer struct {
	ID                 uuid.UUID       `json:"id"`
	VaultID            uuid.UUID       `json:"vault_id"`
	Destination        string          `json:"destination"` // peer replica identifier
	Asset              AssetID         `json:"asset"`
	Amount             decimal.Decimal `json:"amount"`     // asset units dispatched
	BaseValue          decimal.Decimal `json:"base_value"` // value in base-asset units
	Shares             decimal.Decimal `json:"shares"`     // virtual-supply debit (zero for Sync)
	OriginUnitaryValue decimal.Decimal `json:"origin_unitary_value"`
	Mode               TransferMode    `json:"mode"`
	Status             TransferStatus  `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	SettledAt          *time.Time      `json:"settled_at,omitempty"`
}

// Recoverable reports whether a transfer can be claimed through escrow.
func (t *ReplicaTransfer) Recoverable() bool {
	return t.Status == TransferStatusRefunded
}
