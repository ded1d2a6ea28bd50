package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Basis-point arithmetic bounds.
const (
	BpsDenominator = 10000
	MaxSpreadBps   = 1000 // 10%
	MaxFeeBps      = 100  // 1%

	// DefaultMinimumOrderDivisor sets the dust floor to
	// 10^decimals / divisor base units.
	DefaultMinimumOrderDivisor int64 = 1000
)

// Vault is one replica's view of a pooled-asset vault. Owner and base asset
// are fixed at creation; the same vault identity exists on every replica.
type Vault struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Decimals  int32     `json:"decimals"`
	OwnerID   uuid.UUID `json:"owner_id"`
	BaseAsset AssetID   `json:"base_asset"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnitScale returns 10^decimals, the value of one whole share in share units
// and of one whole base coin in base units.
func (v *Vault) UnitScale() decimal.Decimal {
	return decimal.New(1, v.Decimals)
}

// VaultParameters are the owner-tunable knobs of a vault.
type VaultParameters struct {
	VaultID             uuid.UUID     `json:"vault_id"`
	MinHoldPeriod       time.Duration `json:"min_hold_period"`
	SpreadBps           int64         `json:"spread_bps"`
	FeeBps              int64         `json:"fee_bps"`
	FeeCollector        uuid.UUID     `json:"fee_collector"`
	AllowlistProvider   *string       `json:"allowlist_provider,omitempty"`
	MinimumOrderDivisor int64         `json:"minimum_order_divisor"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Validate checks parameter bounds.
func (p *VaultParameters) Validate() error {
	if p.SpreadBps < 0 || p.SpreadBps > MaxSpreadBps {
		return fmt.Errorf("spread %d bps outside [0, %d]", p.SpreadBps, MaxSpreadBps)
	}
	if p.FeeBps < 0 || p.FeeBps > MaxFeeBps {
		return fmt.Errorf("fee %d bps outside [0, %d]", p.FeeBps, MaxFeeBps)
	}
	if p.MinHoldPeriod < 0 {
		return fmt.Errorf("negative minimum holding period")
	}
	if p.MinimumOrderDivisor <= 0 {
		return fmt.Errorf("minimum order divisor must be positive")
	}
	if p.FeeCollector == uuid.Nil {
		return fmt.Errorf("fee collector is required")
	}
	return nil
}

// MinimumOrder returns the dust floor for deposits: 10^decimals / divisor.
func (p *VaultParameters) MinimumOrder(decimals int32) decimal.Decimal {
	q, _ := decimal.New(1, decimals).QuoRem(decimal.NewFromInt(p.MinimumOrderDivisor), 0)
	return q
}
