package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationState is a freshly computed NAV snapshot. It is recomputed
// immediately before every mutating operation and never trusted as a cache
// across operations.
type ValuationState struct {
	UnitaryValue    decimal.Decimal `json:"unitary_value"`     // base units per whole share
	TotalSupply     decimal.Decimal `json:"total_supply"`      // share units
	VirtualSupply   decimal.Decimal `json:"virtual_supply"`    // share units, signed
	EffectiveSupply decimal.Decimal `json:"effective_supply"`  // denominator actually used
	TotalAssetValue decimal.Decimal `json:"total_asset_value"` // base units
	ComputedAt      time.Time       `json:"computed_at"`
}

// All share/value conversions floor, never round up. Inputs are integer-
// valued decimals in smallest units, so results stay integer-exact wherever
// the worked examples require it.

// SharesForValue converts a base-unit value to shares at the given unitary
// value: floor(value * 10^decimals / unitaryValue).
func SharesForValue(value, unitaryValue decimal.Decimal, decimals int32) decimal.Decimal {
	if unitaryValue.Sign() <= 0 {
		return decimal.Zero
	}
	q, _ := value.Mul(decimal.New(1, decimals)).QuoRem(unitaryValue, 0)
	return q
}

// ValueForShares converts shares to base units at the given unitary value:
// floor(shares * unitaryValue / 10^decimals).
func ValueForShares(shares, unitaryValue decimal.Decimal, decimals int32) decimal.Decimal {
	q, _ := shares.Mul(unitaryValue).QuoRem(decimal.New(1, decimals), 0)
	return q
}

// BasisPointCut returns floor(amount * bps / 10000).
func BasisPointCut(amount decimal.Decimal, bps int64) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(bps)).QuoRem(decimal.NewFromInt(BpsDenominator), 0)
	return q
}

// ParValue returns the first-deposit unitary value: one base unit per share
// unit, i.e. 10^decimals base units per whole share.
func ParValue(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}
