package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decimals = int32(18)

func TestSharesForValue_Floors(t *testing.T) {
	// 10 base units at unitary value 3 base units per whole share:
	// 10 * 1e18 / 3 floors.
	got := SharesForValue(decimal.NewFromInt(10), decimal.NewFromInt(3), decimals)
	want, _ := decimal.NewFromInt(10).Mul(decimal.New(1, decimals)).QuoRem(decimal.NewFromInt(3), 0)
	assert.True(t, got.Equal(want))
	assert.True(t, got.IsInteger())
}

func TestSharesForValue_NonPositiveUnitary(t *testing.T) {
	assert.True(t, SharesForValue(decimal.NewFromInt(10), decimal.Zero, decimals).IsZero())
	assert.True(t, SharesForValue(decimal.NewFromInt(10), decimal.NewFromInt(-1), decimals).IsZero())
}

func TestValueForShares_RoundTripAtPar(t *testing.T) {
	shares := decimal.New(999, decimals)
	par := ParValue(decimals)
	assert.True(t, ValueForShares(shares, par, decimals).Equal(decimal.New(999, decimals)))
}

// Worked example: amountIn=1000, spread=10 bps, fee=100 bps, unitaryValue=1.0,
// 18-decimal precision. Every intermediate result must be integer-exact.
func TestWorkedExample_SpreadAndFee(t *testing.T) {
	amountIn := decimal.New(1000, decimals)

	spread := BasisPointCut(amountIn, 10)
	require.True(t, spread.Equal(decimal.New(1, decimals)), "spread deduction must be exactly 1 unit")

	feeBearing := amountIn.Sub(spread)
	require.True(t, feeBearing.Equal(decimal.New(999, decimals)))

	minted := SharesForValue(feeBearing, ParValue(decimals), decimals)
	require.True(t, minted.Equal(decimal.New(999, decimals)))

	fee := BasisPointCut(minted, 100)
	require.True(t, fee.Equal(decimal.New(999, 16)), "fee must be exactly 9.99 whole shares")

	recipient := minted.Sub(fee)
	require.True(t, recipient.Equal(decimal.New(98901, 16)), "recipient gets the exact remainder")
}

// Cross-replica example: unitary value 2.0, assets worth 1000 base units
// convert to exactly 500 whole shares.
func TestWorkedExample_CrossReplicaShares(t *testing.T) {
	origin := decimal.New(2, decimals)
	value := decimal.New(1000, decimals)
	shares := SharesForValue(value, origin, decimals)
	assert.True(t, shares.Equal(decimal.New(500, decimals)))
}

func TestRedeemableFloor(t *testing.T) {
	total := decimal.NewFromInt(800)

	// Exactly at the floor succeeds.
	assert.True(t, MeetsRedeemableFloor(total, decimal.NewFromInt(-700)))
	// One unit below fails.
	assert.False(t, MeetsRedeemableFloor(total, decimal.NewFromInt(-701)))
	// Positive virtual supply is always above the floor.
	assert.True(t, MeetsRedeemableFloor(total, decimal.NewFromInt(100)))
}

func TestSupplyState_Effective(t *testing.T) {
	s := SupplyState{
		TotalSupply:   decimal.NewFromInt(1000),
		VirtualSupply: decimal.NewFromInt(-250),
	}
	assert.True(t, s.Effective().Equal(decimal.NewFromInt(750)))
}

func TestDeriveEscrowID_DeterministicAndDistinct(t *testing.T) {
	vaultID := uuid.New()

	a := DeriveEscrowID(vaultID, EscrowOpTransfer)
	b := DeriveEscrowID(vaultID, EscrowOpTransfer)
	assert.Equal(t, a, b, "same inputs must derive the same identity")

	c := DeriveEscrowID(vaultID, EscrowOpSync)
	assert.NotEqual(t, a, c, "different op types must not collide")

	d := DeriveEscrowID(uuid.New(), EscrowOpTransfer)
	assert.NotEqual(t, a, d, "different vaults must not collide")
}

func TestVaultParameters_Validate(t *testing.T) {
	base := VaultParameters{
		VaultID:             uuid.New(),
		MinHoldPeriod:       24 * time.Hour,
		SpreadBps:           10,
		FeeBps:              50,
		FeeCollector:        uuid.New(),
		MinimumOrderDivisor: DefaultMinimumOrderDivisor,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*VaultParameters)
	}{
		{"spread above cap", func(p *VaultParameters) { p.SpreadBps = MaxSpreadBps + 1 }},
		{"negative spread", func(p *VaultParameters) { p.SpreadBps = -1 }},
		{"fee above cap", func(p *VaultParameters) { p.FeeBps = MaxFeeBps + 1 }},
		{"negative hold period", func(p *VaultParameters) { p.MinHoldPeriod = -time.Hour }},
		{"zero order divisor", func(p *VaultParameters) { p.MinimumOrderDivisor = 0 }},
		{"missing fee collector", func(p *VaultParameters) { p.FeeCollector = uuid.Nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestVaultParameters_MinimumOrder(t *testing.T) {
	p := VaultParameters{MinimumOrderDivisor: 1000}
	assert.True(t, p.MinimumOrder(decimals).Equal(decimal.New(1, 15)))
}

func TestShareAccount_Unlocked(t *testing.T) {
	now := time.Now()
	acct := ShareAccount{Activation: now}

	assert.False(t, acct.Unlocked(now.Add(-time.Second)))
	assert.True(t, acct.Unlocked(now))
	assert.True(t, acct.Unlocked(now.Add(time.Second)))
}

func TestMutationPermitted(t *testing.T) {
	tests := []struct {
		role Role
		op   Operation
		want bool
	}{
		{RoleOperator, OpMint, true},
		{RoleOperator, OpSetParameters, false},
		{RoleOwner, OpSetParameters, true},
		{RoleTransport, OpReceive, true},
		{RoleTransport, OpMint, false},
		{RoleOwner, OpReceive, false},
		{RoleOperator, Operation("UNKNOWN"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MutationPermitted(tt.role, tt.op), "%s/%s", tt.role, tt.op)
	}
}

func TestTransferMode_Valid(t *testing.T) {
	assert.True(t, TransferModeTransfer.Valid())
	assert.True(t, TransferModeSync.Valid())
	assert.False(t, TransferMode("DONATE").Valid())
}

func TestReplicaTransfer_Recoverable(t *testing.T) {
	tr := ReplicaTransfer{Status: TransferStatusDispatched}
	assert.False(t, tr.Recoverable())
	tr.Status = TransferStatusRefunded
	assert.True(t, tr.Recoverable())
	tr.Status = TransferStatusRecovered
	assert.False(t, tr.Recoverable())
}
