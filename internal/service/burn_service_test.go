package service

import (
	"context"
	"testing"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type burnTestDeps struct {
	svc        *BurnServiceImpl
	vaultRepo  *mocks.MockVaultRepository
	ledgerRepo *mocks.MockLedgerRepository
	supplyRepo *mocks.MockSupplyRepository
	assetRepo  *mocks.MockAssetRegistryRepository
	valuation  *mocks.MockValuationService
	custody    *mocks.MockCustodyClient
	prices     *mocks.MockPriceConverter
	mutex      *mocks.MockMutationLock
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupBurnService(t *testing.T) *burnTestDeps {
	ctrl := gomock.NewController(t)
	d := &burnTestDeps{
		vaultRepo:  mocks.NewMockVaultRepository(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		supplyRepo: mocks.NewMockSupplyRepository(ctrl),
		assetRepo:  mocks.NewMockAssetRegistryRepository(ctrl),
		valuation:  mocks.NewMockValuationService(ctrl),
		custody:    mocks.NewMockCustodyClient(ctrl),
		prices:     mocks.NewMockPriceConverter(ctrl),
		mutex:      mocks.NewMockMutationLock(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewBurnService(
		d.vaultRepo, d.ledgerRepo, d.supplyRepo, d.assetRepo,
		d.valuation, d.custody, d.prices,
		d.mutex, d.transactor, zerolog.Nop(),
	)
	return d
}

func unlockedAccount(vaultID, holderID uuid.UUID, balance decimal.Decimal) *domain.ShareAccount {
	return &domain.ShareAccount{
		VaultID:    vaultID,
		HolderID:   holderID,
		Balance:    balance,
		Activation: time.Now().Add(-time.Hour),
	}
}

// ==================== Burn Tests ====================

// Burn 1000 shares at NAV 1.0 with 100 bps fee and 10 bps spread: 10 fee
// shares change hands, 990 shares burn for 990 of value, and 0.99 of that
// value is routed back as spread shares, paying out 989.01.
func TestBurnService_Burn_FeeThenSpread(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 10, 100), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(2000)), nil)
	d.supplyRepo.EXPECT().GetForUpdate(ctx, tx, vaultID).Return(&domain.SupplyState{
		VaultID:       vaultID,
		TotalSupply:   units(10000),
		VirtualSupply: decimal.Zero,
	}, nil)
	d.valuation.EXPECT().Recompute(ctx, vaultID).Return(&domain.ValuationState{
		UnitaryValue: units(1),
	}, nil)

	var holderAcct, collectorAcct *domain.ShareAccount
	d.ledgerRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, acct *domain.ShareAccount) error {
			holderAcct = acct
			return nil
		})
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, collector).Return(nil, nil)
	d.ledgerRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, acct *domain.ShareAccount) error {
			collectorAcct = acct
			return nil
		})

	var updated *domain.SupplyState
	d.supplyRepo.EXPECT().Update(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, state *domain.SupplyState) error {
			updated = state
			return nil
		})
	d.custody.EXPECT().Forward(ctx, vaultID, holder, baseUSD, decimalEq(decimal.New(98901, 16))).Return(nil)

	result, err := d.svc.Burn(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(1000),
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Payout.Equal(decimal.New(98901, 16)), "got %s", result.Payout)
	assert.Equal(t, baseUSD, result.PayoutAsset)
	assert.True(t, result.BurnedShares.Equal(units(990)), "got %s", result.BurnedShares)
	assert.True(t, result.FeeShares.Equal(units(10)))
	assert.True(t, result.SpreadShares.Equal(decimal.New(99, 16)), "got %s", result.SpreadShares)

	require.NotNil(t, holderAcct)
	assert.True(t, holderAcct.Balance.Equal(units(1000)))
	require.NotNil(t, collectorAcct)
	assert.True(t, collectorAcct.Balance.Equal(decimal.New(1099, 16)), "fee + spread shares, got %s", collectorAcct.Balance)

	// 10000 - 990 burned + 0.99 spread-minted.
	require.NotNil(t, updated)
	assert.True(t, updated.TotalSupply.Equal(decimal.New(901099, 16)), "got %s", updated.TotalSupply)
}

func TestBurnService_Burn_FullBalanceDeletesAccount(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(100)), nil)
	d.supplyRepo.EXPECT().GetForUpdate(ctx, tx, vaultID).Return(&domain.SupplyState{
		VaultID:     vaultID,
		TotalSupply: units(10000),
	}, nil)
	d.valuation.EXPECT().Recompute(ctx, vaultID).Return(&domain.ValuationState{
		UnitaryValue: units(1),
	}, nil)
	d.ledgerRepo.EXPECT().Delete(ctx, tx, vaultID, holder).Return(nil)
	d.supplyRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.custody.EXPECT().Forward(ctx, vaultID, holder, baseUSD, decimalEq(units(100))).Return(nil)

	result, err := d.svc.Burn(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
	})
	require.NoError(t, err)
	assert.True(t, result.Payout.Equal(units(100)))
}

func TestBurnService_Burn_InsufficientShares(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(50)), nil)

	_, err := d.svc.Burn(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
	})
	assertAppError(t, err, "VLT_003")
}

func TestBurnService_Burn_HoldPeriodActive(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}

	locked := &domain.ShareAccount{
		VaultID:    vaultID,
		HolderID:   holder,
		Balance:    units(100),
		Activation: time.Now().Add(time.Hour),
	}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(locked, nil)

	_, err := d.svc.Burn(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
	})
	assertAppError(t, err, "VLT_004")
}

func TestBurnService_Burn_RedeemableFloorViolated(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(200)), nil)
	// 650 shares live on other replicas; burning 100 leaves the
	// post-burn effective supply (700 - 650 = 50) under floor(700/8).
	d.supplyRepo.EXPECT().GetForUpdate(ctx, tx, vaultID).Return(&domain.SupplyState{
		VaultID:       vaultID,
		TotalSupply:   units(800),
		VirtualSupply: units(-650),
	}, nil)
	d.valuation.EXPECT().Recompute(ctx, vaultID).Return(&domain.ValuationState{
		UnitaryValue: units(1),
	}, nil)
	d.ledgerRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil)
	d.supplyRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)

	_, err := d.svc.Burn(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
	})
	assertAppError(t, err, "VLT_008")
}

func TestBurnService_BurnForAsset_BaseCoversPayout(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}
	asset := domain.AssetID("eur")

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(200)), nil)
	d.supplyRepo.EXPECT().GetForUpdate(ctx, tx, vaultID).Return(&domain.SupplyState{
		VaultID:     vaultID,
		TotalSupply: units(10000),
	}, nil)
	d.valuation.EXPECT().Recompute(ctx, vaultID).Return(&domain.ValuationState{
		UnitaryValue: units(1),
	}, nil)
	// Base custody covers the payout, so the alternate asset is refused.
	d.custody.EXPECT().Balance(ctx, vaultID, baseUSD).Return(units(5000), nil)

	_, err := d.svc.BurnForAsset(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
		Asset:    asset,
	})
	assertAppError(t, err, "VLT_015")
}

func TestBurnService_BurnForAsset_Fallback(t *testing.T) {
	d := setupBurnService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	holder := uuid.New()
	collector := uuid.New()
	tx := &mockTx{}
	asset := domain.AssetID("eur")

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetForUpdate(ctx, tx, vaultID, holder).Return(unlockedAccount(vaultID, holder, units(200)), nil)
	d.supplyRepo.EXPECT().GetForUpdate(ctx, tx, vaultID).Return(&domain.SupplyState{
		VaultID:     vaultID,
		TotalSupply: units(10000),
	}, nil)
	d.valuation.EXPECT().Recompute(ctx, vaultID).Return(&domain.ValuationState{
		UnitaryValue: units(1),
	}, nil)
	// Base custody is short; the active alternate asset covers it instead.
	d.custody.EXPECT().Balance(ctx, vaultID, baseUSD).Return(units(10), nil)
	d.assetRepo.EXPECT().IsActive(ctx, vaultID, asset).Return(true, nil)
	d.prices.EXPECT().ConvertFromBase(ctx, vaultID, asset, decimalEq(units(100))).Return(units(90), nil)
	d.ledgerRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil)
	d.supplyRepo.EXPECT().Update(ctx, tx, gomock.Any()).Return(nil)
	d.custody.EXPECT().Forward(ctx, vaultID, holder, asset, decimalEq(units(90))).Return(nil)

	result, err := d.svc.BurnForAsset(ctx, ports.BurnRequest{
		VaultID:  vaultID,
		HolderID: holder,
		AmountIn: units(100),
		Asset:    asset,
	})
	require.NoError(t, err)
	assert.True(t, result.Payout.Equal(units(90)))
	assert.Equal(t, asset, result.PayoutAsset)
}
