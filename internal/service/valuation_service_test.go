package service

import (
	"context"
	"testing"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type valuationTestDeps struct {
	svc        *ValuationServiceImpl
	vaultRepo  *mocks.MockVaultRepository
	supplyRepo *mocks.MockSupplyRepository
	assetRepo  *mocks.MockAssetRegistryRepository
	custody    *mocks.MockCustodyClient
	prices     *mocks.MockPriceConverter
	ctrl       *gomock.Controller
}

func setupValuationService(t *testing.T) *valuationTestDeps {
	ctrl := gomock.NewController(t)
	d := &valuationTestDeps{
		vaultRepo:  mocks.NewMockVaultRepository(ctrl),
		supplyRepo: mocks.NewMockSupplyRepository(ctrl),
		assetRepo:  mocks.NewMockAssetRegistryRepository(ctrl),
		custody:    mocks.NewMockCustodyClient(ctrl),
		prices:     mocks.NewMockPriceConverter(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewValuationService(
		d.vaultRepo, d.supplyRepo, d.assetRepo, d.custody, d.prices, zerolog.Nop(),
	)
	return d
}

func TestValuationService_Recompute_MultiAssetSum(t *testing.T) {
	d := setupValuationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	collector := uuid.New()
	eur := domain.AssetID("eur")
	gbp := domain.AssetID("gbp")

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.supplyRepo.EXPECT().Get(ctx, vaultID).Return(&domain.SupplyState{
		VaultID:       vaultID,
		TotalSupply:   units(8000),
		VirtualSupply: units(2000),
	}, nil)
	d.custody.EXPECT().Balance(ctx, vaultID, baseUSD).Return(units(9000), nil)
	d.assetRepo.EXPECT().List(ctx, vaultID).Return([]domain.ActiveAsset{
		{VaultID: vaultID, Asset: eur},
		{VaultID: vaultID, Asset: gbp},
	}, nil)
	d.custody.EXPECT().Balance(ctx, vaultID, eur).Return(units(1000), nil)
	d.prices.EXPECT().ConvertToBase(ctx, vaultID, eur, units(1000)).Return(units(1100), nil)
	// Zero balances never hit the price feed.
	d.custody.EXPECT().Balance(ctx, vaultID, gbp).Return(decimal.Zero, nil)

	state, err := d.svc.Recompute(ctx, vaultID)
	require.NoError(t, err)

	// 10100 of value over 10000 effective shares: NAV 1.01.
	assert.True(t, state.TotalAssetValue.Equal(units(10100)))
	assert.True(t, state.EffectiveSupply.Equal(units(10000)))
	assert.True(t, state.UnitaryValue.Equal(decimal.New(101, 16)), "got %s", state.UnitaryValue)
}

func TestValuationService_Recompute_DustSupply(t *testing.T) {
	d := setupValuationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	collector := uuid.New()

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	// Below the minimum order: 10^18/1000 - 1.
	d.supplyRepo.EXPECT().Get(ctx, vaultID).Return(&domain.SupplyState{
		VaultID:     vaultID,
		TotalSupply: decimal.New(1, 15).Sub(decimal.New(1, 0)),
	}, nil)

	_, err := d.svc.Recompute(ctx, vaultID)
	assertAppError(t, err, "VLT_007")
}

func TestValuationService_Recompute_NonPositiveEffectiveSupply(t *testing.T) {
	d := setupValuationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	collector := uuid.New()

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil)
	d.vaultRepo.EXPECT().GetParameters(ctx, vaultID).Return(testParams(vaultID, collector, 0, 0), nil)
	d.supplyRepo.EXPECT().Get(ctx, vaultID).Return(&domain.SupplyState{
		VaultID:       vaultID,
		TotalSupply:   units(1000),
		VirtualSupply: units(-1500),
	}, nil)
	d.custody.EXPECT().Balance(ctx, vaultID, baseUSD).Return(units(2000), nil)
	d.assetRepo.EXPECT().List(ctx, vaultID).Return(nil, nil)

	state, err := d.svc.Recompute(ctx, vaultID)
	require.NoError(t, err)

	// Effective supply is -500, so the NAV is computed against total supply
	// alone: 2000 / 1000 = 2.0, an understatement by construction.
	assert.True(t, state.EffectiveSupply.Equal(units(-500)))
	assert.True(t, state.UnitaryValue.Equal(units(2)))
}

func TestValuationService_Recompute_VaultNotFound(t *testing.T) {
	d := setupValuationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(nil, nil)

	_, err := d.svc.Recompute(ctx, vaultID)
	assertAppError(t, err, "VLT_014")
}
