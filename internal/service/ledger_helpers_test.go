package service

import (
	"context"
	"testing"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegisterActiveAsset_CapReached(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	assetRepo := mocks.NewMockAssetRegistryRepository(ctrl)
	prices := mocks.NewMockPriceConverter(ctrl)

	ctx := context.Background()
	vault := testVault(uuid.New())
	asset := domain.AssetID("gbp")
	tx := &mockTx{}

	assetRepo.EXPECT().IsActive(ctx, vault.ID, asset).Return(false, nil)
	prices.EXPECT().HasPriceFeed(ctx, asset).Return(true, nil)
	assetRepo.EXPECT().Count(ctx, vault.ID).Return(int64(domain.ActiveAssetCap), nil)

	err := registerActiveAsset(ctx, tx, assetRepo, prices, vault, asset)
	assertAppError(t, err, "VLT_011")
}

func TestRegisterActiveAsset_LastSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	assetRepo := mocks.NewMockAssetRegistryRepository(ctrl)
	prices := mocks.NewMockPriceConverter(ctrl)

	ctx := context.Background()
	vault := testVault(uuid.New())
	asset := domain.AssetID("gbp")
	tx := &mockTx{}

	assetRepo.EXPECT().IsActive(ctx, vault.ID, asset).Return(false, nil)
	prices.EXPECT().HasPriceFeed(ctx, asset).Return(true, nil)
	assetRepo.EXPECT().Count(ctx, vault.ID).Return(int64(domain.ActiveAssetCap-1), nil)
	assetRepo.EXPECT().Add(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entry *domain.ActiveAsset) error {
			require.Equal(t, vault.ID, entry.VaultID)
			require.Equal(t, asset, entry.Asset)
			return nil
		})

	err := registerActiveAsset(ctx, tx, assetRepo, prices, vault, asset)
	require.NoError(t, err)
}
