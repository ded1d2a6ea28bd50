package service

import (
	"context"
	"testing"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recoveryTestDeps struct {
	svc          *RecoveryServiceImpl
	vaultRepo    *mocks.MockVaultRepository
	escrowRepo   *mocks.MockEscrowRepository
	transferRepo *mocks.MockTransferRepository
	supplySvc    *mocks.MockSupplyService
	custody      *mocks.MockCustodyClient
	allowList    *mocks.MockAllowList
	mutex        *mocks.MockMutationLock
	transactor   *mocks.MockDBTransactor
	ctrl         *gomock.Controller
}

func setupRecoveryService(t *testing.T) *recoveryTestDeps {
	ctrl := gomock.NewController(t)
	d := &recoveryTestDeps{
		vaultRepo:    mocks.NewMockVaultRepository(ctrl),
		escrowRepo:   mocks.NewMockEscrowRepository(ctrl),
		transferRepo: mocks.NewMockTransferRepository(ctrl),
		supplySvc:    mocks.NewMockSupplyService(ctrl),
		custody:      mocks.NewMockCustodyClient(ctrl),
		allowList:    mocks.NewMockAllowList(ctrl),
		mutex:        mocks.NewMockMutationLock(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		ctrl:         ctrl,
	}
	d.svc = NewRecoveryService(
		d.vaultRepo, d.escrowRepo, d.transferRepo, d.supplySvc,
		d.custody, d.allowList, d.mutex, d.transactor, zerolog.Nop(),
	)
	return d
}

func refundedTransfer(vaultID uuid.UUID) *domain.ReplicaTransfer {
	return &domain.ReplicaTransfer{
		ID:                 uuid.New(),
		VaultID:            vaultID,
		Destination:        "replica-b",
		Asset:              baseUSD,
		Amount:             units(1000),
		BaseValue:          units(1000),
		Shares:             units(500),
		OriginUnitaryValue: units(2),
		Mode:               domain.TransferModeTransfer,
		Status:             domain.TransferStatusRefunded,
	}
}

func TestRecoveryService_Claim_ReversesDispatchDebit(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	transfer := refundedTransfer(vaultID)
	tx := &mockTx{}
	escrowID := domain.DeriveEscrowID(vaultID, domain.EscrowOpTransfer)

	d.transferRepo.EXPECT().Get(ctx, transfer.ID).Return(transfer, nil)
	d.allowList.EXPECT().IsRecoverable(ctx, vaultID, baseUSD).Return(true, nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetOrCreate(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
			assert.Equal(t, escrowID, account.ID)
			return account, nil
		})
	d.custody.EXPECT().Balance(ctx, escrowID, baseUSD).Return(units(1000), nil)
	d.transferRepo.EXPECT().GetForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)

	var credited ports.ReceiveRequest
	d.supplySvc.EXPECT().CreditReceipt(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *ports.UnitOfWork, req ports.ReceiveRequest) (*ports.ReceiveResult, error) {
			credited = req
			return &ports.ReceiveResult{SharesCredited: units(500)}, nil
		})
	d.transferRepo.EXPECT().UpdateStatus(ctx, tx, transfer.ID, domain.TransferStatusRecovered).Return(nil)

	result, err := d.svc.Claim(ctx, ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transfer.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, escrowID, result.EscrowID)
	assert.True(t, result.AmountForwarded.Equal(units(1000)))
	assert.True(t, result.SharesCredited.Equal(units(500)))

	// The credit replays at the origin unitary value recorded at dispatch,
	// pulling the full refunded escrow balance.
	assert.Equal(t, escrowID, credited.SourceAccount)
	assert.True(t, credited.OriginUnitaryValue.Equal(units(2)))
	assert.True(t, credited.Amount.Equal(units(1000)))
	assert.False(t, credited.RegisterAsset, "claims must not grow the asset registry")
}

func TestRecoveryService_Claim_NativeAssetSkipsAllowList(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	transfer := refundedTransfer(vaultID)
	transfer.Asset = domain.NativeAsset
	tx := &mockTx{}
	escrowID := domain.DeriveEscrowID(vaultID, domain.EscrowOpTransfer)

	d.transferRepo.EXPECT().Get(ctx, transfer.ID).Return(transfer, nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetOrCreate(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
			return account, nil
		})
	d.custody.EXPECT().Balance(ctx, escrowID, domain.NativeAsset).Return(units(10), nil)
	d.transferRepo.EXPECT().GetForUpdate(ctx, tx, transfer.ID).Return(transfer, nil)
	d.supplySvc.EXPECT().CreditReceipt(ctx, gomock.Any(), gomock.Any()).
		Return(&ports.ReceiveResult{SharesCredited: decimal.Zero}, nil)
	d.transferRepo.EXPECT().UpdateStatus(ctx, tx, transfer.ID, domain.TransferStatusRecovered).Return(nil)

	_, err := d.svc.Claim(ctx, ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transfer.ID,
	})
	require.NoError(t, err)
}

func TestRecoveryService_Claim_TransferNotRefunded(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	transfer := refundedTransfer(vaultID)
	transfer.Status = domain.TransferStatusDispatched

	d.transferRepo.EXPECT().Get(ctx, transfer.ID).Return(transfer, nil)

	_, err := d.svc.Claim(ctx, ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transfer.ID,
	})
	assertAppError(t, err, "VLT_017")
}

func TestRecoveryService_Claim_AssetNotAllowlisted(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	transfer := refundedTransfer(vaultID)
	transfer.Asset = domain.AssetID("shitcoin")

	d.transferRepo.EXPECT().Get(ctx, transfer.ID).Return(transfer, nil)
	d.allowList.EXPECT().IsRecoverable(ctx, vaultID, domain.AssetID("shitcoin")).Return(false, nil)

	_, err := d.svc.Claim(ctx, ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transfer.ID,
	})
	assertAppError(t, err, "VLT_010")
}

func TestRecoveryService_Claim_EmptyEscrow(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	transfer := refundedTransfer(vaultID)
	tx := &mockTx{}
	escrowID := domain.DeriveEscrowID(vaultID, domain.EscrowOpTransfer)

	d.transferRepo.EXPECT().Get(ctx, transfer.ID).Return(transfer, nil)
	d.allowList.EXPECT().IsRecoverable(ctx, vaultID, baseUSD).Return(true, nil)
	d.mutex.EXPECT().Acquire(ctx, vaultID, mutationLockTTL).Return(true, nil)
	d.mutex.EXPECT().Release(ctx, vaultID).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetOrCreate(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
			return account, nil
		})
	d.custody.EXPECT().Balance(ctx, escrowID, baseUSD).Return(decimal.Zero, nil)

	_, err := d.svc.Claim(ctx, ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transfer.ID,
	})
	assertAppError(t, err, "VLT_015")
}

func TestRecoveryService_EscrowAccountFor_Deterministic(t *testing.T) {
	d := setupRecoveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	vaultID := uuid.New()
	id := domain.DeriveEscrowID(vaultID, domain.EscrowOpTransfer)
	tx := &mockTx{}

	d.vaultRepo.EXPECT().Get(ctx, vaultID).Return(testVault(vaultID), nil).Times(2)
	// First call creates the row, second finds it.
	d.escrowRepo.EXPECT().Get(ctx, id).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetOrCreate(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, account *domain.EscrowAccount) (*domain.EscrowAccount, error) {
			return account, nil
		})

	first, err := d.svc.EscrowAccountFor(ctx, vaultID, domain.EscrowOpTransfer)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)

	d.escrowRepo.EXPECT().Get(ctx, id).Return(first, nil)
	second, err := d.svc.EscrowAccountFor(ctx, vaultID, domain.EscrowOpTransfer)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
