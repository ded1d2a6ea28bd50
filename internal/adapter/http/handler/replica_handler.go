package handler

import (
	"pooled-asset-vault/internal/adapter/http/dto"
	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"
	"pooled-asset-vault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReplicaHandler handles the trusted transport endpoints: inbound transfer
// receipts and status callbacks for transfers dispatched from this replica.
type ReplicaHandler struct {
	supplySvc ports.SupplyService
}

// NewReplicaHandler creates a new ReplicaHandler.
func NewReplicaHandler(supplySvc ports.SupplyService) *ReplicaHandler {
	return &ReplicaHandler{supplySvc: supplySvc}
}

// Receive handles POST /api/v1/replica/receive.
func (h *ReplicaHandler) Receive(c *gin.Context) {
	var req dto.ReceiveTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	vaultID, err := uuid.Parse(req.VaultID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return
	}
	transferID, err := uuid.Parse(req.TransferID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return
	}
	sourceAccount, err := uuid.Parse(req.SourceAccount)
	if err != nil {
		response.Error(c, apperror.Validation("invalid source account"))
		return
	}

	result, err := h.supplySvc.Receive(c.Request.Context(), ports.ReceiveRequest{
		VaultID:            vaultID,
		TransferID:         transferID,
		SourceAccount:      sourceAccount,
		Asset:              domain.AssetID(req.Asset),
		Amount:             req.Amount,
		OriginUnitaryValue: req.OriginUnitaryValue,
		Mode:               domain.TransferMode(req.Mode),
		RegisterAsset:      true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Settle handles POST /api/v1/replica/transfers/:id/settle.
func (h *ReplicaHandler) Settle(c *gin.Context) {
	vaultID, transferID, ok := h.statusCallbackIdentity(c)
	if !ok {
		return
	}

	if err := h.supplySvc.Settle(c.Request.Context(), vaultID, transferID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"transfer_id": transferID, "status": domain.TransferStatusSettled})
}

// Refunded handles POST /api/v1/replica/transfers/:id/refunded.
func (h *ReplicaHandler) Refunded(c *gin.Context) {
	vaultID, transferID, ok := h.statusCallbackIdentity(c)
	if !ok {
		return
	}

	if err := h.supplySvc.MarkRefunded(c.Request.Context(), vaultID, transferID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"transfer_id": transferID, "status": domain.TransferStatusRefunded})
}

func (h *ReplicaHandler) statusCallbackIdentity(c *gin.Context) (vaultID, transferID uuid.UUID, ok bool) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return uuid.Nil, uuid.Nil, false
	}

	var req dto.TransferStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return uuid.Nil, uuid.Nil, false
	}
	vaultID, err = uuid.Parse(req.VaultID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return uuid.Nil, uuid.Nil, false
	}
	return vaultID, transferID, true
}
