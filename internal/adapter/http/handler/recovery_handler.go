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

// RecoveryHandler handles escrow recovery endpoints.
type RecoveryHandler struct {
	recoverySvc ports.RecoveryService
}

// NewRecoveryHandler creates a new RecoveryHandler.
func NewRecoveryHandler(recoverySvc ports.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recoverySvc: recoverySvc}
}

// Claim handles POST /api/v1/vaults/:id/recover.
func (h *RecoveryHandler) Claim(c *gin.Context) {
	vaultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return
	}

	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	transferID, err := uuid.Parse(req.TransferID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return
	}

	result, err := h.recoverySvc.Claim(c.Request.Context(), ports.ClaimRequest{
		VaultID:    vaultID,
		TransferID: transferID,
		Asset:      domain.AssetID(req.Asset),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// GetEscrow handles GET /api/v1/vaults/:id/escrow/:op.
func (h *RecoveryHandler) GetEscrow(c *gin.Context) {
	vaultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return
	}

	op := domain.EscrowOpType(c.Param("op"))
	if op != domain.EscrowOpTransfer && op != domain.EscrowOpSync {
		response.Error(c, apperror.Validation("unknown escrow operation type"))
		return
	}

	account, err := h.recoverySvc.EscrowAccountFor(c.Request.Context(), vaultID, op)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}
