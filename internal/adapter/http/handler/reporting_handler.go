package handler

import (
	"strconv"

	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"
	"pooled-asset-vault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportingHandler handles the read-only vault views.
type ReportingHandler struct {
	reportingSvc ports.ReportingService
	auditSvc     ports.AuditService
}

// NewReportingHandler creates a new ReportingHandler.
func NewReportingHandler(reportingSvc ports.ReportingService, auditSvc ports.AuditService) *ReportingHandler {
	return &ReportingHandler{reportingSvc: reportingSvc, auditSvc: auditSvc}
}

// GetVault handles GET /api/v1/vaults/:id.
func (h *ReportingHandler) GetVault(c *gin.Context) {
	vaultID, ok := vaultParam(c)
	if !ok {
		return
	}

	vault, err := h.reportingSvc.GetVault(c.Request.Context(), vaultID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, vault)
}

// GetParameters handles GET /api/v1/vaults/:id/parameters.
func (h *ReportingHandler) GetParameters(c *gin.Context) {
	vaultID, ok := vaultParam(c)
	if !ok {
		return
	}

	params, err := h.reportingSvc.GetParameters(c.Request.Context(), vaultID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, params)
}

// GetSnapshot handles GET /api/v1/vaults/:id/snapshot. The snapshot is
// recomputed on every call; nothing is cached.
func (h *ReportingHandler) GetSnapshot(c *gin.Context) {
	vaultID, ok := vaultParam(c)
	if !ok {
		return
	}

	snapshot, err := h.reportingSvc.GetSnapshot(c.Request.Context(), vaultID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, snapshot)
}

// GetAccount handles GET /api/v1/vaults/:id/accounts/:holder.
func (h *ReportingHandler) GetAccount(c *gin.Context) {
	vaultID, ok := vaultParam(c)
	if !ok {
		return
	}
	holderID, err := uuid.Parse(c.Param("holder"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid holder id"))
		return
	}

	account, err := h.reportingSvc.GetAccount(c.Request.Context(), vaultID, holderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// ListAssets handles GET /api/v1/vaults/:id/assets.
func (h *ReportingHandler) ListAssets(c *gin.Context) {
	vaultID, ok := vaultParam(c)
	if !ok {
		return
	}

	assets, err := h.reportingSvc.ListAssets(c.Request.Context(), vaultID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, assets)
}

// GetTransfer handles GET /api/v1/transfers/:id.
func (h *ReportingHandler) GetTransfer(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transfer id"))
		return
	}

	transfer, err := h.reportingSvc.GetTransfer(c.Request.Context(), transferID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, transfer)
}

// ListAuditLogs handles GET /api/v1/audit.
func (h *ReportingHandler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var actorID *uuid.UUID
	if a := c.Query("actor_id"); a != "" {
		id, err := uuid.Parse(a)
		if err != nil {
			response.Error(c, apperror.Validation("invalid actor id"))
			return
		}
		actorID = &id
	}

	logs, err := h.auditSvc.List(c.Request.Context(), actorID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"items":  logs,
		"limit":  limit,
		"offset": offset,
	})
}

func vaultParam(c *gin.Context) (uuid.UUID, bool) {
	vaultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return uuid.Nil, false
	}
	return vaultID, true
}
