package handler

import (
	"time"

	"pooled-asset-vault/internal/adapter/http/dto"
	"pooled-asset-vault/internal/adapter/http/middleware"
	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/pkg/apperror"
	"pooled-asset-vault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VaultHandler handles vault lifecycle and share mutation endpoints.
type VaultHandler struct {
	vaultSvc  ports.VaultService
	mintSvc   ports.MintService
	burnSvc   ports.BurnService
	supplySvc ports.SupplyService
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(
	vaultSvc ports.VaultService,
	mintSvc ports.MintService,
	burnSvc ports.BurnService,
	supplySvc ports.SupplyService,
) *VaultHandler {
	return &VaultHandler{
		vaultSvc:  vaultSvc,
		mintSvc:   mintSvc,
		burnSvc:   burnSvc,
		supplySvc: supplySvc,
	}
}

// Create handles POST /api/v1/vaults.
func (h *VaultHandler) Create(c *gin.Context) {
	var req dto.CreateVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid owner id"))
		return
	}

	params, err := paramsFromPayload(req.Params)
	if err != nil {
		response.Error(c, err)
		return
	}

	vault, err := h.vaultSvc.Create(c.Request.Context(), ports.CreateVaultRequest{
		Name:      req.Name,
		Symbol:    req.Symbol,
		Decimals:  req.Decimals,
		OwnerID:   ownerID,
		BaseAsset: domain.AssetID(req.BaseAsset),
		Params:    *params,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, vault)
}

// Mint handles POST /api/v1/vaults/:id/mint.
func (h *VaultHandler) Mint(c *gin.Context) {
	vaultID, operatorID, ok := mutationIdentity(c)
	if !ok {
		return
	}

	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		response.Error(c, apperror.ErrInvalidRecipient())
		return
	}

	mintReq := ports.MintRequest{
		VaultID:      vaultID,
		CallerID:     operatorID,
		Recipient:    recipient,
		AmountIn:     dto.Amount(req.Amount),
		MinSharesOut: dto.Amount(req.MinSharesOut),
		Asset:        domain.AssetID(req.Asset),
		ClientIP:     c.ClientIP(),
	}

	var result *ports.MintResult
	if req.Asset != "" {
		result, err = h.mintSvc.MintWithAsset(c.Request.Context(), mintReq)
	} else {
		result, err = h.mintSvc.Mint(c.Request.Context(), mintReq)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Burn handles POST /api/v1/vaults/:id/burn.
func (h *VaultHandler) Burn(c *gin.Context) {
	vaultID, _, ok := mutationIdentity(c)
	if !ok {
		return
	}

	var req dto.BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	holderID, err := uuid.Parse(req.Holder)
	if err != nil {
		response.Error(c, apperror.Validation("invalid holder id"))
		return
	}

	burnReq := ports.BurnRequest{
		VaultID:   vaultID,
		HolderID:  holderID,
		AmountIn:  dto.Amount(req.Amount),
		MinPayout: dto.Amount(req.MinPayout),
		Asset:     domain.AssetID(req.Asset),
		ClientIP:  c.ClientIP(),
	}

	var result *ports.BurnResult
	if req.Asset != "" {
		result, err = h.burnSvc.BurnForAsset(c.Request.Context(), burnReq)
	} else {
		result, err = h.burnSvc.Burn(c.Request.Context(), burnReq)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// Dispatch handles POST /api/v1/vaults/:id/dispatch.
func (h *VaultHandler) Dispatch(c *gin.Context) {
	vaultID, _, ok := mutationIdentity(c)
	if !ok {
		return
	}

	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	transfer, err := h.supplySvc.Dispatch(c.Request.Context(), ports.DispatchRequest{
		VaultID:     vaultID,
		Asset:       domain.AssetID(req.Asset),
		Amount:      dto.Amount(req.Amount),
		Mode:        domain.TransferMode(req.Mode),
		Destination: req.Destination,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, transfer)
}

// UpdateParameters handles PUT /api/v1/vaults/:id/parameters.
func (h *VaultHandler) UpdateParameters(c *gin.Context) {
	vaultID, operatorID, ok := mutationIdentity(c)
	if !ok {
		return
	}

	var req dto.VaultParamsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	params, err := paramsFromPayload(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	params.VaultID = vaultID

	if err := h.vaultSvc.UpdateParameters(c.Request.Context(), operatorID, params); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, params)
}

// SetLock handles PUT /api/v1/vaults/:id/lock.
func (h *VaultHandler) SetLock(c *gin.Context) {
	vaultID, operatorID, ok := mutationIdentity(c)
	if !ok {
		return
	}

	var req dto.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.vaultSvc.SetLocked(c.Request.Context(), operatorID, vaultID, *req.Locked); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"vault_id": vaultID, "locked": *req.Locked})
}

// mutationIdentity extracts the vault path param and the authenticated
// operator. Writes the error response itself on failure.
func mutationIdentity(c *gin.Context) (vaultID, operatorID uuid.UUID, ok bool) {
	vaultID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid vault id"))
		return uuid.Nil, uuid.Nil, false
	}
	oid, exists := c.Get(middleware.CtxOperatorID)
	if !exists {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, uuid.Nil, false
	}
	return vaultID, oid.(uuid.UUID), true
}

func paramsFromPayload(p dto.VaultParamsPayload) (*domain.VaultParameters, error) {
	feeCollector, err := uuid.Parse(p.FeeCollector)
	if err != nil {
		return nil, apperror.Validation("invalid fee collector")
	}
	return &domain.VaultParameters{
		MinHoldPeriod:       time.Duration(p.MinHoldPeriodSeconds) * time.Second,
		SpreadBps:           p.SpreadBps,
		FeeBps:              p.FeeBps,
		FeeCollector:        feeCollector,
		AllowlistProvider:   p.AllowlistProvider,
		MinimumOrderDivisor: p.MinimumOrderDivisor,
	}, nil
}
