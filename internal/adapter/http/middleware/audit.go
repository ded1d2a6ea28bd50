package middleware

import (
	"encoding/json"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations. It maps route templates to audit actions.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actorID *uuid.UUID
		if oid, exists := c.Get(CtxOperatorID); exists {
			if id, ok := oid.(uuid.UUID); ok {
				actorID = &id
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Record(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/auth/login" && method == "POST":
		return domain.AuditActionLogin, "session"
	case route == "/api/v1/vaults/:id/mint" && method == "POST":
		return domain.AuditActionMint, "vault"
	case route == "/api/v1/vaults/:id/burn" && method == "POST":
		return domain.AuditActionBurn, "vault"
	case route == "/api/v1/vaults/:id/dispatch" && method == "POST":
		return domain.AuditActionDispatch, "transfer"
	case route == "/api/v1/vaults/:id/recover" && method == "POST":
		return domain.AuditActionRecover, "escrow"
	case route == "/api/v1/vaults/:id/parameters" && method == "PUT":
		return domain.AuditActionSetParameters, "vault"
	case route == "/api/v1/vaults/:id/lock" && method == "PUT":
		return domain.AuditActionSetLock, "vault"
	case route == "/api/v1/replica/receive" && method == "POST":
		return domain.AuditActionReceive, "transfer"
	}
	return "", ""
}
