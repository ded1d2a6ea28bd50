package middleware

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/internal/service"
	"pooled-asset-vault/pkg/apperror"
	"pooled-asset-vault/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Context keys
	CtxOperatorID    = "operator_id"
	CtxRole          = "role"
	CtxSourceReplica = "source_replica"
)

// TransportConfig carries the replica-transport trust parameters.
type TransportConfig struct {
	Secret   string
	Peers    map[string]string
	MaxSkew  time.Duration
	NonceTTL time.Duration
}

// TransportAuth verifies HMAC-SHA256 signed requests from peer replicas.
// Pipeline: check source is a known peer -> check timestamp -> check nonce
// -> verify signature. Authenticated requests act with the transport role.
func TransportAuth(
	cfg TransportConfig,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.GetHeader(service.HeaderReplicaSource)
		signature := c.GetHeader(service.HeaderReplicaSignature)
		timestampStr := c.GetHeader(service.HeaderReplicaTimestamp)
		nonce := c.GetHeader(service.HeaderReplicaNonce)

		if source == "" || signature == "" || timestampStr == "" || nonce == "" {
			response.Error(c, apperror.ErrInvalidReplicaKey())
			c.Abort()
			return
		}

		if _, known := cfg.Peers[source]; !known {
			response.Error(c, apperror.ErrInvalidReplicaKey())
			c.Abort()
			return
		}

		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}
		now := time.Now().Unix()
		if math.Abs(float64(now-timestamp)) > cfg.MaxSkew.Seconds() {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}

		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), source, nonce, cfg.NonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			response.Error(c, apperror.ErrNonceUsed())
			c.Abort()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)

		if !sigSvc.Verify(cfg.Secret, canonical, signature) {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxSourceReplica, source)
		c.Set(CtxRole, domain.RoleTransport)

		c.Next()
	}
}

// JWTAuth validates operator bearer tokens for the management routes.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		tokenStr := authHeader[7:]
		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxOperatorID, claims.OperatorID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RequireCapability resolves whether the authenticated role may execute op
// before the handler runs. Identity first, then dispatch.
func RequireCapability(op domain.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(CtxRole)
		if !ok {
			response.Error(c, apperror.ErrCapabilityDenied())
			c.Abort()
			return
		}
		if !domain.MutationPermitted(role.(domain.Role), op) {
			response.Error(c, apperror.ErrCapabilityDenied())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
