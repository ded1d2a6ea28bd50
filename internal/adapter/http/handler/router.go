package handler

import (
	"pooled-asset-vault/internal/adapter/http/middleware"
	redisStore "pooled-asset-vault/internal/adapter/storage/redis"
	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	VaultSvc       ports.VaultService
	MintSvc        ports.MintService
	BurnSvc        ports.BurnService
	SupplySvc      ports.SupplyService
	RecoverySvc    ports.RecoveryService
	ReportingSvc   ports.ReportingService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	Transport      middleware.TransportConfig
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes (operator API) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	vaultHandler := NewVaultHandler(deps.VaultSvc, deps.MintSvc, deps.BurnSvc, deps.SupplySvc)
	recoveryHandler := NewRecoveryHandler(deps.RecoverySvc)
	reportingHandler := NewReportingHandler(deps.ReportingSvc, deps.AuditSvc)

	vaults := v1.Group("/vaults", jwtAuth)
	{
		vaults.POST("", rl("mutations"), middleware.RequireCapability(domain.OpSetParameters), vaultHandler.Create)
		vaults.POST("/:id/mint", rl("mutations"), middleware.RequireCapability(domain.OpMint), vaultHandler.Mint)
		vaults.POST("/:id/burn", rl("mutations"), middleware.RequireCapability(domain.OpBurn), vaultHandler.Burn)
		vaults.POST("/:id/dispatch", rl("mutations"), middleware.RequireCapability(domain.OpDispatch), vaultHandler.Dispatch)
		vaults.POST("/:id/recover", rl("recover"), middleware.RequireCapability(domain.OpRecover), recoveryHandler.Claim)
		vaults.PUT("/:id/parameters", rl("mutations"), middleware.RequireCapability(domain.OpSetParameters), vaultHandler.UpdateParameters)
		vaults.PUT("/:id/lock", rl("mutations"), middleware.RequireCapability(domain.OpSetLock), vaultHandler.SetLock)

		vaults.GET("/:id", rl("reporting"), reportingHandler.GetVault)
		vaults.GET("/:id/parameters", rl("reporting"), reportingHandler.GetParameters)
		vaults.GET("/:id/snapshot", rl("reporting"), middleware.RequireCapability(domain.OpRecompute), reportingHandler.GetSnapshot)
		vaults.GET("/:id/accounts/:holder", rl("reporting"), reportingHandler.GetAccount)
		vaults.GET("/:id/assets", rl("reporting"), reportingHandler.ListAssets)
		vaults.GET("/:id/escrow/:op", rl("reporting"), recoveryHandler.GetEscrow)
	}

	transfers := v1.Group("/transfers", jwtAuth)
	{
		transfers.GET("/:id", rl("reporting"), reportingHandler.GetTransfer)
	}

	if deps.AuditSvc != nil {
		audit := v1.Group("/audit", jwtAuth)
		{
			audit.GET("", rl("reporting"), reportingHandler.ListAuditLogs)
		}
	}

	// --- Transport-authenticated routes (peer replicas) ---
	transportAuth := middleware.TransportAuth(deps.Transport, deps.SigSvc, deps.NonceStore, deps.Logger)
	replicaHandler := NewReplicaHandler(deps.SupplySvc)
	replica := v1.Group("/replica", transportAuth)
	{
		replica.POST("/receive", rl("replica"), middleware.RequireCapability(domain.OpReceive), replicaHandler.Receive)
		replica.POST("/transfers/:id/settle", rl("replica"), middleware.RequireCapability(domain.OpSettle), replicaHandler.Settle)
		replica.POST("/transfers/:id/refunded", rl("replica"), middleware.RequireCapability(domain.OpSettle), replicaHandler.Refunded)
	}

	return r
}
