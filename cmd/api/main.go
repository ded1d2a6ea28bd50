package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pooled-asset-vault/config"
	"pooled-asset-vault/internal/adapter/collab"
	httpHandler "pooled-asset-vault/internal/adapter/http/handler"
	"pooled-asset-vault/internal/adapter/http/middleware"
	pgStorage "pooled-asset-vault/internal/adapter/storage/postgres"
	redisStorage "pooled-asset-vault/internal/adapter/storage/redis"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/internal/service"
	"pooled-asset-vault/migrations"
	"pooled-asset-vault/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("replica", cfg.Transport.ReplicaID).
		Int("port", cfg.Server.Port).
		Msg("Starting Pooled Asset Vault replica")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Apply schema migrations
	migrationDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open migration connection")
	}
	if err := migrations.Migrate(migrationDB); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	_ = migrationDB.Close()
	log.Info().Msg("Schema migrations applied")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	vaultRepo := pgStorage.NewVaultRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	supplyRepo := pgStorage.NewSupplyRepo(pool)
	assetRepo := pgStorage.NewAssetRegistryRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	escrowRepo := pgStorage.NewEscrowRepo(pool)
	receiptRepo := pgStorage.NewReceiptRepo(pool)
	operatorRepo := pgStorage.NewOperatorRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	receiptCache := redisStorage.NewReceiptCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	mutationLock := redisStorage.NewMutationLock(rdb)

	// Initialize external collaborator clients
	collabHTTP := &http.Client{Timeout: cfg.Collaborators.Timeout}
	custodyClient := collab.NewCustodyClient(cfg.Collaborators.CustodyURL, collabHTTP)
	priceClient := collab.NewPriceClient(cfg.Collaborators.PriceURL, collabHTTP)
	allowListClient := collab.NewAllowListClient(cfg.Collaborators.AllowListURL, collabHTTP)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	dispatchClient := service.NewDispatchClient(
		cfg.Transport.ReplicaID,
		cfg.Transport.Secret,
		cfg.Transport.Peers,
		sigSvc,
		&http.Client{Timeout: 30 * time.Second},
		log,
	)

	// Initialize business services
	authSvc := service.NewAuthService(operatorRepo, hashSvc, tokenSvc)
	valuationSvc := service.NewValuationService(vaultRepo, supplyRepo, assetRepo, custodyClient, priceClient, log)
	mintSvc := service.NewMintService(
		vaultRepo, ledgerRepo, supplyRepo, assetRepo,
		valuationSvc, custodyClient, priceClient, allowListClient,
		mutationLock, transactor, log,
	)
	burnSvc := service.NewBurnService(
		vaultRepo, ledgerRepo, supplyRepo, assetRepo,
		valuationSvc, custodyClient, priceClient,
		mutationLock, transactor, log,
	)
	supplySvc := service.NewSupplyService(
		vaultRepo, supplyRepo, assetRepo, transferRepo, receiptRepo, receiptCache,
		valuationSvc, custodyClient, priceClient, dispatchClient,
		mutationLock, transactor, cfg.Transport.ReplicaID, log,
	)
	recoverySvc := service.NewRecoveryService(
		vaultRepo, escrowRepo, transferRepo, supplySvc,
		custodyClient, allowListClient,
		mutationLock, transactor, log,
	)
	vaultSvc := service.NewVaultService(vaultRepo, supplyRepo, transactor, log)
	reportingSvc := service.NewReportingService(vaultRepo, ledgerRepo, assetRepo, transferRepo, valuationSvc)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:      authSvc,
		VaultSvc:     vaultSvc,
		MintSvc:      mintSvc,
		BurnSvc:      burnSvc,
		SupplySvc:    supplySvc,
		RecoverySvc:  recoverySvc,
		ReportingSvc: reportingSvc,
		SigSvc:       sigSvc,
		NonceStore:   nonceStore,
		TokenSvc:     tokenSvc,
		Transport: middleware.TransportConfig{
			Secret:   cfg.Transport.Secret,
			Peers:    cfg.Transport.Peers,
			MaxSkew:  cfg.Transport.MaxSkew,
			NonceTTL: cfg.Transport.NonceTTL,
		},
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
