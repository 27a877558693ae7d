package main

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/banksync/backend/internal/client"
	"github.com/banksync/backend/internal/config"
	"github.com/banksync/backend/internal/db"
	"github.com/banksync/backend/internal/handler"
	"github.com/banksync/backend/internal/service"
)

func main() {
	// .env가 없으면 프로세스 환경변수만 사용
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] No .env file loaded: %v", err)
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("[Main] Failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	pg := db.NewPostgres(pool)

	if err := pg.EnsureAuthSchema(ctx); err != nil {
		log.Fatalf("[Main] Failed to ensure auth schema: %v", err)
	}
	if err := pg.EnsureConnectionSchema(ctx); err != nil {
		log.Fatalf("[Main] Failed to ensure connection schema: %v", err)
	}
	if err := pg.EnsureTransactionSchema(ctx); err != nil {
		log.Fatalf("[Main] Failed to ensure transaction schema: %v", err)
	}

	authService, err := service.NewAuthService(pg, cfg.Auth)
	if err != nil {
		log.Fatalf("[Main] Failed to init auth service: %v", err)
	}

	var validator service.TokenValidator
	switch cfg.Auth.Validator {
	case "oidc":
		oidcValidator, err := client.NewOIDCValidator(ctx, cfg.Auth)
		if err != nil {
			log.Fatalf("[Main] Failed to init oidc validator: %v", err)
		}
		validator = oidcValidator
	default:
		validator = service.NewJWTTokenValidator(authService)
	}

	guard, err := service.NewAuthGuard(cfg.RateLimit, validator)
	if err != nil {
		log.Fatalf("[Main] Failed to init auth guard: %v", err)
	}

	store, err := service.NewIdempotencyStore(cfg.Idempotency, cfg.Redis, service.IdempotencyDeps{Postgres: pg})
	if err != nil {
		log.Fatalf("[Main] Failed to init idempotency store: %v", err)
	}
	defer store.Close(ctx)

	if pgStore, ok := store.(*db.WebhookEventStore); ok {
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("[Main] Failed to ensure webhook event schema: %v", err)
		}
	}

	providerClient := client.NewProviderClient(cfg.Provider)
	if !providerClient.IsConfigured() {
		log.Printf("[Main] Bank provider credentials not set; sync calls will fail until configured")
	}

	syncService := service.NewSyncService(providerClient, pg, store)
	connectionService := service.NewConnectionService(providerClient, pg)

	authHandler := handler.NewAuthHandler(authService)
	webhookHandler := handler.NewWebhookHandler(syncService)
	syncHandler := handler.NewSyncHandler(connectionService, syncService, authService)

	// 만료된 idempotency 엔트리 정리 스케줄러
	go runPruneLoop(ctx, store, cfg.Idempotency.PruneInterval)

	router := gin.Default()

	allowCredentials, _ := strconv.ParseBool(cfg.Server.AllowCredentials)
	if origins := strings.Split(cfg.Server.AllowedOrigins, ","); cfg.Server.AllowedOrigins != "" {
		router.Use(handler.CORSMiddleware(origins, allowCredentials))
	}

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)

	// provider가 직접 호출하는 엔드포인트 (guard 미적용, 이벤트 키로 중복 억제)
	router.POST("/webhooks/bank", webhookHandler.ReceiveWebhook)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/config", authHandler.Config)
		auth.GET("/me", handler.BankSyncGuard(guard), authHandler.Me)
	}

	api := router.Group("/api/v1")
	api.Use(handler.BankSyncGuard(guard))
	{
		api.POST("/connections", syncHandler.CreateConnection)
		api.GET("/connections", syncHandler.ListConnections)
		api.GET("/connections/:id/accounts", syncHandler.ListAccounts)
		api.POST("/connections/:id/sync", syncHandler.TriggerSync)
	}

	log.Printf("[Main] Starting server on %s", cfg.Server.Addr)
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("[Main] Server stopped: %v", err)
	}
}

// runPruneLoop - IDEMPOTENCY_PRUNE_INTERVAL 주기로 만료 엔트리를 제거한다.
// 읽기/쓰기 경로는 엔트리를 지우지 않으므로 이 루프가 유일한 정리 지점이다.
func runPruneLoop(ctx context.Context, store service.IdempotencyStore, interval string) {
	every, err := time.ParseDuration(interval)
	if err != nil || every <= 0 {
		log.Printf("[Main] Invalid IDEMPOTENCY_PRUNE_INTERVAL %q, pruning disabled", interval)
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := store.PruneExpired(ctx)
		if err != nil {
			log.Printf("[Main] Failed to prune idempotency entries: %v", err)
			continue
		}
		if removed > 0 {
			log.Printf("[Main] Pruned %d expired idempotency entries", removed)
		}
	}
}
