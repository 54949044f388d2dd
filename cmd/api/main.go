package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cargolink/cargolink-backend/api/routes"
	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/closing"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/integration"
	"github.com/cargolink/cargolink-backend/internal/notifications"
	"github.com/cargolink/cargolink-backend/internal/orders"
	"github.com/cargolink/cargolink-backend/internal/policy"
	"github.com/cargolink/cargolink-backend/internal/settlement"
	gatewaywebhook "github.com/cargolink/cargolink-backend/internal/webhooks/gateway"
	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/gateway"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"github.com/cargolink/cargolink-backend/pkg/migrate"
	"github.com/cargolink/cargolink-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway client", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()

	auditRecorder, err := audit.NewRecorder(audit.NewRepository(gormDB))
	exitOnErr(logg, "audit recorder", err)

	rules, err := policy.RulesFromConfig(cfg.Policy)
	exitOnErr(logg, "policy rules", err)

	policySvc, err := policy.NewService(policy.NewRepository(gormDB), rules)
	exitOnErr(logg, "policy service", err)

	contractsRepo := contracts.NewRepository(gormDB)
	contractsSvc, err := contracts.NewService(contracts.ServiceParams{
		Tx:    dbClient,
		Repo:  contractsRepo,
		Audit: auditRecorder,
	})
	exitOnErr(logg, "contract service", err)

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Tx:        dbClient,
		Repo:      ordersRepo,
		Policies:  policySvc,
		Contracts: contractsRepo,
		Audit:     auditRecorder,
	})
	exitOnErr(logg, "order service", err)

	closingRepo := closing.NewRepository(gormDB)
	policyRepo := policy.NewRepository(gormDB)
	settlementRepo := settlement.NewRepository(gormDB)
	integrationRepo := integration.NewRepository(gormDB)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	exitOnErr(logg, "notification service", err)

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		Tx:        dbClient,
		Repo:      settlementRepo,
		Orders:    ordersRepo,
		Closings:  closingRepo,
		Snapshots: policyRepo,
		Audit:     auditRecorder,
		Notifier:  notificationsSvc,
	})
	exitOnErr(logg, "settlement service", err)

	closingSvc, err := closing.NewService(closing.ServiceParams{
		Tx:          dbClient,
		Repo:        closingRepo,
		Orders:      ordersRepo,
		Snapshots:   policyRepo,
		Settlements: settlementRepo,
		Events:      integrationRepo,
		Audit:       auditRecorder,
		Notifier:    notificationsSvc,
	})
	exitOnErr(logg, "closing service", err)

	webhookSvc, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Events:    integrationRepo,
		Contracts: contractsSvc,
		Logger:    logg,
	})
	exitOnErr(logg, "gateway webhook service", err)

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Idempotency.TTL, "gateway-webhook")
	exitOnErr(logg, "gateway webhook guard", err)

	handler := routes.NewRouter(routes.RouterParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Orders:        ordersSvc,
		Closing:       closingSvc,
		Settlements:   settlementSvc,
		Contracts:     contractsSvc,
		Notifications: notificationsSvc,
		Audit:         auditRecorder,
		Gateway:       gatewayClient,
		Webhook:       webhookSvc,
		WebhookGuard:  webhookGuard,
	})

	addr := ":" + cfg.App.Port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func exitOnErr(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
