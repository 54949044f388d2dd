package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/cargolink/cargolink-backend/internal/audit"
	"github.com/cargolink/cargolink-backend/internal/contracts"
	"github.com/cargolink/cargolink-backend/internal/integration"
	"github.com/cargolink/cargolink-backend/internal/notifications"
	"github.com/cargolink/cargolink-backend/pkg/config"
	"github.com/cargolink/cargolink-backend/pkg/db"
	"github.com/cargolink/cargolink-backend/pkg/gateway"
	"github.com/cargolink/cargolink-backend/pkg/instance"
	"github.com/cargolink/cargolink-backend/pkg/logger"
	"github.com/cargolink/cargolink-backend/pkg/metrics"
	"github.com/cargolink/cargolink-backend/pkg/migrate"
	"github.com/cargolink/cargolink-backend/pkg/pubsub"
	"github.com/cargolink/cargolink-backend/pkg/redis"
)

const lockKeyFormat = "reconcile:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconcile-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "reconcile-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway client", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

	closeAll := func() {
		err := multierr.Combine(
			pubsubClient.Close(),
			redisClient.Close(),
			dbClient.Close(),
		)
		if err != nil {
			logg.Error(context.Background(), "error closing worker resources", err)
		}
	}
	defer closeAll()

	gormDB := dbClient.DB()

	auditRecorder, err := audit.NewRecorder(audit.NewRepository(gormDB))
	exitOnErr(logg, "audit recorder", err)

	contractsSvc, err := contracts.NewService(contracts.ServiceParams{
		Tx:    dbClient,
		Repo:  contracts.NewRepository(gormDB),
		Audit: auditRecorder,
	})
	exitOnErr(logg, "contract service", err)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	exitOnErr(logg, "notification service", err)

	gatewayHandler, err := integration.NewGatewayPaymentHandler(gatewayClient, contractsSvc)
	exitOnErr(logg, "gateway payment handler", err)

	notifyHandler, err := integration.NewNotifyPublishHandler(pubsubClient)
	exitOnErr(logg, "notify publish handler", err)

	registry, err := integration.NewRegistry(gatewayHandler, notifyHandler)
	exitOnErr(logg, "handler registry", err)

	lock, err := integration.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Reconcile.LockTTL)
	exitOnErr(logg, "cycle lock", err)

	worker, err := integration.NewWorker(integration.WorkerParams{
		Tx:            dbClient,
		Repo:          integration.NewRepository(gormDB),
		Registry:      registry,
		Lock:          lock,
		Notifications: notificationsSvc,
		Metrics:       metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
		Config:        cfg.Reconcile,
		InstanceID:    instance.GetID(),
	})
	exitOnErr(logg, "reconcile worker", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting reconcile worker")

	metricsServer := startMetricsServer(ctx, cfg.App.Port, logg)
	defer func() {
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconcile worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reconcile worker shutting down gracefully")
}

// startMetricsServer exposes /metrics on the configured port so the scraper
// can reach worker counters.
func startMetricsServer(ctx context.Context, port string, logg *logger.Logger) *http.Server {
	if port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	return server
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func exitOnErr(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
