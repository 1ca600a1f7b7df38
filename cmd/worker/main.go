package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/stitchline/stitchline/internal/app"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/observability"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/platform/cache"
	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
	"github.com/stitchline/stitchline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	locker := redislock.New(redisClient)
	authz := shared.AllowAll{}

	inventoryService := inventory.NewService(inventory.NewRepository(pool, cfg.DBTxMaxAttempts), authz, logger)
	orderService := orders.NewService(orders.NewRepository(pool, cfg.DBTxMaxAttempts), reservation.NewEngine(), authz, logger)
	paymentService := payments.NewService(payments.NewRepository(pool, cfg.DBTxMaxAttempts), authz, nil, logger)

	alertJob := &jobs.StockAlertJob{
		Levels:  inventoryService,
		Alerts:  jobs.NewSQLAlertStore(pool),
		Locker:  locker,
		Logger:  logger,
		Metrics: metrics.Jobs(),
		LockTTL: cfg.JobLockTTL,
	}
	verifyJob := &jobs.LedgerVerifyJob{
		Fabrics:  inventoryService,
		Orders:   orderService,
		Balances: paymentService,
		Locker:   locker,
		Logger:   logger,
		Metrics:  metrics.Jobs(),
		LockTTL:  cfg.JobLockTTL,
	}

	now := time.Now().UTC()
	alertTask, err := jobs.NewStockAlertScanTask(now)
	if err != nil {
		logger.Error("build stock alert task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewLedgerVerifyTask(now)
	if err != nil {
		logger.Error("build ledger verify task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAlertScan, Handler: alertJob.Handle},
			{Type: jobs.TaskLedgerVerify, Handler: verifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockAlertCron, Task: alertTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LedgerVerifyCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
