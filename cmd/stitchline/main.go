package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/stitchline/cmd/stitchline/cli"
	"github.com/stitchline/stitchline/internal/app"
	"github.com/stitchline/stitchline/internal/audit"
	audithttp "github.com/stitchline/stitchline/internal/audit/http"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/observability"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/platform/cache"
	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/procurement"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
	"github.com/stitchline/stitchline/jobs"
)

const usage = `usage: stitchline [command]

commands:
  serve                  run the HTTP API (default)
  migrate                apply database migrations and exit
  jobs trigger <task>    enqueue inventory:stock-alerts or ledger:verify
  jobs stats             print queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg)
	case "jobs":
		err = runJobs(ctx, cfg, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg *app.Config) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: subcommand required")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs trigger: task name required")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-14s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()
	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	idempotency := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	handlers := buildHandlers(dbpool, cfg, logger, metrics, rbacService, rbacMiddleware, idempotency, jobs.NewOrderNotifier(jobClient))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		RBACHandler:        rbac.NewHandler(rbacService, rbacMiddleware),
		InventoryHandler:   handlers.inventory,
		PatternHandler:     handlers.patterns,
		OrderHandler:       handlers.orders,
		PaymentHandler:     handlers.payments,
		ProcurementHandler: handlers.procurement,
		AuditHandler:       handlers.audit,
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

type moduleHandlers struct {
	inventory   *inventory.Handler
	patterns    *reservation.Handler
	orders      *orders.Handler
	payments    *payments.Handler
	procurement *procurement.Handler
	audit       *audithttp.Handler
}

func buildHandlers(
	pool *pgxpool.Pool,
	cfg *app.Config,
	logger *slog.Logger,
	metrics *observability.Metrics,
	authz shared.Authorizer,
	mw rbac.Middleware,
	idempotency shared.Idempotency,
	notifier orders.Notifier,
) moduleHandlers {
	attempts := cfg.DBTxMaxAttempts

	inventoryService := inventory.NewService(inventory.NewRepository(pool, attempts), authz, logger)
	inventoryService.UseObserver(metrics)

	patternService := reservation.NewService(reservation.NewRepository(pool), authz, logger)

	orderService := orders.NewService(orders.NewRepository(pool, attempts), reservation.NewEngine(), authz, logger)
	orderService.UseObserver(metrics)
	orderService.UseNotifier(notifier)

	paymentService := payments.NewService(payments.NewRepository(pool, attempts), authz, idempotency, logger)
	paymentService.UseObserver(metrics)

	procurementService := procurement.NewService(procurement.NewRepository(pool, attempts), authz, idempotency, logger)
	procurementService.UseObserver(metrics)

	auditService := audit.NewService(audit.NewSQLRepository(pool))

	return moduleHandlers{
		inventory:   inventory.NewHandler(logger, inventoryService, mw),
		patterns:    reservation.NewHandler(patternService, mw),
		orders:      orders.NewHandler(logger, orderService, mw),
		payments:    payments.NewHandler(logger, paymentService, mw),
		procurement: procurement.NewHandler(logger, procurementService, mw),
		audit:       audithttp.NewHandler(logger, auditService, mw),
	}
}
