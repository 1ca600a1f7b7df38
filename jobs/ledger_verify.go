package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/stitchline/stitchline/internal/inventory"
	jobmetrics "github.com/stitchline/stitchline/internal/jobs"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/shared"
)

// TaskLedgerVerify replays every fabric ledger and every order balance.
const TaskLedgerVerify = "ledger:verify"

const orderPageSize = 200

// LedgerVerifyPayload carries scheduling metadata.
type LedgerVerifyPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerVerifyTask constructs the verification task.
func NewLedgerVerifyTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerVerifyPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, body, asynq.Queue(QueueDefault)), nil
}

// FabricVerifier replays fabric ledgers.
type FabricVerifier interface {
	StockLevels(ctx context.Context) ([]inventory.StockStatus, error)
	Verify(ctx context.Context, fabricID int64) (inventory.Verification, error)
}

// OrderSource pages orders newest first.
type OrderSource interface {
	List(ctx context.Context, filter orders.ListFilter) ([]orders.Order, error)
}

// BalanceVerifier recomputes an order balance.
type BalanceVerifier interface {
	Verify(ctx context.Context, orderID int64) (payments.BalanceCheck, error)
}

// LedgerReport lists what disagreed with its ledger.
type LedgerReport struct {
	Fabrics     int
	FabricDrift []int64
	Orders      int
	OrderDrift  []int64
	Skipped     bool
}

// LedgerVerifyJob is the read-only nightly consistency check. It never repairs data.
type LedgerVerifyJob struct {
	Fabrics  FabricVerifier
	Orders   OrderSource
	Balances BalanceVerifier
	Locker   *redislock.Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	LockTTL  time.Duration
}

// Handle executes the verification for an asynq task.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerVerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run performs one verification pass.
func (j *LedgerVerifyJob) Run(ctx context.Context) (report LedgerReport, err error) {
	if j == nil || j.Fabrics == nil {
		return report, errors.New("ledger verify: job not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerVerify)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskLedgerVerify))

	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err = withLock(ctx, j.Locker, shared.LedgerVerifyLockKey(), ttl, func(ctx context.Context) error {
		if err := j.verifyFabrics(ctx, &report); err != nil {
			return err
		}
		return j.verifyOrders(ctx, &report)
	})
	if errors.Is(err, errLockHeld) {
		logger.Info("ledger verification already running elsewhere")
		return LedgerReport{Skipped: true}, nil
	}
	if err != nil {
		logger.Error("ledger verification failed", slog.Any("error", err))
		return report, err
	}
	j.Metrics.SetDrift("fabric", len(report.FabricDrift))
	j.Metrics.SetDrift("order", len(report.OrderDrift))
	level := slog.LevelInfo
	if len(report.FabricDrift)+len(report.OrderDrift) > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "ledger verification finished",
		slog.Int("fabrics", report.Fabrics),
		slog.Any("fabric_drift", report.FabricDrift),
		slog.Int("orders", report.Orders),
		slog.Any("order_drift", report.OrderDrift),
	)
	return report, nil
}

func (j *LedgerVerifyJob) verifyFabrics(ctx context.Context, report *LedgerReport) error {
	statuses, err := j.Fabrics.StockLevels(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		v, err := j.Fabrics.Verify(ctx, st.Item.ID)
		if err != nil {
			return err
		}
		report.Fabrics++
		if !v.Consistent() {
			report.FabricDrift = append(report.FabricDrift, st.Item.ID)
		}
	}
	return nil
}

func (j *LedgerVerifyJob) verifyOrders(ctx context.Context, report *LedgerReport) error {
	if j.Orders == nil || j.Balances == nil {
		return nil
	}
	var before int64
	for {
		page, err := j.Orders.List(ctx, orders.ListFilter{BeforeID: before, Limit: orderPageSize})
		if err != nil {
			return err
		}
		for _, o := range page {
			check, err := j.Balances.Verify(ctx, o.ID)
			if err != nil {
				return err
			}
			report.Orders++
			if !check.Consistent() {
				report.OrderDrift = append(report.OrderDrift, o.ID)
			}
			before = o.ID
		}
		if len(page) < orderPageSize {
			return nil
		}
	}
}
