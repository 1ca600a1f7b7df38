package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
	jobmetrics "github.com/stitchline/stitchline/internal/jobs"
	"github.com/stitchline/stitchline/internal/shared"
)

// TaskStockAlertScan classifies every fabric and keeps stock_alerts in step.
const TaskStockAlertScan = "inventory:stock-alerts"

// StockAlertPayload carries scheduling metadata.
type StockAlertPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockAlertScanTask constructs the scan task.
func NewStockAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockAlertPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// StockLevelSource lists classified fabrics.
type StockLevelSource interface {
	StockLevels(ctx context.Context) ([]inventory.StockStatus, error)
}

// AlertStore keeps one open alert per fabric.
type AlertStore interface {
	OpenAlert(ctx context.Context, fabricID int64, level inventory.StockLevel, available, minimum decimal.Decimal) error
	ResolveAlert(ctx context.Context, fabricID int64) error
}

// StockAlertResult summarises one scan.
type StockAlertResult struct {
	Scanned  int
	Low      int
	Critical int
	Skipped  bool
}

// StockAlertJob raises and resolves low stock alerts. Only one worker scans at a time.
type StockAlertJob struct {
	Levels  StockLevelSource
	Alerts  AlertStore
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// Handle executes the scan for an asynq task.
func (j *StockAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run performs one scan.
func (j *StockAlertJob) Run(ctx context.Context) (result StockAlertResult, err error) {
	if j == nil || j.Levels == nil || j.Alerts == nil {
		return result, errors.New("stock alerts: job not configured")
	}
	tracker := j.Metrics.Track(TaskStockAlertScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	err = withLock(ctx, j.Locker, shared.StockAlertLockKey(), j.ttl(), func(ctx context.Context) error {
		statuses, err := j.Levels.StockLevels(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			result.Scanned++
			if st.Level == inventory.LevelOK {
				if err := j.Alerts.ResolveAlert(ctx, st.Item.ID); err != nil {
					return err
				}
				continue
			}
			if st.Level == inventory.LevelCritical {
				result.Critical++
			} else {
				result.Low++
			}
			if err := j.Alerts.OpenAlert(ctx, st.Item.ID, st.Level, st.Item.Available(), st.Item.MinimumThreshold); err != nil {
				return err
			}
			logger.Warn("fabric below threshold",
				slog.Int64("fabric_id", st.Item.ID),
				slog.String("code", st.Item.Code),
				slog.String("level", string(st.Level)),
				slog.String("available", st.Item.Available().String()),
				slog.String("minimum", st.Item.MinimumThreshold.String()),
			)
		}
		return nil
	})
	if errors.Is(err, errLockHeld) {
		logger.Info("stock alert scan already running elsewhere")
		return StockAlertResult{Skipped: true}, nil
	}
	if err != nil {
		logger.Error("stock alert scan failed", slog.Any("error", err))
		return result, err
	}
	j.Metrics.SetStockAlerts(string(inventory.LevelLow), result.Low)
	j.Metrics.SetStockAlerts(string(inventory.LevelCritical), result.Critical)
	logger.Info("stock alert scan finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("low", result.Low),
		slog.Int("critical", result.Critical),
	)
	return result, nil
}

func (j *StockAlertJob) ttl() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return time.Minute
}

func (j *StockAlertJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskStockAlertScan))
	}
	return j.Logger.With(slog.String("job", TaskStockAlertScan))
}
