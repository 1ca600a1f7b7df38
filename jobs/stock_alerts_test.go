package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/inventory"
	jobmetrics "github.com/stitchline/stitchline/internal/jobs"
	"github.com/stitchline/stitchline/internal/shared"
	"github.com/stitchline/stitchline/internal/testing/memstore"
	"github.com/stitchline/stitchline/jobs"
)

var operator = shared.Actor{ID: 1, Role: "ADMIN"}

type memAlerts struct {
	open map[int64]inventory.StockLevel
}

func (m *memAlerts) OpenAlert(_ context.Context, fabricID int64, level inventory.StockLevel, _, _ decimal.Decimal) error {
	m.open[fabricID] = level
	return nil
}

func (m *memAlerts) ResolveAlert(_ context.Context, fabricID int64) error {
	delete(m.open, fabricID)
	return nil
}

func newLocker(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client)
}

func seedFabrics(t *testing.T, svc *inventory.Service) map[string]inventory.FabricItem {
	t.Helper()
	out := map[string]inventory.FabricItem{}
	for code, stock := range map[string][2]string{
		"OK":   {"50", "10"},
		"LOW":  {"10.5", "10"},
		"CRIT": {"8", "10"},
	} {
		item, err := svc.CreateFabric(context.Background(), operator, inventory.CreateFabricInput{
			Code: code, Name: code, OpeningStock: decimal.RequireFromString(stock[0]), MinimumThreshold: decimal.RequireFromString(stock[1]),
		})
		require.NoError(t, err)
		out[code] = item
	}
	return out
}

func TestStockAlertJobRaisesAndResolves(t *testing.T) {
	store := memstore.New()
	svc := inventory.NewService(store.Inventory(), nil, nil)
	fabrics := seedFabrics(t, svc)
	alerts := &memAlerts{open: map[int64]inventory.StockLevel{fabrics["OK"].ID: inventory.LevelLow}}

	job := &jobs.StockAlertJob{
		Levels:  svc,
		Alerts:  alerts,
		Locker:  newLocker(t),
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Low)
	assert.Equal(t, 1, res.Critical)
	assert.False(t, res.Skipped)
	assert.Equal(t, map[int64]inventory.StockLevel{
		fabrics["LOW"].ID:  inventory.LevelLow,
		fabrics["CRIT"].ID: inventory.LevelCritical,
	}, alerts.open)

	_, err = svc.AdjustStock(context.Background(), operator, inventory.AdjustInput{
		FabricID: fabrics["CRIT"].ID, Type: inventory.MovementPurchase, Quantity: decimal.RequireFromString("40"),
	})
	require.NoError(t, err)
	res, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Critical)
	assert.NotContains(t, alerts.open, fabrics["CRIT"].ID)
}

func TestStockAlertJobSkipsWhenLocked(t *testing.T) {
	store := memstore.New()
	svc := inventory.NewService(store.Inventory(), nil, nil)
	seedFabrics(t, svc)
	locker := newLocker(t)

	held, err := locker.Obtain(context.Background(), shared.StockAlertLockKey(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Release(context.Background()) })

	alerts := &memAlerts{open: map[int64]inventory.StockLevel{}}
	job := &jobs.StockAlertJob{Levels: svc, Alerts: alerts, Locker: locker}
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, alerts.open)
}

func TestStockAlertJobRequiresDependencies(t *testing.T) {
	_, err := (&jobs.StockAlertJob{}).Run(context.Background())
	assert.Error(t, err)
}
