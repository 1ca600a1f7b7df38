package jobs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
)

// SQLAlertStore persists alerts in stock_alerts.
type SQLAlertStore struct {
	pool *pgxpool.Pool
}

// NewSQLAlertStore constructs SQLAlertStore.
func NewSQLAlertStore(pool *pgxpool.Pool) *SQLAlertStore {
	return &SQLAlertStore{pool: pool}
}

// OpenAlert raises an alert or refreshes the open one.
func (s *SQLAlertStore) OpenAlert(ctx context.Context, fabricID int64, level inventory.StockLevel, available, minimum decimal.Decimal) error {
	if s == nil || s.pool == nil {
		return errors.New("jobs: alert store not initialised")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO stock_alerts (fabric_id, level, available, minimum)
VALUES ($1,$2,$3,$4)
ON CONFLICT (fabric_id) WHERE resolved_at IS NULL
DO UPDATE SET level = EXCLUDED.level, available = EXCLUDED.available, minimum = EXCLUDED.minimum`,
		fabricID, string(level), available, minimum)
	return err
}

// ResolveAlert closes the open alert of a fabric, if any.
func (s *SQLAlertStore) ResolveAlert(ctx context.Context, fabricID int64) error {
	if s == nil || s.pool == nil {
		return errors.New("jobs: alert store not initialised")
	}
	_, err := s.pool.Exec(ctx, `UPDATE stock_alerts SET resolved_at = NOW() WHERE fabric_id = $1 AND resolved_at IS NULL`, fabricID)
	return err
}
