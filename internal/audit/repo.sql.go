package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLRepository membaca audit_trail dari PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository membuat repository audit.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

const timelineQuery = `SELECT id, occurred_at, COALESCE(order_id, 0), entity, entity_id, COALESCE(actor_id, 0), change_type,
       COALESCE(field_name, ''), COALESCE(old_value, ''), COALESCE(new_value, ''), description
FROM audit_trail
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint = 0 OR order_id = $3)
  AND ($4 = '' OR entity = $4)
  AND ($5::bigint = 0 OR entity_id = $5)
  AND ($6::bigint = 0 OR actor_id = $6)
  AND ($7 = '' OR change_type = $7)
ORDER BY occurred_at DESC, id DESC`

// TimelineWindow mengambil satu halaman timeline.
func (r *SQLRepository) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	args := append(filterArgs(f), limit, offset)
	rows, err := r.pool.Query(ctx, timelineQuery+` LIMIT $8 OFFSET $9`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// TimelineAll mengambil seluruh baris yang cocok.
func (r *SQLRepository) TimelineAll(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineQuery, filterArgs(f)...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func filterArgs(f TimelineFilters) []any {
	return []any{optionalTime(f.From), optionalTime(f.To), f.OrderID, f.Entity, f.EntityID, f.ActorID, f.Action}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		err := row.Scan(&t.ID, &t.At, &t.OrderID, &t.Entity, &t.EntityID, &t.ActorID, &t.Action, &t.Field, &t.OldValue, &t.NewValue, &t.Description)
		return t, err
	})
}
