package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/shared"
)

const patternColumns = `id, name, base_meters, slim_adjustment, regular_adjustment, large_adjustment, xl_adjustment, created_at`

func scanPattern(row pgx.Row) (Pattern, error) {
	var p Pattern
	err := row.Scan(&p.ID, &p.Name, &p.BaseMeters, &p.SlimAdjustment, &p.RegularAdjustment, &p.LargeAdjustment, &p.XLAdjustment, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pattern{}, shared.NotFoundf("pattern not found")
	}
	return p, err
}

// QueryPattern loads a pattern through any pgx querier, pool or transaction.
func QueryPattern(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, id int64) (Pattern, error) {
	return scanPattern(q.QueryRow(ctx, `SELECT `+patternColumns+` FROM patterns WHERE id=$1`, id))
}

// Repository stores patterns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPattern stores p.
func (r *Repository) InsertPattern(ctx context.Context, p Pattern) (Pattern, error) {
	return scanPattern(r.pool.QueryRow(ctx, `INSERT INTO patterns (name, base_meters, slim_adjustment, regular_adjustment, large_adjustment, xl_adjustment)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+patternColumns,
		p.Name, p.BaseMeters, p.SlimAdjustment, p.RegularAdjustment, p.LargeAdjustment, p.XLAdjustment))
}

// FindPattern loads one pattern.
func (r *Repository) FindPattern(ctx context.Context, id int64) (Pattern, error) {
	return QueryPattern(ctx, r.pool, id)
}

// ListPatterns returns patterns by name.
func (r *Repository) ListPatterns(ctx context.Context) ([]Pattern, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+patternColumns+` FROM patterns ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Pattern{}
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SQLTx extends the ledger transaction with pattern lookups.
type SQLTx struct {
	*inventory.SQLTx
	tx pgx.Tx
}

// NewSQLTx wraps tx.
func NewSQLTx(tx pgx.Tx) *SQLTx {
	return &SQLTx{SQLTx: inventory.NewSQLTx(tx), tx: tx}
}

// GetPattern loads a pattern inside the transaction.
func (t *SQLTx) GetPattern(ctx context.Context, id int64) (Pattern, error) {
	return QueryPattern(ctx, t.tx, id)
}
