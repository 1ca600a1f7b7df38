package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/shared"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository constructs Repository. maxAttempts bounds serialization retries.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

// SQLTx implements TxRepository on a pgx transaction. Other modules embed it to share
// the ledger inside their own transactions.
type SQLTx struct {
	tx pgx.Tx
}

// NewSQLTx wraps tx.
func NewSQLTx(tx pgx.Tx) *SQLTx {
	return &SQLTx{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction, retrying on conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.RunTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, NewSQLTx(tx))
	})
}

const fabricColumns = `id, code, name, unit, on_hand, reserved, minimum_threshold, unit_price, total_purchased, created_at, updated_at`

func scanFabric(row pgx.Row) (FabricItem, error) {
	var f FabricItem
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Unit, &f.OnHand, &f.Reserved, &f.MinimumThreshold, &f.UnitPrice, &f.TotalPurchased, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FabricItem{}, shared.NotFoundf("fabric not found")
	}
	return f, err
}

const movementColumns = `id, fabric_id, movement_type, quantity, balance_after, reserved_delta, reserved_after, COALESCE(order_id, 0), notes, COALESCE(actor_id, 0), created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var typ string
	err := row.Scan(&m.ID, &m.FabricID, &typ, &m.Quantity, &m.BalanceAfter, &m.ReservedDelta, &m.ReservedAfter, &m.OrderID, &m.Notes, &m.ActorID, &m.CreatedAt)
	m.Type = MovementType(typ)
	return m, err
}

// GetFabric loads one item.
func (r *Repository) GetFabric(ctx context.Context, id int64) (FabricItem, error) {
	return scanFabric(r.pool.QueryRow(ctx, `SELECT `+fabricColumns+` FROM fabrics WHERE id=$1`, id))
}

// ListFabrics returns every item ordered by name.
func (r *Repository) ListFabrics(ctx context.Context) ([]FabricItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fabricColumns+` FROM fabrics ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []FabricItem{}
	for rows.Next() {
		item, err := scanFabric(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListMovements pages movements newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+`
FROM stock_movements
WHERE fabric_id=$1 AND ($2::bigint = 0 OR id < $2)
ORDER BY id DESC
LIMIT $3`, filter.FabricID, filter.BeforeID, filter.Limit)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// AllMovements returns the full ledger of an item oldest first.
func (r *Repository) AllMovements(ctx context.Context, fabricID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE fabric_id=$1 ORDER BY id ASC`, fabricID)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *SQLTx) InsertFabric(ctx context.Context, item FabricItem) (FabricItem, error) {
	created, err := scanFabric(t.tx.QueryRow(ctx, `INSERT INTO fabrics (code, name, unit, minimum_threshold, unit_price)
VALUES ($1,$2,$3,$4,$5) RETURNING `+fabricColumns, item.Code, item.Name, item.Unit, item.MinimumThreshold, item.UnitPrice))
	if db.IsUniqueViolation(err) {
		return FabricItem{}, shared.Validationf("inventory: fabric code %s already exists", item.Code)
	}
	return created, err
}

func (t *SQLTx) LockFabric(ctx context.Context, id int64) (FabricItem, error) {
	return scanFabric(t.tx.QueryRow(ctx, `SELECT `+fabricColumns+` FROM fabrics WHERE id=$1 FOR UPDATE`, id))
}

func (t *SQLTx) LastMovement(ctx context.Context, fabricID int64) (Movement, error) {
	m, err := scanMovement(t.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE fabric_id=$1 ORDER BY id DESC LIMIT 1`, fabricID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrNoMovements
	}
	return m, err
}

func (t *SQLTx) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_movements (fabric_id, movement_type, quantity, balance_after, reserved_delta, reserved_after, order_id, notes, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,clock_timestamp()) RETURNING id, created_at`,
		m.FabricID, string(m.Type), m.Quantity, m.BalanceAfter, m.ReservedDelta, m.ReservedAfter, nullID(m.OrderID), m.Notes, nullID(m.ActorID)).Scan(&m.ID, &m.CreatedAt)
	return m, err
}

func (t *SQLTx) UpdateFabricCounters(ctx context.Context, id int64, onHand, reserved, purchasedDelta decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE fabrics SET on_hand=$2, reserved=$3, total_purchased=total_purchased+$4, updated_at=NOW() WHERE id=$1`, id, onHand, reserved, purchasedDelta)
	return err
}

func (t *SQLTx) InsertAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, t.tx, rec)
}

func nullID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
