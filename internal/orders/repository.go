package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

type (
	stockTx   = reservation.SQLTx
	paymentTx = payments.SQLTx
)

// txRepository shares one pgx transaction between the ledger, payments and orders.
type txRepository struct {
	*stockTx
	*paymentTx
	tx pgx.Tx
}

// WithTx runs fn in a retried transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.RunTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{stockTx: reservation.NewSQLTx(tx), paymentTx: payments.NewSQLTx(tx), tx: tx})
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const orderColumns = `id, order_number, customer_id, status, subtotal, cgst, sgst, total_amount, discount, discount_reason,
advance_paid, balance_amount, delivery_date, completed_date, parent_order_id, notes, COALESCE(created_by, 0), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &status, &o.Subtotal, &o.CGST, &o.SGST, &o.TotalAmount, &o.Discount, &o.DiscountReason,
		&o.AdvancePaid, &o.BalanceAmount, &o.DeliveryDate, &o.CompletedDate, &o.ParentOrderID, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.NotFoundf("order not found")
	}
	o.Status = Status(status)
	return o, err
}

const itemColumns = `id, order_id, pattern_id, fabric_id, body_type, quantity, estimated_meters, actual_meters_used, wastage,
fabric_cost, stitching_charge, unit_price, total_price`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var bodyType string
	err := row.Scan(&it.ID, &it.OrderID, &it.PatternID, &it.FabricID, &bodyType, &it.Quantity, &it.EstimatedMeters,
		&it.ActualMetersUsed, &it.Wastage, &it.FabricCost, &it.StitchingCharge, &it.UnitPrice, &it.TotalPrice)
	it.BodyType = reservation.BodyType(bodyType)
	return it, err
}

func loadItems(ctx context.Context, q querier, orderIDs []int64, lock bool) (map[int64][]Item, error) {
	sql := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY id`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(orderIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q querier, id int64, lock bool) (Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Order{}, err
	}
	items, err := loadItems(ctx, q, []int64{id}, lock)
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return o, nil
}

// Get loads an order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// List pages orders newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+`
FROM orders
WHERE ($1 = '' OR status = $1)
  AND ($2::bigint = 0 OR customer_id = $2)
  AND ($3::bigint = 0 OR id < $3)
ORDER BY id DESC
LIMIT $4`, string(filter.Status), filter.CustomerID, filter.BeforeID, filter.Limit)
	if err != nil {
		return nil, err
	}
	out := []Order{}
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := loadItems(ctx, r.pool, ids, false)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
		if out[i].Items == nil {
			out[i].Items = []Item{}
		}
	}
	return out, nil
}

// InsertOrder stores the order and its items. A taken order number yields ErrDuplicateNumber
// without aborting the transaction.
func (t *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders
    (order_number, customer_id, status, subtotal, cgst, sgst, total_amount, discount, discount_reason,
     advance_paid, balance_amount, delivery_date, parent_order_id, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (order_number) DO NOTHING
RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.CustomerID, string(o.Status), o.Subtotal, o.CGST, o.SGST, o.TotalAmount, o.Discount, o.DiscountReason,
		o.AdvancePaid, o.BalanceAmount, o.DeliveryDate, o.ParentOrderID, o.Notes, nullID(o.CreatedBy)).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrDuplicateNumber
	}
	if err != nil {
		return Order{}, err
	}
	items := make([]Item, 0, len(o.Items))
	for _, it := range o.Items {
		it.OrderID = o.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO order_items
    (order_id, pattern_id, fabric_id, body_type, quantity, estimated_meters, fabric_cost, stitching_charge, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			it.OrderID, it.PatternID, it.FabricID, string(it.BodyType), it.Quantity, it.EstimatedMeters,
			it.FabricCost, it.StitchingCharge, it.UnitPrice, it.TotalPrice).Scan(&it.ID); err != nil {
			return Order{}, err
		}
		items = append(items, it)
	}
	o.Items = items
	return o, nil
}

func (t *txRepository) LockOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, completed_date=COALESCE($3, completed_date), updated_at=NOW() WHERE id=$1`,
		id, string(status), completedAt)
	return err
}

func (t *txRepository) UpdateItemUsage(ctx context.Context, itemID int64, actual, wastage *decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_items SET actual_meters_used=$2, wastage=$3 WHERE id=$1`, itemID, actual, wastage)
	return err
}

func (t *txRepository) MoveItems(ctx context.Context, itemIDs []int64, toOrderID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_items SET order_id=$2 WHERE id = ANY($1)`, itemIDs, toOrderID)
	return err
}

func (t *txRepository) UpdateItem(ctx context.Context, it Item) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_items
SET pattern_id=$2, fabric_id=$3, quantity=$4, estimated_meters=$5, fabric_cost=$6, unit_price=$7, total_price=$8
WHERE id=$1`, it.ID, it.PatternID, it.FabricID, it.Quantity, it.EstimatedMeters, it.FabricCost, it.UnitPrice, it.TotalPrice)
	return err
}

func (t *txRepository) UpdateAmounts(ctx context.Context, id int64, q Quote, discount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET subtotal=$2, cgst=$3, sgst=$4, total_amount=$5, discount=$6, updated_at=NOW() WHERE id=$1`,
		id, q.Subtotal, q.CGST, q.SGST, q.Total, discount)
	return err
}

func (t *txRepository) UpdateDiscount(ctx context.Context, id int64, discount decimal.Decimal, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET discount=$2, discount_reason=$3, updated_at=NOW() WHERE id=$1`, id, discount, reason)
	return err
}

func (t *txRepository) InsertAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, t.tx, rec)
}

func nullID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
