package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/shared"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

type stockTx = inventory.SQLTx

// SQLTx implements TxRepository on a pgx transaction.
type SQLTx struct {
	*stockTx
	tx pgx.Tx
}

// NewSQLTx wraps tx.
func NewSQLTx(tx pgx.Tx) *SQLTx {
	return &SQLTx{stockTx: inventory.NewSQLTx(tx), tx: tx}
}

// WithTx runs fn in a retried transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.RunTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, NewSQLTx(tx))
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const poColumns = `id, po_number, supplier_id, status, total_amount, paid_amount, balance_amount, notes, COALESCE(created_by, 0), created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &status, &po.TotalAmount, &po.PaidAmount, &po.BalanceAmount, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.NotFoundf("purchase order not found")
	}
	po.Status = POStatus(status)
	return po, err
}

func loadItems(ctx context.Context, q querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, COALESCE(fabric_id, 0), description, ordered_quantity, received_quantity, unit_price, total_price
FROM po_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (POItem, error) {
		var it POItem
		err := row.Scan(&it.ID, &it.POID, &it.FabricID, &it.Description, &it.OrderedQuantity, &it.ReceivedQuantity, &it.UnitPrice, &it.TotalPrice)
		return it, err
	})
}

func getPO(ctx context.Context, q querier, id int64, suffix string) (PurchaseOrder, error) {
	po, err := scanPO(q.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`+suffix, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = loadItems(ctx, q, id)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: load items: %w", err)
	}
	return po, nil
}

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.pool, id, "")
}

// ListPOs lists purchase orders newest first, optionally filtered by status.
func (r *Repository) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1)
ORDER BY id DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (t *SQLTx) InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	created, err := scanPO(t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, supplier_id, status, total_amount, paid_amount, balance_amount, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+poColumns,
		po.PONumber, po.SupplierID, string(po.Status), po.TotalAmount, po.PaidAmount, po.BalanceAmount, po.Notes, nullID(po.CreatedBy)))
	if err != nil {
		return PurchaseOrder{}, err
	}
	created.Items = make([]POItem, 0, len(po.Items))
	for _, it := range po.Items {
		it.POID = created.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO po_items (po_id, fabric_id, description, ordered_quantity, received_quantity, unit_price, total_price)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			it.POID, nullID(it.FabricID), it.Description, it.OrderedQuantity, it.ReceivedQuantity, it.UnitPrice, it.TotalPrice).Scan(&it.ID); err != nil {
			return PurchaseOrder{}, fmt.Errorf("procurement: insert item: %w", err)
		}
		created.Items = append(created.Items, it)
	}
	return created, nil
}

func (t *SQLTx) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, t.tx, id, " FOR UPDATE")
}

func (t *SQLTx) UpdateReceived(ctx context.Context, itemID int64, received decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE po_items SET received_quantity=$2 WHERE id=$1`, itemID, received)
	return err
}

func (t *SQLTx) UpdatePO(ctx context.Context, id int64, status POStatus, paid, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, paid_amount=$3, balance_amount=$4, updated_at=NOW() WHERE id=$1`,
		id, string(status), paid, balance)
	return err
}

func nullID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
