package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/db"
	"github.com/stitchline/stitchline/internal/shared"
)

// Repository persists installments in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, maxAttempts int) *Repository {
	return &Repository{pool: pool, maxAttempts: maxAttempts}
}

// WithTx runs fn in a retried transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payments repository not initialised")
	}
	return db.RunTx(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		return fn(ctx, NewSQLTx(tx))
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const accountColumns = `id, order_number, status = 'CANCELLED', total_amount, discount, advance_paid, balance_amount`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.OrderID, &a.OrderNumber, &a.Cancelled, &a.Total, &a.Discount, &a.AdvancePaid, &a.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFoundf("order not found")
	}
	return a, err
}

const installmentColumns = `id, order_id, installment_number, installment_amount, paid_amount, status, due_date, paid_date, payment_mode, reference, notes, is_advance, created_at`

func scanInstallment(row pgx.Row) (Installment, error) {
	var i Installment
	var status, mode string
	err := row.Scan(&i.ID, &i.OrderID, &i.Number, &i.Amount, &i.PaidAmount, &status, &i.DueDate, &i.PaidDate, &mode, &i.Reference, &i.Notes, &i.IsAdvance, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, shared.NotFoundf("installment not found")
	}
	i.Status = InstallmentStatus(status)
	i.Mode = Mode(mode)
	return i, err
}

func listInstallments(ctx context.Context, q querier, orderID int64, suffix string) ([]Installment, error) {
	rows, err := q.Query(ctx, `SELECT `+installmentColumns+` FROM payment_installments WHERE order_id=$1 ORDER BY installment_number`+suffix, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Installment{}
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetAccount loads the money view of an order.
func (r *Repository) GetAccount(ctx context.Context, orderID int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM orders WHERE id=$1`, orderID))
}

// GetInstallment loads one installment.
func (r *Repository) GetInstallment(ctx context.Context, id int64) (Installment, error) {
	return scanInstallment(r.pool.QueryRow(ctx, `SELECT `+installmentColumns+` FROM payment_installments WHERE id=$1`, id))
}

// ListInstallments returns the installments of an order.
func (r *Repository) ListInstallments(ctx context.Context, orderID int64) ([]Installment, error) {
	return listInstallments(ctx, r.pool, orderID, "")
}

// SQLTx implements TxRepository on a pgx transaction.
type SQLTx struct {
	tx pgx.Tx
}

// NewSQLTx wraps tx.
func NewSQLTx(tx pgx.Tx) *SQLTx {
	return &SQLTx{tx: tx}
}

func (t *SQLTx) LockAccount(ctx context.Context, orderID int64) (Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
}

// PaidTotals mirrors Totals in one aggregate query.
func (t *SQLTx) PaidTotals(ctx context.Context, orderID int64) (PaidTotals, error) {
	var out PaidTotals
	err := t.tx.QueryRow(ctx, `SELECT
    COALESCE(SUM(paid_amount) FILTER (WHERE status <> 'CANCELLED'), 0),
    COALESCE(SUM(paid_amount) FILTER (WHERE status <> 'CANCELLED' AND is_advance), 0),
    COUNT(*) FILTER (WHERE status <> 'CANCELLED' AND NOT is_advance),
    COALESCE(MAX(installment_number), 0)
FROM payment_installments WHERE order_id=$1`, orderID).Scan(&out.Paid, &out.Advance, &out.Scheduled, &out.MaxNumber)
	return out, err
}

func (t *SQLTx) InstallmentsForUpdate(ctx context.Context, orderID int64) ([]Installment, error) {
	return listInstallments(ctx, t.tx, orderID, " FOR UPDATE")
}

func (t *SQLTx) LockInstallment(ctx context.Context, id int64) (Installment, error) {
	return scanInstallment(t.tx.QueryRow(ctx, `SELECT `+installmentColumns+` FROM payment_installments WHERE id=$1 FOR UPDATE`, id))
}

func (t *SQLTx) InsertInstallment(ctx context.Context, inst Installment) (Installment, error) {
	return scanInstallment(t.tx.QueryRow(ctx, `INSERT INTO payment_installments
    (order_id, installment_number, installment_amount, paid_amount, status, due_date, paid_date, payment_mode, reference, notes, is_advance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+installmentColumns,
		inst.OrderID, inst.Number, inst.Amount, inst.PaidAmount, string(inst.Status), inst.DueDate, inst.PaidDate,
		string(inst.Mode), inst.Reference, inst.Notes, inst.IsAdvance))
}

func (t *SQLTx) UpdateInstallment(ctx context.Context, inst Installment) error {
	_, err := t.tx.Exec(ctx, `UPDATE payment_installments
SET installment_amount=$2, paid_amount=$3, status=$4, paid_date=$5, payment_mode=$6, reference=$7, notes=$8
WHERE id=$1`, inst.ID, inst.Amount, inst.PaidAmount, string(inst.Status), inst.PaidDate, string(inst.Mode), inst.Reference, inst.Notes)
	return err
}

func (t *SQLTx) UpdateBalance(ctx context.Context, orderID int64, advance, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET advance_paid=$2, balance_amount=$3, updated_at=NOW() WHERE id=$1`, orderID, advance, balance)
	return err
}

func (t *SQLTx) InsertAudit(ctx context.Context, rec shared.AuditRecord) error {
	return shared.InsertAudit(ctx, t.tx, rec)
}
