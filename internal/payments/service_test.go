package payments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/shared"
	"github.com/stitchline/stitchline/internal/testing/memstore"
)

var (
	cashier = shared.Actor{ID: 2, Role: "SALES_MANAGER"}
	clock   = time.Date(2025, 4, 10, 11, 0, 0, 0, time.UTC)
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// seedOrder stores an order directly so money flows can be tested without stock.
func seedOrder(t *testing.T, store *memstore.Store, total, discount, advance string) int64 {
	t.Helper()
	var id int64
	err := store.Orders().WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		o, err := tx.InsertOrder(ctx, orders.Order{
			OrderNumber:   "ORD-" + total + "-" + advance,
			CustomerID:    1,
			Status:        orders.StatusNew,
			TotalAmount:   d(total),
			Discount:      d(discount),
			BalanceAmount: d(total).Sub(d(discount)),
		})
		if err != nil {
			return err
		}
		id = o.ID
		if _, err := payments.RecordAdvance(ctx, tx, o.ID, d(advance), payments.ModeCash, clock); err != nil {
			return err
		}
		_, err = payments.Reconcile(ctx, tx, o.ID)
		return err
	})
	require.NoError(t, err)
	return id
}

func newService(store *memstore.Store, idem shared.Idempotency) *payments.Service {
	svc := payments.NewService(store.Payments(), nil, idem, nil)
	svc.UseClock(func() time.Time { return clock })
	return svc
}

func TestRecordPaymentReducesBalance(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	ctx := context.Background()
	orderID := seedOrder(t, store, "10000", "0", "2000")

	acc, err := svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("8000")))
	assert.True(t, acc.AdvancePaid.Equal(d("2000")))

	inst, err := svc.RecordPayment(ctx, cashier, payments.PaymentInput{OrderID: orderID, Amount: d("3000"), Mode: payments.ModeUPI, Reference: "UTR-1"})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPaid, inst.Status)
	assert.True(t, inst.PaidAmount.Equal(d("3000")))
	assert.Equal(t, 2, inst.Number)
	assert.Equal(t, "Payment recorded via UPI", inst.Notes)

	acc, err = svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("5000")))

	_, err = svc.RecordPayment(ctx, cashier, payments.PaymentInput{OrderID: orderID, Amount: d("6000")})
	require.ErrorIs(t, err, shared.ErrExceedsBalance)
	assert.Equal(t, "Payment amount (₹6,000.00) exceeds balance (₹5,000.00)", err.Error())

	acc, err = svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("5000")))

	recorded := store.RecordsOfType(shared.ChangePaymentRecorded)
	require.Len(t, recorded, 1)
	assert.Equal(t, "Payment of ₹3,000.00 recorded via UPI (Ref: UTR-1). New balance: ₹5,000.00", recorded[0].Description)

	check, err := svc.Verify(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, check.Consistent())
}

func TestRecordPaymentValidation(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	orderID := seedOrder(t, store, "1000", "0", "0")

	_, err := svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("0")})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("10"), Mode: "BARTER"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: 404, Amount: d("10")})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordPaymentRespectsDiscount(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	orderID := seedOrder(t, store, "5000", "500", "0")

	_, err := svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("4600")})
	require.ErrorIs(t, err, shared.ErrExceedsBalance)
	_, err = svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("4500")})
	require.NoError(t, err)
	acc, err := svc.Account(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())
}

func TestGeneratePlanSchedulesBalance(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	ctx := context.Background()
	orderID := seedOrder(t, store, "9000", "0", "0")

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows, err := svc.GeneratePlan(ctx, cashier, payments.PlanInput{OrderID: orderID, Count: 3, Frequency: payments.FrequencyMonthly, StartDate: start})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.True(t, r.Amount.Equal(d("3000")))
		assert.Equal(t, payments.StatusPending, r.Status)
		assert.Equal(t, i+1, r.Number)
		assert.Equal(t, start.AddDate(0, i, 0), r.DueDate)
	}

	acc, err := svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("9000")))

	_, err = svc.GeneratePlan(ctx, cashier, payments.PlanInput{OrderID: orderID, Count: 2, Frequency: payments.FrequencyWeekly})
	assert.ErrorIs(t, err, shared.ErrPlanAlreadyExists)
}

func TestGeneratePlanIgnoresAdvanceRow(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	orderID := seedOrder(t, store, "10000", "0", "4000")

	rows, err := svc.GeneratePlan(context.Background(), cashier, payments.PlanInput{OrderID: orderID, Count: 2, Frequency: payments.FrequencyWeekly})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.True(t, rows[0].Amount.Equal(d("3000")))
	assert.True(t, rows[1].Amount.Equal(d("3000")))
}

func TestUpdatePaymentDerivesStatus(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	ctx := context.Background()
	orderID := seedOrder(t, store, "6000", "0", "0")
	rows, err := svc.GeneratePlan(ctx, cashier, payments.PlanInput{OrderID: orderID, Count: 2, Frequency: payments.FrequencyMonthly, StartDate: clock})
	require.NoError(t, err)

	inst, err := svc.UpdatePayment(ctx, cashier, payments.UpdateInput{InstallmentID: rows[0].ID, PaidAmount: d("1000"), Mode: payments.ModeCard})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPartial, inst.Status)
	assert.Equal(t, payments.ModeCard, inst.Mode)

	inst, err = svc.UpdatePayment(ctx, cashier, payments.UpdateInput{InstallmentID: rows[0].ID, PaidAmount: d("3000")})
	require.NoError(t, err)
	assert.Equal(t, payments.StatusPaid, inst.Status)
	require.NotNil(t, inst.PaidDate)

	acc, err := svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("3000")))

	_, err = svc.UpdatePayment(ctx, cashier, payments.UpdateInput{InstallmentID: rows[1].ID, PaidAmount: d("3500")})
	assert.ErrorIs(t, err, shared.ErrExceedsBalance)

	assert.Len(t, store.RecordsOfType(shared.ChangePaymentUpdated), 2)
}

func TestCancelInstallment(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	ctx := context.Background()
	orderID := seedOrder(t, store, "6000", "0", "0")
	rows, err := svc.GeneratePlan(ctx, cashier, payments.PlanInput{OrderID: orderID, Count: 2, Frequency: payments.FrequencyMonthly})
	require.NoError(t, err)

	_, err = svc.UpdatePayment(ctx, cashier, payments.UpdateInput{InstallmentID: rows[0].ID, PaidAmount: d("100")})
	require.NoError(t, err)
	_, err = svc.CancelInstallment(ctx, cashier, rows[0].ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	inst, err := svc.CancelInstallment(ctx, cashier, rows[1].ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCancelled, inst.Status)

	_, err = svc.CancelInstallment(ctx, cashier, rows[1].ID)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentsOnCancelledOrderAreRejected(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	orderID := seedOrder(t, store, "1000", "0", "0")
	err := store.Orders().WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		return tx.UpdateStatus(ctx, orderID, orders.StatusCancelled, nil)
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("10")})
	assert.ErrorIs(t, err, shared.ErrOrderCancelled)
	_, err = svc.GeneratePlan(context.Background(), cashier, payments.PlanInput{OrderID: orderID, Count: 2, Frequency: payments.FrequencyWeekly})
	assert.ErrorIs(t, err, shared.ErrOrderCancelled)
}

func TestRecordPaymentRollsBackOnFailure(t *testing.T) {
	store := memstore.New()
	svc := newService(store, nil)
	orderID := seedOrder(t, store, "1000", "0", "0")
	store.FailOn("UpdateBalance", errors.New("disk full"))

	_, err := svc.RecordPayment(context.Background(), cashier, payments.PaymentInput{OrderID: orderID, Amount: d("400")})
	require.Error(t, err)

	rows, err := svc.ListInstallments(context.Background(), orderID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, store.RecordsOfType(shared.ChangePaymentRecorded))
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idem := shared.NewIdempotencyStore(client, time.Hour)

	store := memstore.New()
	svc := newService(store, idem)
	ctx := context.Background()
	orderID := seedOrder(t, store, "1000", "0", "0")

	_, err := svc.RecordPayment(ctx, cashier, payments.PaymentInput{OrderID: orderID, Amount: d("5000"), IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, shared.ErrExceedsBalance)

	_, err = svc.RecordPayment(ctx, cashier, payments.PaymentInput{OrderID: orderID, Amount: d("500"), IdempotencyKey: "k-1"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, cashier, payments.PaymentInput{OrderID: orderID, Amount: d("500"), IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	acc, err := svc.Account(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(d("500")))
}
