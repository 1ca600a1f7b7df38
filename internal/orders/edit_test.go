package orders_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/shared"
)

func (f *fixture) assertLedgers(t *testing.T, ids ...int64) {
	t.Helper()
	svc := inventory.NewService(f.store.Inventory(), nil, nil)
	for _, id := range ids {
		v, err := svc.Verify(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, v.Consistent(), "fabric %d", id)
	}
}

func (f *fixture) assertBalance(t *testing.T, orderID int64) orders.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.svc.Get(ctx, orderID)
	require.NoError(t, err)
	rows, err := f.store.Payments().ListInstallments(ctx, orderID)
	require.NoError(t, err)
	paid := d("0")
	for _, r := range rows {
		paid = paid.Add(r.PaidAmount)
	}
	want := o.TotalAmount.Sub(o.Discount).Sub(paid)
	assert.True(t, o.BalanceAmount.Equal(want), "balance %s, want %s", o.BalanceAmount, want)

	check, err := payments.NewService(f.store.Payments(), nil, nil, nil).Verify(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, check.Consistent())
	return o
}

func TestUpdateItemMovesReservationToNewFabric(t *testing.T) {
	f := newFixture(t, "20")
	linen := f.addFabric(t, "LIN", "10", "200")
	ctx := context.Background()
	o := f.create(t, "0", f.item(2, "500"), f.item(1, "1300"))
	require.True(t, f.stock(t).Reserved.Equal(d("6")))

	updated, err := f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{
		OrderID: o.ID, ItemID: o.Items[0].ID, FabricID: linen.ID, Quantity: 3, Notes: "customer wants linen",
	})
	require.NoError(t, err)

	it := updated.Items[0]
	assert.Equal(t, linen.ID, it.FabricID)
	assert.Equal(t, 3, it.Quantity)
	assert.True(t, it.EstimatedMeters.Equal(d("6")))
	// 6 m x 200 + 3 x 500
	assert.True(t, it.FabricCost.Equal(d("1200")))
	assert.True(t, it.TotalPrice.Equal(d("2700")))
	assert.True(t, updated.Subtotal.Equal(d("4200")))
	assert.True(t, updated.TotalAmount.Equal(d("4704")))
	assert.True(t, updated.BalanceAmount.Equal(d("4704")))

	silk := f.stock(t)
	assert.True(t, silk.Reserved.Equal(d("2")))
	assert.True(t, silk.OnHand.Equal(d("20")))
	lin := f.fabricStock(t, linen.ID)
	assert.True(t, lin.Reserved.Equal(d("6")))
	assert.True(t, lin.Available().Equal(d("4")))
	f.assertLedgers(t, f.fabric.ID, linen.ID)

	mvs := f.movements(t)
	last := mvs[len(mvs)-1]
	assert.Equal(t, inventory.MovementOrderCancelled, last.Type)
	assert.True(t, last.ReservedDelta.Equal(d("-4")))
	assert.Equal(t, o.ID, last.OrderID)

	audits := f.store.RecordsOfType(shared.ChangeItemUpdated)
	require.Len(t, audits, 1)
	assert.Equal(t, o.Items[0].ID, audits[0].EntityID)
	assert.Contains(t, audits[0].OldValue, "qty=2 meters=4.00 total=1400.00")
	assert.Contains(t, audits[0].NewValue, "qty=3 meters=6.00 total=2700.00")
	assert.Contains(t, audits[0].Description, "customer wants linen")
	f.assertBalance(t, o.ID)
}

func TestUpdateItemOnSameFabricCountsReleasedMeters(t *testing.T) {
	f := newFixture(t, "8")
	o := f.create(t, "0", f.item(3, "100"))
	require.True(t, f.stock(t).Available().Equal(d("2")))

	updated, err := f.svc.UpdateItem(context.Background(), clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 4})
	require.NoError(t, err)
	assert.True(t, updated.Items[0].EstimatedMeters.Equal(d("8")))
	stock := f.stock(t)
	assert.True(t, stock.Reserved.Equal(d("8")))
	assert.True(t, stock.Available().IsZero())
	f.assertLedgers(t, f.fabric.ID)
}

func TestUpdateItemShortOfFabricChangesNothing(t *testing.T) {
	f := newFixture(t, "20")
	linen := f.addFabric(t, "LIN", "10", "200")
	o := f.create(t, "0", f.item(2, "500"))

	_, err := f.svc.UpdateItem(context.Background(), clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID, FabricID: linen.ID, Quantity: 6})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, "Insufficient stock for LIN. Available: 10.00 m, Required: 12.00 m", err.Error())

	assert.True(t, f.stock(t).Reserved.Equal(d("4")))
	assert.True(t, f.fabricStock(t, linen.ID).Reserved.IsZero())
	got, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, f.fabric.ID, got.Items[0].FabricID)
	assert.Empty(t, f.store.RecordsOfType(shared.ChangeItemUpdated))
	f.assertLedgers(t, f.fabric.ID, linen.ID)
}

func TestUpdateItemBelowPaidAmountRollsBack(t *testing.T) {
	f := newFixture(t, "20")
	o := f.create(t, "3248", f.item(2, "500"), f.item(1, "1300"))

	_, err := f.svc.UpdateItem(context.Background(), clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrExceedsBalance)

	assert.True(t, f.stock(t).Reserved.Equal(d("6")))
	got := f.assertBalance(t, o.ID)
	assert.True(t, got.TotalAmount.Equal(d("3248")))
	assert.True(t, got.BalanceAmount.IsZero())
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestUpdateItemRejections(t *testing.T) {
	f := newFixture(t, "40")
	ctx := context.Background()
	o := f.create(t, "0", f.item(1, "100"))

	_, err := f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID, Quantity: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: 4242, Quantity: 2})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: o.ID, ItemID: o.Items[0].ID, FabricID: 4242})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	delivered := f.create(t, "0", f.item(1, "100"))
	_, err = f.svc.Transition(ctx, clerk, orders.TransitionInput{OrderID: delivered.ID, To: orders.StatusDelivered})
	require.NoError(t, err)
	_, err = f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: delivered.ID, ItemID: delivered.Items[0].ID, Quantity: 2})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	cancelled := f.create(t, "0", f.item(1, "100"))
	_, err = f.svc.Transition(ctx, clerk, orders.TransitionInput{OrderID: cancelled.ID, To: orders.StatusCancelled})
	require.NoError(t, err)
	_, err = f.svc.UpdateItem(ctx, clerk, orders.UpdateItemInput{OrderID: cancelled.ID, ItemID: cancelled.Items[0].ID, Quantity: 2})
	assert.ErrorIs(t, err, shared.ErrOrderCancelled)

	assert.True(t, f.stock(t).Reserved.Equal(d("2")))
	f.assertLedgers(t, f.fabric.ID)
}

func TestUpdateDiscountReconcilesBalance(t *testing.T) {
	f := newFixture(t, "20")
	ctx := context.Background()
	// 1400 + 168 GST, 1000 paid up front
	o := f.create(t, "1000", f.item(2, "500"))
	require.True(t, o.BalanceAmount.Equal(d("568")))

	for _, discount := range []string{"300", "0", "568", "125.50"} {
		_, err := f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d(discount), Reason: "loyal customer"})
		require.NoError(t, err, discount)
		got := f.assertBalance(t, o.ID)
		assert.True(t, got.Discount.Equal(d(discount)))
		assert.Equal(t, "loyal customer", got.DiscountReason)
	}

	audits := f.store.RecordsOfType(shared.ChangeDiscountUpdated)
	require.Len(t, audits, 4)
	assert.Equal(t, "discount", audits[0].FieldName)
	assert.Equal(t, "0.00", audits[0].OldValue)
	assert.Equal(t, "300.00", audits[0].NewValue)
	assert.Equal(t, "Discount changed from ₹0.00 to ₹300.00 (Reason: loyal customer)", audits[0].Description)
	assert.Equal(t, "568.00", audits[3].OldValue)
}

func TestUpdateDiscountRejections(t *testing.T) {
	f := newFixture(t, "20")
	ctx := context.Background()
	o := f.create(t, "1000", f.item(2, "500"))
	_, err := f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d("300")})
	require.NoError(t, err)

	_, err = f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d("600")})
	require.ErrorIs(t, err, shared.ErrExceedsBalance)
	amounts := shared.AmountsOf(err)
	assert.True(t, amounts["paid"].Equal(d("1000")))
	assert.True(t, amounts["net"].Equal(d("968")))

	got := f.assertBalance(t, o.ID)
	assert.True(t, got.Discount.Equal(d("300")))
	assert.True(t, got.BalanceAmount.Equal(d("268")))

	_, err = f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d("1569")})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d("-1")})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: 4242, Discount: d("1")})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.Transition(ctx, clerk, orders.TransitionInput{OrderID: o.ID, To: orders.StatusCancelled})
	require.NoError(t, err)
	_, err = f.svc.UpdateDiscount(ctx, clerk, orders.DiscountInput{OrderID: o.ID, Discount: d("0")})
	assert.ErrorIs(t, err, shared.ErrOrderCancelled)
	assert.Len(t, f.store.RecordsOfType(shared.ChangeDiscountUpdated), 1)
}
