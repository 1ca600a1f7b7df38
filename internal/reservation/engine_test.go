package reservation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
	"github.com/stitchline/stitchline/internal/testing/memstore"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var actor = shared.Actor{ID: 3, Role: "TAILOR"}

func seedFabric(t *testing.T, store *memstore.Store, code, onHand string) inventory.FabricItem {
	t.Helper()
	svc := inventory.NewService(store.Inventory(), nil, nil)
	item, err := svc.CreateFabric(context.Background(), actor, inventory.CreateFabricInput{Code: code, Name: code, OpeningStock: d(onHand)})
	require.NoError(t, err)
	return item
}

func fabric(t *testing.T, store *memstore.Store, id int64) inventory.FabricItem {
	t.Helper()
	item, err := store.Inventory().GetFabric(context.Background(), id)
	require.NoError(t, err)
	return item
}

func TestComputeRequiredMeters(t *testing.T) {
	p := reservation.Pattern{
		Name:              "Kurta",
		BaseMeters:        d("2.5"),
		SlimAdjustment:    d("-0.25"),
		RegularAdjustment: d("0"),
		LargeAdjustment:   d("0.5"),
		XLAdjustment:      d("0.75"),
	}
	cases := []struct {
		bt   reservation.BodyType
		qty  int
		want string
	}{
		{reservation.BodyTypeSlim, 2, "4.5"},
		{reservation.BodyTypeRegular, 1, "2.5"},
		{"", 3, "7.5"},
		{reservation.BodyTypeLarge, 2, "6"},
		{reservation.BodyTypeXL, 4, "13"},
	}
	for _, tc := range cases {
		got, err := reservation.ComputeRequiredMeters(p, tc.bt, tc.qty)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(tc.want)), "%s x%d = %s", tc.bt, tc.qty, got)
	}

	_, err := reservation.ComputeRequiredMeters(p, "HUGE", 1)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = reservation.ComputeRequiredMeters(p, reservation.BodyTypeSlim, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = reservation.ComputeRequiredMeters(reservation.Pattern{BaseMeters: d("0.2"), SlimAdjustment: d("-0.2")}, reservation.BodyTypeSlim, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestReserveReleaseKeepsOnHand(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "COT", "20")
	engine := reservation.NewEngine()
	ctx := context.Background()
	ref := reservation.Ref{OrderID: 11, ActorID: actor.ID}

	err := store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		mv, err := engine.Reserve(ctx, tx, item.ID, d("7.5"), ref)
		require.NoError(t, err)
		assert.Equal(t, inventory.MovementOrderReserved, mv.Type)
		assert.True(t, mv.Quantity.Equal(d("-7.5")))
		assert.True(t, mv.BalanceAfter.Equal(d("20")))
		assert.True(t, mv.ReservedAfter.Equal(d("7.5")))
		assert.Equal(t, "Reserved for order 11", mv.Notes)
		return nil
	})
	require.NoError(t, err)
	got := fabric(t, store, item.ID)
	assert.True(t, got.OnHand.Equal(d("20")))
	assert.True(t, got.Available().Equal(d("12.5")))

	err = store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := engine.Release(ctx, tx, item.ID, d("7.5"), ref)
		return err
	})
	require.NoError(t, err)
	got = fabric(t, store, item.ID)
	assert.True(t, got.Reserved.IsZero())
	assert.True(t, got.Available().Equal(d("20")))
}

func TestConsumeDeductsActualAndWastage(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "SLK", "100")
	engine := reservation.NewEngine()
	ctx := context.Background()
	ref := reservation.Ref{OrderID: 5}

	err := store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		if _, err := engine.Reserve(ctx, tx, item.ID, d("10"), ref); err != nil {
			return err
		}
		mv, err := engine.Consume(ctx, tx, item.ID, d("10"), d("9"), d("0.5"), ref)
		if err != nil {
			return err
		}
		assert.True(t, mv.Quantity.Equal(d("-9.5")))
		assert.True(t, mv.ReservedDelta.Equal(d("-10")))
		return nil
	})
	require.NoError(t, err)
	got := fabric(t, store, item.ID)
	assert.True(t, got.OnHand.Equal(d("90.5")))
	assert.True(t, got.Reserved.IsZero())

	v, err := inventory.NewService(store.Inventory(), nil, nil).Verify(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, v.Consistent())
}

func TestConsumeCannotEatAnotherOrdersReservation(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "CRP", "10")
	engine := reservation.NewEngine()
	ctx := context.Background()

	err := store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		if _, err := engine.Reserve(ctx, tx, item.ID, d("4"), reservation.Ref{OrderID: 1}); err != nil {
			return err
		}
		_, err := engine.Reserve(ctx, tx, item.ID, d("6"), reservation.Ref{OrderID: 2})
		return err
	})
	require.NoError(t, err)

	// 5 m used plus 1 m wasted against a 4 m estimate would take 2 m held for order 2
	err = store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := engine.Consume(ctx, tx, item.ID, d("4"), d("5"), d("1"), reservation.Ref{OrderID: 1})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	amounts := shared.AmountsOf(err)
	assert.True(t, amounts["available"].IsZero())
	assert.True(t, amounts["required"].Equal(d("2")))

	got := fabric(t, store, item.ID)
	assert.True(t, got.OnHand.Equal(d("10")))
	assert.True(t, got.Reserved.Equal(d("10")))

	// within the estimate the surplus returns to availability
	err = store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := engine.Consume(ctx, tx, item.ID, d("4"), d("3.5"), d("0.5"), reservation.Ref{OrderID: 1})
		return err
	})
	require.NoError(t, err)
	got = fabric(t, store, item.ID)
	assert.True(t, got.OnHand.Equal(d("6")))
	assert.True(t, got.Reserved.Equal(d("6")))
	assert.True(t, got.Available().IsZero())
}

func TestReleaseMoreThanReservedRollsBack(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "TUL", "10")
	engine := reservation.NewEngine()
	ctx := context.Background()

	err := store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		if _, err := engine.Reserve(ctx, tx, item.ID, d("2"), reservation.Ref{OrderID: 1}); err != nil {
			return err
		}
		_, err := engine.Release(ctx, tx, item.ID, d("3"), reservation.Ref{OrderID: 1})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrReservedUnderflow)
	assert.True(t, fabric(t, store, item.ID).Reserved.IsZero())
	all, err := store.Inventory().AllMovements(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCheckAvailabilityAggregatesPerFabric(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "LIN", "10")
	engine := reservation.NewEngine()

	err := store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		return engine.CheckAvailability(ctx, tx, []reservation.Requirement{
			{FabricID: item.ID, Meters: d("6")},
			{FabricID: item.ID, Meters: d("6")},
		})
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.Equal(t, "Insufficient stock for LIN. Available: 10.00 m, Required: 12.00 m", err.Error())
	amounts := shared.AmountsOf(err)
	assert.True(t, amounts["available"].Equal(d("10")))
	assert.True(t, amounts["required"].Equal(d("12")))
}

func TestReserveAllIsAllOrNothing(t *testing.T) {
	store := memstore.New()
	plenty := seedFabric(t, store, "A", "50")
	scarce := seedFabric(t, store, "B", "1")
	engine := reservation.NewEngine()

	err := store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
		_, err := engine.ReserveAll(ctx, tx, []reservation.Requirement{
			{FabricID: plenty.ID, Meters: d("5")},
			{FabricID: scarce.ID, Meters: d("2")},
		}, reservation.Ref{OrderID: 1})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	assert.True(t, fabric(t, store, plenty.ID).Reserved.IsZero())
	all, err := store.Inventory().AllMovements(context.Background(), plenty.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	store := memstore.New()
	item := seedFabric(t, store, "WOL", "20")
	engine := reservation.NewEngine()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(order int64) {
			defer wg.Done()
			err := store.Inventory().WithTx(context.Background(), func(ctx context.Context, tx inventory.TxRepository) error {
				_, err := engine.Reserve(ctx, tx, item.ID, d("3"), reservation.Ref{OrderID: order})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, shared.ErrInsufficientStock) {
				rejected++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.Equal(t, 4, rejected)
	got := fabric(t, store, item.ID)
	assert.True(t, got.Reserved.Equal(d("18")))
	assert.True(t, got.Available().Equal(d("2")))
}

func TestPatternService(t *testing.T) {
	store := memstore.New()
	svc := reservation.NewService(store.Patterns(), nil, nil)
	ctx := context.Background()

	p, err := svc.CreatePattern(ctx, actor, reservation.CreatePatternInput{Name: " Sherwani ", BaseMeters: d("3.5"), LargeAdjustment: d("0.5")})
	require.NoError(t, err)
	assert.Equal(t, "Sherwani", p.Name)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.LargeAdjustment.Equal(d("0.5")))

	_, err = svc.CreatePattern(ctx, actor, reservation.CreatePatternInput{Name: "Empty"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
