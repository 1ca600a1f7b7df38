package reservation

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/shared"
)

// TxRepository is the ledger plus pattern lookup inside one transaction.
type TxRepository interface {
	inventory.TxRepository
	GetPattern(ctx context.Context, id int64) (Pattern, error)
}

// Engine reserves, releases and consumes fabric inside a caller's transaction.
type Engine struct{}

// NewEngine constructs Engine.
func NewEngine() *Engine {
	return &Engine{}
}

func insufficient(item inventory.FabricItem, required decimal.Decimal) error {
	available := item.Available()
	return shared.NewError(shared.ErrInsufficientStock,
		map[string]decimal.Decimal{"available": available, "required": required},
		"Insufficient stock for %s. Available: %s, Required: %s",
		item.Name, shared.FormatMeters(available), shared.FormatMeters(required))
}

// CheckAvailability locks every fabric in ascending id order, then checks the
// aggregated need per fabric in input order. The first shortfall is returned.
func (e *Engine) CheckAvailability(ctx context.Context, tx inventory.TxRepository, reqs []Requirement) error {
	need := make(map[int64]decimal.Decimal, len(reqs))
	order := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		if !r.Meters.IsPositive() {
			return shared.Validationf("reservation: required meters must be positive")
		}
		if _, seen := need[r.FabricID]; !seen {
			order = append(order, r.FabricID)
		}
		need[r.FabricID] = need[r.FabricID].Add(r.Meters)
	}
	ids := append([]int64(nil), order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[int64]inventory.FabricItem, len(ids))
	for _, id := range ids {
		item, err := inventory.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		locked[id] = item
	}
	for _, id := range order {
		item := locked[id]
		if item.Available().LessThan(need[id]) {
			return insufficient(item, need[id])
		}
	}
	return nil
}

// Reserve moves qty from available to reserved. On-hand is unchanged.
func (e *Engine) Reserve(ctx context.Context, tx inventory.TxRepository, fabricID int64, qty decimal.Decimal, ref Ref) (inventory.Movement, error) {
	if !qty.IsPositive() {
		return inventory.Movement{}, shared.Validationf("reservation: quantity must be positive")
	}
	item, err := inventory.Lock(ctx, tx, fabricID)
	if err != nil {
		return inventory.Movement{}, err
	}
	if item.Available().LessThan(qty) {
		return inventory.Movement{}, insufficient(item, qty)
	}
	return inventory.Append(ctx, tx, &item, inventory.Entry{
		Type:          inventory.MovementOrderReserved,
		Quantity:      qty.Neg(),
		ReservedDelta: qty,
		OrderID:       ref.OrderID,
		ActorID:       ref.ActorID,
		Notes:         notes(ref, fmt.Sprintf("Reserved for order %d", ref.OrderID)),
	})
}

// ReserveAll validates every requirement before reserving any of them.
func (e *Engine) ReserveAll(ctx context.Context, tx inventory.TxRepository, reqs []Requirement, ref Ref) ([]inventory.Movement, error) {
	if err := e.CheckAvailability(ctx, tx, reqs); err != nil {
		return nil, err
	}
	out := make([]inventory.Movement, 0, len(reqs))
	for _, r := range reqs {
		mv, err := e.Reserve(ctx, tx, r.FabricID, r.Meters, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

// Release returns qty of reserved stock to availability.
func (e *Engine) Release(ctx context.Context, tx inventory.TxRepository, fabricID int64, qty decimal.Decimal, ref Ref) (inventory.Movement, error) {
	if !qty.IsPositive() {
		return inventory.Movement{}, shared.Validationf("reservation: quantity must be positive")
	}
	item, err := inventory.Lock(ctx, tx, fabricID)
	if err != nil {
		return inventory.Movement{}, err
	}
	return inventory.Append(ctx, tx, &item, inventory.Entry{
		Type:          inventory.MovementOrderCancelled,
		Quantity:      qty,
		ReservedDelta: qty.Neg(),
		OrderID:       ref.OrderID,
		ActorID:       ref.ActorID,
		Notes:         notes(ref, fmt.Sprintf("Released from order %d", ref.OrderID)),
	})
}

// Rebook moves a reservation from one requirement to another: the old meters are
// released, then the new ones reserved. Both fabrics are locked in ascending id order and
// the target is checked before anything is written, counting the released meters when the
// fabric stays the same. The locked target fabric is returned.
func (e *Engine) Rebook(ctx context.Context, tx inventory.TxRepository, from, to Requirement, ref Ref) (inventory.FabricItem, error) {
	if !from.Meters.IsPositive() || !to.Meters.IsPositive() {
		return inventory.FabricItem{}, shared.Validationf("reservation: required meters must be positive")
	}
	ids := []int64{from.FabricID, to.FabricID}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var target inventory.FabricItem
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		item, err := inventory.Lock(ctx, tx, id)
		if err != nil {
			return inventory.FabricItem{}, err
		}
		if id == to.FabricID {
			target = item
		}
	}
	if from.FabricID == to.FabricID && from.Meters.Equal(to.Meters) {
		return target, nil
	}
	available := target.Available()
	if from.FabricID == to.FabricID {
		available = available.Add(from.Meters)
	}
	if available.LessThan(to.Meters) {
		return inventory.FabricItem{}, shared.NewError(shared.ErrInsufficientStock,
			map[string]decimal.Decimal{"available": available, "required": to.Meters},
			"Insufficient stock for %s. Available: %s, Required: %s",
			target.Name, shared.FormatMeters(available), shared.FormatMeters(to.Meters))
	}
	if _, err := e.Release(ctx, tx, from.FabricID, from.Meters, ref); err != nil {
		return inventory.FabricItem{}, err
	}
	if _, err := e.Reserve(ctx, tx, to.FabricID, to.Meters, ref); err != nil {
		return inventory.FabricItem{}, err
	}
	return inventory.Lock(ctx, tx, to.FabricID)
}

// Consume deducts actual+wastage from on-hand and drops the estimated reservation.
// The gap between estimate and actual flows back into availability.
func (e *Engine) Consume(ctx context.Context, tx inventory.TxRepository, fabricID int64, estimated, actual, wastage decimal.Decimal, ref Ref) (inventory.Movement, error) {
	if estimated.IsNegative() || actual.IsNegative() || wastage.IsNegative() {
		return inventory.Movement{}, shared.Validationf("reservation: quantities must be >= 0")
	}
	item, err := inventory.Lock(ctx, tx, fabricID)
	if err != nil {
		return inventory.Movement{}, err
	}
	used := actual.Add(wastage)
	return inventory.Append(ctx, tx, &item, inventory.Entry{
		Type:          inventory.MovementOrderUsed,
		Quantity:      used.Neg(),
		ReservedDelta: estimated.Neg(),
		OrderID:       ref.OrderID,
		ActorID:       ref.ActorID,
		Notes: notes(ref, fmt.Sprintf("Used for order %d: %s actual, %s wastage",
			ref.OrderID, shared.FormatMeters(actual), shared.FormatMeters(wastage))),
	})
}

func notes(ref Ref, fallback string) string {
	if ref.Notes != "" {
		return ref.Notes
	}
	return fallback
}
