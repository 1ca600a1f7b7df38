package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

// ErrReservedUnderflow reports a release larger than the reserved counter. It means the
// ledger and the orders holding reservations disagree.
var ErrReservedUnderflow = errors.New("inventory: release exceeds reserved stock")

// TxRepository exposes the transactional ledger operations.
type TxRepository interface {
	InsertFabric(ctx context.Context, item FabricItem) (FabricItem, error)
	LockFabric(ctx context.Context, id int64) (FabricItem, error)
	LastMovement(ctx context.Context, fabricID int64) (Movement, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	UpdateFabricCounters(ctx context.Context, id int64, onHand, reserved, purchasedDelta decimal.Decimal) error
	InsertAudit(ctx context.Context, rec shared.AuditRecord) error
}

// Lock row-locks the item and aligns its counters with the last ledger row, so every
// check made under the lock sees the ledger's view of the item.
func Lock(ctx context.Context, tx TxRepository, id int64) (FabricItem, error) {
	item, err := tx.LockFabric(ctx, id)
	if err != nil {
		return FabricItem{}, err
	}
	last, err := tx.LastMovement(ctx, id)
	switch {
	case errors.Is(err, ErrNoMovements):
		item.OnHand = decimal.Zero
		item.Reserved = decimal.Zero
	case err != nil:
		return FabricItem{}, fmt.Errorf("inventory: last movement: %w", err)
	default:
		item.OnHand = last.BalanceAfter
		item.Reserved = last.ReservedAfter
	}
	return item, nil
}

// Append narrates a change to a locked item: it writes the new counters and the
// movement row in the caller's transaction and updates item in place. The ledger is
// write-once; corrections are new rows.
func Append(ctx context.Context, tx TxRepository, item *FabricItem, entry Entry) (Movement, error) {
	if item == nil || item.ID == 0 {
		return Movement{}, errors.New("inventory: locked item required")
	}
	if !entry.Type.Valid() {
		return Movement{}, shared.Validationf("inventory: unknown movement type %q", entry.Type)
	}
	if entry.Quantity.IsZero() && entry.ReservedDelta.IsZero() {
		return Movement{}, shared.Validationf("inventory: quantity must be non zero")
	}

	onHandDelta := entry.Quantity
	if entry.Type.ReservationOnly() {
		onHandDelta = decimal.Zero
	}
	newOnHand := item.OnHand.Add(onHandDelta)
	if newOnHand.IsNegative() {
		return Movement{}, shared.NewError(shared.ErrInsufficientStock,
			map[string]decimal.Decimal{"on_hand": item.OnHand, "required": onHandDelta.Neg()},
			"Insufficient stock for %s. On hand: %s, Required: %s", item.Name, shared.FormatMeters(item.OnHand), shared.FormatMeters(onHandDelta.Neg()))
	}
	reservedDelta := entry.ReservedDelta
	newReserved := item.Reserved.Add(reservedDelta)
	if newReserved.IsNegative() {
		return Movement{}, fmt.Errorf("%w: %s releases %s of %s reserved",
			ErrReservedUnderflow, item.Name, shared.FormatMeters(reservedDelta.Neg()), shared.FormatMeters(item.Reserved))
	}
	available := item.OnHand.Sub(item.Reserved)
	newAvailable := newOnHand.Sub(newReserved)
	if newAvailable.IsNegative() {
		required := available.Sub(newAvailable)
		return Movement{}, shared.NewError(shared.ErrInsufficientStock,
			map[string]decimal.Decimal{"available": available, "required": required, "on_hand": newOnHand, "reserved": newReserved},
			"Insufficient stock for %s. Available: %s, Required: %s", item.Name, shared.FormatMeters(available), shared.FormatMeters(required))
	}

	purchased := decimal.Zero
	if entry.Type == MovementPurchase {
		purchased = entry.Quantity
	}
	if err := tx.UpdateFabricCounters(ctx, item.ID, newOnHand, newReserved, purchased); err != nil {
		return Movement{}, fmt.Errorf("inventory: update counters: %w", err)
	}
	mv, err := tx.InsertMovement(ctx, Movement{
		FabricID:      item.ID,
		Type:          entry.Type,
		Quantity:      entry.Quantity,
		BalanceAfter:  newOnHand,
		ReservedDelta: reservedDelta,
		ReservedAfter: newReserved,
		OrderID:       entry.OrderID,
		Notes:         entry.Notes,
		ActorID:       entry.ActorID,
	})
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	item.OnHand = newOnHand
	item.Reserved = newReserved
	item.TotalPurchased = item.TotalPurchased.Add(purchased)
	return mv, nil
}

// Replay walks movements oldest first and reports the ledger's counters and any row whose
// balanceAfter does not follow from its predecessor.
func Replay(movements []Movement) (onHand, reserved decimal.Decimal, broken []int64) {
	onHand, reserved = decimal.Zero, decimal.Zero
	for _, m := range movements {
		onHand = onHand.Add(m.OnHandDelta())
		reserved = reserved.Add(m.ReservedDelta)
		if !m.BalanceAfter.Equal(onHand) || !m.ReservedAfter.Equal(reserved) {
			broken = append(broken, m.ID)
			onHand, reserved = m.BalanceAfter, m.ReservedAfter
		}
	}
	return onHand, reserved, broken
}
