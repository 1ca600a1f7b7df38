package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// editable rejects orders whose lines and amounts are frozen.
func editable(o Order) error {
	switch o.Status {
	case StatusCancelled:
		return shared.NewError(shared.ErrOrderCancelled, nil, "Order %s is cancelled", o.OrderNumber)
	case StatusDelivered:
		return shared.NewError(shared.ErrInvalidTransition, nil, "Order %s is already delivered", o.OrderNumber)
	}
	return nil
}

// settle reconciles the balance after an amount change. Payments already above the new
// net amount reject the change.
func settle(ctx context.Context, tx TxRepository, o Order) (payments.Account, error) {
	acc, err := payments.Reconcile(ctx, tx, o.ID)
	if err != nil {
		return payments.Account{}, err
	}
	if acc.Balance.IsNegative() {
		paid := acc.Net().Sub(acc.Balance)
		return payments.Account{}, shared.NewError(shared.ErrExceedsBalance,
			map[string]decimal.Decimal{"paid": paid, "net": acc.Net()},
			"Order %s already has ₹%s paid, more than the new amount ₹%s",
			o.OrderNumber, shared.FormatAmount(paid), shared.FormatAmount(acc.Net()))
	}
	return acc, nil
}

func describeItem(it Item) string {
	return fmt.Sprintf("pattern=%d fabric=%d qty=%d meters=%s total=%s",
		it.PatternID, it.FabricID, it.Quantity, it.EstimatedMeters.StringFixed(2), it.TotalPrice.StringFixed(2))
}

// UpdateItem changes the pattern, fabric or quantity of one line. The estimate is
// recomputed, the old reservation released and the new one taken, then the order is
// requoted and its balance reconciled.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, input UpdateItemInput) (order Order, err error) {
	defer func() { s.observer.ObserveOperation("orders.update_item", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermOrdersUpdate); err != nil {
		return Order{}, err
	}
	if input.Quantity < 0 || input.PatternID < 0 || input.FabricID < 0 {
		return Order{}, shared.Validationf("orders: pattern, fabric and quantity must be positive")
	}
	var before, after Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := editable(current); err != nil {
			return err
		}
		old, ok := current.Item(input.ItemID)
		if !ok {
			return shared.NotFoundf("item %d not found in order %s", input.ItemID, current.OrderNumber)
		}
		next := old
		if input.PatternID > 0 {
			next.PatternID = input.PatternID
		}
		if input.FabricID > 0 {
			next.FabricID = input.FabricID
		}
		if input.Quantity > 0 {
			next.Quantity = input.Quantity
		}
		if next.PatternID == old.PatternID && next.FabricID == old.FabricID && next.Quantity == old.Quantity {
			return shared.Validationf("orders: item %d has no changes", old.ID)
		}
		pattern, err := tx.GetPattern(ctx, next.PatternID)
		if err != nil {
			return err
		}
		meters, err := reservation.ComputeRequiredMeters(pattern, next.BodyType, next.Quantity)
		if err != nil {
			return err
		}
		next.EstimatedMeters = meters

		notes := fmt.Sprintf("Item %d of order %s updated", old.ID, current.OrderNumber)
		if input.Notes != "" {
			notes += ": " + input.Notes
		}
		ref := reservation.Ref{OrderID: current.ID, ActorID: actor.ID, Notes: notes}
		fabric, err := s.engine.Rebook(ctx, tx,
			reservation.Requirement{FabricID: old.FabricID, Meters: old.EstimatedMeters},
			reservation.Requirement{FabricID: next.FabricID, Meters: meters}, ref)
		if err != nil {
			return err
		}
		next.price(fabric.UnitPrice)
		if err := tx.UpdateItem(ctx, next); err != nil {
			return fmt.Errorf("orders: update item: %w", err)
		}

		items := make([]Item, len(current.Items))
		for i, it := range current.Items {
			if it.ID == next.ID {
				it = next
			}
			items[i] = it
		}
		quote := QuoteItems(items)
		if current.Discount.GreaterThan(quote.Total) {
			return shared.Validationf("orders: discount %s exceeds new total %s", current.Discount.StringFixed(2), quote.Total.StringFixed(2))
		}
		if err := tx.UpdateAmounts(ctx, current.ID, quote, current.Discount); err != nil {
			return fmt.Errorf("orders: update amounts: %w", err)
		}
		if _, err := settle(ctx, tx, current); err != nil {
			return err
		}
		before, after = old, next
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     current.ID,
			Entity:      "order_item",
			EntityID:    old.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeItemUpdated,
			FieldName:   "item",
			OldValue:    describeItem(old),
			NewValue:    describeItem(next),
			Description: fmt.Sprintf("%s. Total ₹%s to ₹%s", notes, shared.FormatAmount(current.TotalAmount), shared.FormatAmount(quote.Total)),
		})
	})
	if err != nil {
		s.logRejection("item update rejected", input.OrderID, err)
		return Order{}, err
	}
	s.logger.Info("order item updated",
		slog.Int64("order_id", input.OrderID),
		slog.Int64("item_id", input.ItemID),
		slog.Int64("from_fabric", before.FabricID),
		slog.Int64("to_fabric", after.FabricID),
		slog.String("meters", after.EstimatedMeters.StringFixed(2)),
	)
	return s.repo.Get(ctx, input.OrderID)
}

// UpdateDiscount replaces the discount and its reason and reconciles the balance.
func (s *Service) UpdateDiscount(ctx context.Context, actor shared.Actor, input DiscountInput) (order Order, err error) {
	defer func() { s.observer.ObserveOperation("orders.update_discount", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermOrdersUpdate); err != nil {
		return Order{}, err
	}
	if input.Discount.IsNegative() {
		return Order{}, shared.Validationf("orders: discount must be >= 0")
	}
	reason := strings.TrimSpace(input.Reason)
	var old decimal.Decimal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := editable(current); err != nil {
			return err
		}
		if input.Discount.GreaterThan(current.TotalAmount) {
			return shared.NewError(shared.ErrValidation,
				map[string]decimal.Decimal{"discount": input.Discount, "total": current.TotalAmount},
				"Discount ₹%s exceeds order total ₹%s", shared.FormatAmount(input.Discount), shared.FormatAmount(current.TotalAmount))
		}
		old = current.Discount
		if err := tx.UpdateDiscount(ctx, current.ID, input.Discount, reason); err != nil {
			return fmt.Errorf("orders: update discount: %w", err)
		}
		if _, err := settle(ctx, tx, current); err != nil {
			return err
		}
		desc := fmt.Sprintf("Discount changed from ₹%s to ₹%s", shared.FormatAmount(old), shared.FormatAmount(input.Discount))
		if reason != "" {
			desc += " (Reason: " + reason + ")"
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     current.ID,
			Entity:      "order",
			EntityID:    current.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeDiscountUpdated,
			FieldName:   "discount",
			OldValue:    old.StringFixed(2),
			NewValue:    input.Discount.StringFixed(2),
			Description: desc,
		})
	})
	if err != nil {
		s.logRejection("discount update rejected", input.OrderID, err)
		return Order{}, err
	}
	s.logger.Info("order discount updated",
		slog.Int64("order_id", input.OrderID),
		slog.String("from", old.StringFixed(2)),
		slog.String("to", input.Discount.StringFixed(2)),
	)
	return s.repo.Get(ctx, input.OrderID)
}
