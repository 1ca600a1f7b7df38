package payments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

// TxRepository exposes the installment ledger of orders inside one transaction.
type TxRepository interface {
	LockAccount(ctx context.Context, orderID int64) (Account, error)
	PaidTotals(ctx context.Context, orderID int64) (PaidTotals, error)
	InstallmentsForUpdate(ctx context.Context, orderID int64) ([]Installment, error)
	LockInstallment(ctx context.Context, id int64) (Installment, error)
	InsertInstallment(ctx context.Context, inst Installment) (Installment, error)
	UpdateInstallment(ctx context.Context, inst Installment) error
	UpdateBalance(ctx context.Context, orderID int64, advance, balance decimal.Decimal) error
	InsertAudit(ctx context.Context, rec shared.AuditRecord) error
}

// Totals is the single aggregation the balance is derived from.
func Totals(rows []Installment) PaidTotals {
	t := PaidTotals{Paid: decimal.Zero, Advance: decimal.Zero}
	for _, r := range rows {
		if r.Number > t.MaxNumber {
			t.MaxNumber = r.Number
		}
		if r.Status == StatusCancelled {
			continue
		}
		t.Paid = t.Paid.Add(r.PaidAmount)
		if r.IsAdvance {
			t.Advance = t.Advance.Add(r.PaidAmount)
		} else {
			t.Scheduled++
		}
	}
	return t
}

// Reconcile recomputes advance and balance of an order from its installments and stores them.
func Reconcile(ctx context.Context, tx TxRepository, orderID int64) (Account, error) {
	acc, err := tx.LockAccount(ctx, orderID)
	if err != nil {
		return Account{}, err
	}
	totals, err := tx.PaidTotals(ctx, orderID)
	if err != nil {
		return Account{}, fmt.Errorf("payments: paid totals: %w", err)
	}
	acc.AdvancePaid = totals.Advance
	acc.Balance = acc.Net().Sub(totals.Paid)
	if err := tx.UpdateBalance(ctx, orderID, acc.AdvancePaid, acc.Balance); err != nil {
		return Account{}, fmt.Errorf("payments: update balance: %w", err)
	}
	return acc, nil
}

// RecordAdvance stores the advance taken at order creation as installment #1.
// A zero advance records nothing.
func RecordAdvance(ctx context.Context, tx TxRepository, orderID int64, amount decimal.Decimal, mode Mode, at time.Time) (*Installment, error) {
	if amount.IsZero() {
		return nil, nil
	}
	if amount.IsNegative() {
		return nil, shared.Validationf("payments: advance must be >= 0")
	}
	if mode == "" {
		mode = ModeCash
	}
	totals, err := tx.PaidTotals(ctx, orderID)
	if err != nil {
		return nil, err
	}
	inst, err := tx.InsertInstallment(ctx, Installment{
		OrderID:    orderID,
		Number:     totals.MaxNumber + 1,
		Amount:     amount,
		PaidAmount: amount,
		Status:     StatusPaid,
		DueDate:    at,
		PaidDate:   &at,
		Mode:       mode,
		Notes:      "Advance payment on order creation",
		IsAdvance:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: insert advance: %w", err)
	}
	return &inst, nil
}

// ReallocateOverpayment moves whatever the original order holds above its own net amount
// to the split order. Paid rows of the original are reduced newest first and a single
// PAID installment is created on the split order.
func ReallocateOverpayment(ctx context.Context, tx TxRepository, originalID, splitID, actorID int64, now time.Time) (Reallocation, error) {
	result := Reallocation{OriginalOrderID: originalID, SplitOrderID: splitID, Amount: decimal.Zero}
	orig, err := tx.LockAccount(ctx, originalID)
	if err != nil {
		return result, err
	}
	split, err := tx.LockAccount(ctx, splitID)
	if err != nil {
		return result, err
	}
	totals, err := tx.PaidTotals(ctx, originalID)
	if err != nil {
		return result, err
	}
	over := totals.Paid.Sub(orig.Net())
	if over.IsPositive() {
		if over.GreaterThan(split.Net()) {
			return result, shared.NewError(shared.ErrExceedsBalance,
				map[string]decimal.Decimal{"overpayment": over, "split_total": split.Net()},
				"Overpayment %s exceeds split order total %s", shared.FormatAmount(over), shared.FormatAmount(split.Net()))
		}
		rows, err := tx.InstallmentsForUpdate(ctx, originalID)
		if err != nil {
			return result, err
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Number > rows[j].Number })
		remaining := over
		var mode Mode
		for _, row := range rows {
			if !remaining.IsPositive() {
				break
			}
			if row.Status == StatusCancelled || !row.PaidAmount.IsPositive() {
				continue
			}
			take := decimal.Min(remaining, row.PaidAmount)
			if mode == "" {
				mode = row.Mode
			}
			row.PaidAmount = row.PaidAmount.Sub(take)
			row.Amount = decimal.Max(row.Amount.Sub(take), decimal.Zero)
			note := fmt.Sprintf("%s moved to order %s", shared.FormatAmount(take), split.OrderNumber)
			if row.PaidAmount.IsZero() {
				row.Status = StatusCancelled
			}
			row.Notes = appendNote(row.Notes, note)
			if err := tx.UpdateInstallment(ctx, row); err != nil {
				return result, fmt.Errorf("payments: reduce installment: %w", err)
			}
			remaining = remaining.Sub(take)
		}

		if mode == "" {
			mode = ModeCash
		}
		splitTotals, err := tx.PaidTotals(ctx, splitID)
		if err != nil {
			return result, err
		}
		inst, err := tx.InsertInstallment(ctx, Installment{
			OrderID:    splitID,
			Number:     splitTotals.MaxNumber + 1,
			Amount:     over,
			PaidAmount: over,
			Status:     StatusPaid,
			DueDate:    now,
			PaidDate:   &now,
			Mode:       mode,
			Notes:      fmt.Sprintf("Reallocated from order %s", orig.OrderNumber),
		})
		if err != nil {
			return result, fmt.Errorf("payments: insert reallocated installment: %w", err)
		}
		result.Amount = over
		result.Installment = &inst
		for _, id := range []int64{originalID, splitID} {
			if err := tx.InsertAudit(ctx, shared.AuditRecord{
				OrderID:     id,
				Entity:      "order",
				EntityID:    id,
				ActorID:     actorID,
				ChangeType:  shared.ChangePaymentReallocated,
				Description: fmt.Sprintf("Overpayment of ₹%s reallocated from %s to %s", shared.FormatAmount(over), orig.OrderNumber, split.OrderNumber),
			}); err != nil {
				return result, err
			}
		}
	}
	if _, err := Reconcile(ctx, tx, originalID); err != nil {
		return result, err
	}
	if _, err := Reconcile(ctx, tx, splitID); err != nil {
		return result, err
	}
	return result, nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
