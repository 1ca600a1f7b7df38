package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

// MaxInstallments bounds a generated plan.
const MaxInstallments = 12

// ScheduledInstallment is one row of a generated plan before it is stored.
type ScheduledInstallment struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

// Schedule splits balance into count installments. The first defaults to an equal share;
// the others share the remainder equally, with the rounding residue on the last row.
func Schedule(balance decimal.Decimal, count int, first *decimal.Decimal, freq Frequency, start time.Time) ([]ScheduledInstallment, error) {
	if count < 1 || count > MaxInstallments {
		return nil, shared.Validationf("payments: installment count must be between 1 and %d", MaxInstallments)
	}
	if !balance.IsPositive() {
		return nil, shared.Validationf("payments: nothing outstanding to schedule")
	}
	if _, err := dueDate(start, freq, 0); err != nil {
		return nil, err
	}

	firstAmount := balance.Div(decimal.NewFromInt(int64(count))).Round(2)
	if first != nil {
		if !first.IsPositive() {
			return nil, shared.Validationf("payments: first installment must be positive")
		}
		firstAmount = first.Round(2)
	}
	if count == 1 {
		if first != nil && !firstAmount.Equal(balance) {
			return nil, shared.NewError(shared.ErrValidation,
				map[string]decimal.Decimal{"amount": firstAmount, "balance": balance},
				"A single installment must cover the balance %s, got %s", shared.FormatAmount(balance), shared.FormatAmount(firstAmount))
		}
		firstAmount = balance
	}
	if firstAmount.GreaterThan(balance) {
		return nil, shared.NewError(shared.ErrExceedsBalance,
			map[string]decimal.Decimal{"amount": firstAmount, "balance": balance},
			"First installment %s exceeds balance %s", shared.FormatAmount(firstAmount), shared.FormatAmount(balance))
	}
	if count > 1 && firstAmount.Equal(balance) {
		return nil, shared.Validationf("payments: first installment leaves nothing for the remaining %d", count-1)
	}

	out := make([]ScheduledInstallment, 0, count)
	due, _ := dueDate(start, freq, 0)
	out = append(out, ScheduledInstallment{Amount: firstAmount, DueDate: due})
	if count == 1 {
		return out, nil
	}
	remainder := balance.Sub(firstAmount)
	share := remainder.Div(decimal.NewFromInt(int64(count - 1))).Round(2)
	allocated := decimal.Zero
	for i := 1; i < count; i++ {
		amount := share
		if i == count-1 {
			amount = remainder.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		due, _ := dueDate(start, freq, i)
		out = append(out, ScheduledInstallment{Amount: amount, DueDate: due})
	}
	return out, nil
}

// dueDate returns the date of the i-th installment. Monthly steps count from start
// and clamp to the end of shorter months.
func dueDate(start time.Time, freq Frequency, i int) (time.Time, error) {
	switch freq {
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*i), nil
	case FrequencyBiweekly:
		return start.AddDate(0, 0, 14*i), nil
	case FrequencyMonthly:
		return addMonthsClamped(start, i), nil
	}
	return time.Time{}, shared.Validationf("payments: unknown frequency %q", freq)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// StatusFor derives an installment's status from what has been paid against it.
func StatusFor(amount, paid decimal.Decimal, due, now time.Time) InstallmentStatus {
	switch {
	case paid.IsZero() && now.After(due):
		return StatusOverdue
	case paid.IsZero():
		return StatusPending
	case paid.GreaterThanOrEqual(amount):
		return StatusPaid
	default:
		return StatusPartial
	}
}
