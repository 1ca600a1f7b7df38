package payments

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestScheduleEqualMonthly(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	rows, err := Schedule(d("9000"), 3, nil, FrequencyMonthly, start)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.True(t, r.Amount.Equal(d("3000")), r.Amount.String())
	}
	assert.Equal(t, start, rows[0].DueDate)
	assert.Equal(t, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC), rows[1].DueDate)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), rows[2].DueDate)
}

func TestScheduleResidueOnLastRow(t *testing.T) {
	rows, err := Schedule(d("1000"), 3, nil, FrequencyWeekly, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Amount.Equal(d("333.33")))
	assert.True(t, rows[1].Amount.Equal(d("333.34")))
	assert.True(t, rows[2].Amount.Equal(d("333.33")))
	sum := rows[0].Amount.Add(rows[1].Amount).Add(rows[2].Amount)
	assert.True(t, sum.Equal(d("1000")))
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), rows[2].DueDate)
}

func TestScheduleExplicitFirstAmount(t *testing.T) {
	first := d("4000")
	rows, err := Schedule(d("10000"), 4, &first, FrequencyBiweekly, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, rows[0].Amount.Equal(d("4000")))
	for _, r := range rows[1:] {
		assert.True(t, r.Amount.Equal(d("2000")))
	}
	assert.Equal(t, time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC), rows[3].DueDate)
}

func TestScheduleRejections(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tooBig := d("6000")
	whole := d("5000")

	_, err := Schedule(d("5000"), 0, nil, FrequencyMonthly, start)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Schedule(d("5000"), MaxInstallments+1, nil, FrequencyMonthly, start)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Schedule(d("0"), 2, nil, FrequencyMonthly, start)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Schedule(d("5000"), 2, nil, "YEARLY", start)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = Schedule(d("5000"), 2, &tooBig, FrequencyMonthly, start)
	assert.ErrorIs(t, err, shared.ErrExceedsBalance)
	_, err = Schedule(d("5000"), 2, &whole, FrequencyMonthly, start)
	assert.ErrorIs(t, err, shared.ErrValidation)

}

func TestScheduleSingleInstallmentCoversBalance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	short := d("4500")
	whole := d("5000")

	_, err := Schedule(d("5000"), 1, &short, FrequencyMonthly, start)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.True(t, shared.AmountsOf(err)["amount"].Equal(d("4500")))

	rows, err := Schedule(d("5000"), 1, &whole, FrequencyMonthly, start)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(d("5000")))

	rows, err = Schedule(d("5000"), 1, nil, FrequencyMonthly, start)
	require.NoError(t, err)
	assert.True(t, rows[0].Amount.Equal(d("5000")))
}

func TestAddMonthsClamped(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC), addMonthsClamped(jan31, 1))
	assert.Equal(t, time.Date(2025, 3, 31, 9, 30, 0, 0, time.UTC), addMonthsClamped(jan31, 2))
	assert.Equal(t, time.Date(2025, 4, 30, 9, 30, 0, 0, time.UTC), addMonthsClamped(jan31, 3))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), addMonthsClamped(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 2))
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), addMonthsClamped(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 1))
}

func TestStatusFor(t *testing.T) {
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	before, after := due.Add(-time.Hour), due.Add(time.Hour)
	assert.Equal(t, StatusPending, StatusFor(d("100"), d("0"), due, before))
	assert.Equal(t, StatusOverdue, StatusFor(d("100"), d("0"), due, after))
	assert.Equal(t, StatusPartial, StatusFor(d("100"), d("40"), due, after))
	assert.Equal(t, StatusPaid, StatusFor(d("100"), d("100"), due, before))
}

func TestTotalsSkipsCancelled(t *testing.T) {
	rows := []Installment{
		{Number: 1, PaidAmount: d("2000"), Status: StatusPaid, IsAdvance: true},
		{Number: 2, PaidAmount: d("1500"), Status: StatusPartial},
		{Number: 3, PaidAmount: d("0"), Status: StatusPending},
		{Number: 4, PaidAmount: d("700"), Status: StatusCancelled},
	}
	totals := Totals(rows)
	assert.True(t, totals.Paid.Equal(d("3500")))
	assert.True(t, totals.Advance.Equal(d("2000")))
	assert.Equal(t, 2, totals.Scheduled)
	assert.Equal(t, 4, totals.MaxNumber)
}
