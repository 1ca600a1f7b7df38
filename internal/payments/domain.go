package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus captures the settlement state of one installment.
type InstallmentStatus string

const (
	StatusPending   InstallmentStatus = "PENDING"
	StatusPartial   InstallmentStatus = "PARTIAL"
	StatusPaid      InstallmentStatus = "PAID"
	StatusOverdue   InstallmentStatus = "OVERDUE"
	StatusCancelled InstallmentStatus = "CANCELLED"
)

// Mode is how the customer paid.
type Mode string

const (
	ModeCash         Mode = "CASH"
	ModeUPI          Mode = "UPI"
	ModeCard         Mode = "CARD"
	ModeBankTransfer Mode = "BANK_TRANSFER"
	ModeCheque       Mode = "CHEQUE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeCard, ModeBankTransfer, ModeCheque:
		return true
	}
	return false
}

// Frequency spaces the due dates of a generated plan.
type Frequency string

const (
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
)

// Installment is one scheduled or recorded payment against an order.
type Installment struct {
	ID         int64
	OrderID    int64
	Number     int
	Amount     decimal.Decimal
	PaidAmount decimal.Decimal
	Status     InstallmentStatus
	DueDate    time.Time
	PaidDate   *time.Time
	Mode       Mode
	Reference  string
	Notes      string
	IsAdvance  bool
	CreatedAt  time.Time
}

// Account is the money view of an order.
type Account struct {
	OrderID     int64
	OrderNumber string
	Cancelled   bool
	Total       decimal.Decimal
	Discount    decimal.Decimal
	AdvancePaid decimal.Decimal
	Balance     decimal.Decimal
}

// Net is the amount the customer owes in total.
func (a Account) Net() decimal.Decimal {
	return a.Total.Sub(a.Discount)
}

// PaidTotals aggregates the installments of one order. Cancelled rows are excluded
// from the sums; MaxNumber covers every row.
type PaidTotals struct {
	Paid      decimal.Decimal
	Advance   decimal.Decimal
	Scheduled int
	MaxNumber int
}

// PlanInput requests an installment schedule for the outstanding balance.
type PlanInput struct {
	OrderID     int64
	Count       int
	FirstAmount *decimal.Decimal
	Frequency   Frequency
	StartDate   time.Time
}

// PaymentInput records money received.
type PaymentInput struct {
	OrderID        int64
	Amount         decimal.Decimal
	Mode           Mode
	Reference      string
	Notes          string
	IdempotencyKey string
}

// UpdateInput edits the paid amount of an existing installment.
type UpdateInput struct {
	InstallmentID int64
	PaidAmount    decimal.Decimal
	Mode          Mode
	Reference     string
}

// BalanceCheck compares the stored balance with the one derived from installments.
type BalanceCheck struct {
	OrderID         int64
	StoredBalance   decimal.Decimal
	ComputedBalance decimal.Decimal
	StoredAdvance   decimal.Decimal
	ComputedAdvance decimal.Decimal
	PaidTotal       decimal.Decimal
	NegativeBalance bool
	OverpaidBy      decimal.Decimal
}

// Consistent is true when stored values match the installments and nothing is overpaid.
func (c BalanceCheck) Consistent() bool {
	return c.StoredBalance.Equal(c.ComputedBalance) && c.StoredAdvance.Equal(c.ComputedAdvance) && !c.NegativeBalance
}

// Reallocation reports money moved from an original order to its split.
type Reallocation struct {
	OriginalOrderID int64
	SplitOrderID    int64
	Amount          decimal.Decimal
	Installment     *Installment
}
