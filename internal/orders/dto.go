package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/reservation"
)

// CreateItemInput describes one garment of a new order. The fabric is charged from the
// ledger's price per meter; StitchingCharge is the labour per piece.
type CreateItemInput struct {
	PatternID       int64
	FabricID        int64
	BodyType        reservation.BodyType
	Quantity        int
	StitchingCharge decimal.Decimal
}

// CreateInput describes a new order.
type CreateInput struct {
	CustomerID     int64
	Items          []CreateItemInput
	Discount       decimal.Decimal
	DiscountReason string
	AdvancePaid    decimal.Decimal
	AdvanceMode    payments.Mode
	DeliveryDate   *time.Time
	Notes          string
}

// UpdateItemInput changes the pattern, fabric or quantity of one line. Zero values keep
// the current value.
type UpdateItemInput struct {
	OrderID   int64
	ItemID    int64
	PatternID int64
	FabricID  int64
	Quantity  int
	Notes     string
}

// DiscountInput replaces the discount of an order.
type DiscountInput struct {
	OrderID  int64
	Discount decimal.Decimal
	Reason   string
}

// ItemUsage overrides what an item actually consumed.
type ItemUsage struct {
	ItemID           int64
	ActualMetersUsed *decimal.Decimal
	Wastage          *decimal.Decimal
}

// TransitionInput moves an order to another status.
type TransitionInput struct {
	OrderID int64
	To      Status
	Usage   []ItemUsage
	Notes   string
}

// SplitInput moves some items of an order into a new order.
type SplitInput struct {
	OrderID      int64
	ItemIDs      []int64
	DeliveryDate *time.Time
	Notes        string
}

// SplitResult returns both halves of a split.
type SplitResult struct {
	Original    Order
	Split       Order
	Reallocated decimal.Decimal
}

// ListFilter pages orders newest first.
type ListFilter struct {
	Status     Status
	CustomerID int64
	BeforeID   int64
	Limit      int
}
