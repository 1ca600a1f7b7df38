package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementPurchase records stock received from a supplier.
	MovementPurchase MovementType = "PURCHASE"
	// MovementOrderReserved records stock committed to an order. On-hand is unchanged.
	MovementOrderReserved MovementType = "ORDER_RESERVED"
	// MovementOrderUsed records fabric consumed when an order is delivered.
	MovementOrderUsed MovementType = "ORDER_USED"
	// MovementOrderCancelled records a reservation returning to availability. On-hand is unchanged.
	MovementOrderCancelled MovementType = "ORDER_CANCELLED"
	// MovementAdjustment records a manual correction.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReturn records fabric returned to stock.
	MovementReturn MovementType = "RETURN"
	// MovementWastage records fabric written off.
	MovementWastage MovementType = "WASTAGE"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchase, MovementOrderReserved, MovementOrderUsed, MovementOrderCancelled,
		MovementAdjustment, MovementReturn, MovementWastage:
		return true
	}
	return false
}

// ReservationOnly reports whether the movement narrates a change of reserved stock only.
func (t MovementType) ReservationOnly() bool {
	return t == MovementOrderReserved || t == MovementOrderCancelled
}

// FabricItem identifies a fabric SKU with its running counters.
type FabricItem struct {
	ID               int64
	Code             string
	Name             string
	Unit             string
	OnHand           decimal.Decimal
	Reserved         decimal.Decimal
	MinimumThreshold decimal.Decimal
	UnitPrice        decimal.Decimal
	TotalPurchased   decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available is the quantity free to promise to new orders.
func (f FabricItem) Available() decimal.Decimal {
	return f.OnHand.Sub(f.Reserved)
}

// Level classifies the item's availability against its minimum threshold.
func (f FabricItem) Level() StockLevel {
	return Classify(f.Available(), f.MinimumThreshold)
}

// Movement is an immutable ledger row.
type Movement struct {
	ID            int64
	FabricID      int64
	Type          MovementType
	Quantity      decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReservedDelta decimal.Decimal
	ReservedAfter decimal.Decimal
	OrderID       int64
	Notes         string
	ActorID       int64
	CreatedAt     time.Time
}

// OnHandDelta is the change to on-hand stock narrated by the row.
func (m Movement) OnHandDelta() decimal.Decimal {
	if m.Type.ReservationOnly() {
		return decimal.Zero
	}
	return m.Quantity
}

// Entry describes a movement to append. Quantity is signed: restock positive,
// reservation and consumption negative.
type Entry struct {
	Type          MovementType
	Quantity      decimal.Decimal
	ReservedDelta decimal.Decimal
	OrderID       int64
	Notes         string
	ActorID       int64
}

// CreateFabricInput registers a new fabric SKU.
type CreateFabricInput struct {
	Code             string
	Name             string
	Unit             string
	OpeningStock     decimal.Decimal
	MinimumThreshold decimal.Decimal
	UnitPrice        decimal.Decimal
}

// AdjustInput describes a manual stock change.
type AdjustInput struct {
	FabricID int64
	Type     MovementType
	Quantity decimal.Decimal
	Notes    string
}

// MovementFilter pages through an item's history, newest first.
type MovementFilter struct {
	FabricID int64
	BeforeID int64
	Limit    int
}

// Verification reports whether an item's counters agree with its ledger.
type Verification struct {
	FabricID         int64
	Movements        int
	OnHand           decimal.Decimal
	Reserved         decimal.Decimal
	LedgerOnHand     decimal.Decimal
	LedgerReserved   decimal.Decimal
	BrokenChainAtIDs []int64
}

// Consistent is true when counters match the ledger and every balanceAfter follows its predecessor.
func (v Verification) Consistent() bool {
	return v.OnHand.Equal(v.LedgerOnHand) && v.Reserved.Equal(v.LedgerReserved) && len(v.BrokenChainAtIDs) == 0
}

// StockStatus pairs an item with its classification.
type StockStatus struct {
	Item  FabricItem
	Level StockLevel
}

// ErrNoMovements indicates an item without ledger rows.
var ErrNoMovements = errors.New("inventory: no movements")
