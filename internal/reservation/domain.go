package reservation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

// BodyType selects the pattern adjustment applied per garment.
type BodyType string

const (
	BodyTypeSlim    BodyType = "SLIM"
	BodyTypeRegular BodyType = "REGULAR"
	BodyTypeLarge   BodyType = "LARGE"
	BodyTypeXL      BodyType = "XL"
)

// Pattern is a garment template with its fabric consumption.
type Pattern struct {
	ID                int64
	Name              string
	BaseMeters        decimal.Decimal
	SlimAdjustment    decimal.Decimal
	RegularAdjustment decimal.Decimal
	LargeAdjustment   decimal.Decimal
	XLAdjustment      decimal.Decimal
	CreatedAt         time.Time
}

// Adjustment returns the extra meters for bt. An empty body type means REGULAR.
func (p Pattern) Adjustment(bt BodyType) (decimal.Decimal, error) {
	switch bt {
	case BodyTypeSlim:
		return p.SlimAdjustment, nil
	case BodyTypeRegular, "":
		return p.RegularAdjustment, nil
	case BodyTypeLarge:
		return p.LargeAdjustment, nil
	case BodyTypeXL:
		return p.XLAdjustment, nil
	}
	return decimal.Zero, shared.Validationf("reservation: unknown body type %q", bt)
}

// ComputeRequiredMeters is (base + adjustment) × quantity.
func ComputeRequiredMeters(p Pattern, bt BodyType, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, shared.Validationf("reservation: quantity must be positive")
	}
	adj, err := p.Adjustment(bt)
	if err != nil {
		return decimal.Zero, err
	}
	per := p.BaseMeters.Add(adj)
	if !per.IsPositive() {
		return decimal.Zero, shared.Validationf("reservation: pattern %s yields no fabric for %s", p.Name, bt)
	}
	return per.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// Requirement is the fabric needed by one order line.
type Requirement struct {
	FabricID int64
	Meters   decimal.Decimal
}

// Ref ties a movement to its order and actor.
type Ref struct {
	OrderID int64
	ActorID int64
	Notes   string
}

// CreatePatternInput registers a pattern.
type CreatePatternInput struct {
	Name              string
	BaseMeters        decimal.Decimal
	SlimAdjustment    decimal.Decimal
	RegularAdjustment decimal.Decimal
	LargeAdjustment   decimal.Decimal
	XLAdjustment      decimal.Decimal
}
