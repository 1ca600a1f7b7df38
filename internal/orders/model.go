package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/reservation"
)

// Status is a stage of the tailoring workflow.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusMaterialSelected Status = "MATERIAL_SELECTED"
	StatusCutting          Status = "CUTTING"
	StatusStitching        Status = "STITCHING"
	StatusFinishing        Status = "FINISHING"
	StatusReady            Status = "READY"
	StatusDelivered        Status = "DELIVERED"
	StatusCancelled        Status = "CANCELLED"
)

// Order is a customer order with its garments.
type Order struct {
	ID             int64           `json:"id"`
	OrderNumber    string          `json:"order_number"`
	CustomerID     int64           `json:"customer_id"`
	Status         Status          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	CGST           decimal.Decimal `json:"cgst"`
	SGST           decimal.Decimal `json:"sgst"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Discount       decimal.Decimal `json:"discount"`
	DiscountReason string          `json:"discount_reason,omitempty"`
	AdvancePaid    decimal.Decimal `json:"advance_paid"`
	BalanceAmount  decimal.Decimal `json:"balance_amount"`
	DeliveryDate   *time.Time      `json:"delivery_date,omitempty"`
	CompletedDate  *time.Time      `json:"completed_date,omitempty"`
	ParentOrderID  *int64          `json:"parent_order_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []Item          `json:"items"`
}

// Quote returns the stored tax breakdown.
func (o Order) Quote() Quote {
	return Quote{Subtotal: o.Subtotal, CGST: o.CGST, SGST: o.SGST, Total: o.TotalAmount}
}

// Item returns the line with the given id.
func (o Order) Item(id int64) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Item is one garment line of an order.
type Item struct {
	ID               int64                `json:"id"`
	OrderID          int64                `json:"order_id"`
	PatternID        int64                `json:"pattern_id"`
	FabricID         int64                `json:"fabric_id"`
	BodyType         reservation.BodyType `json:"body_type"`
	Quantity         int                  `json:"quantity"`
	EstimatedMeters  decimal.Decimal      `json:"estimated_meters"`
	ActualMetersUsed *decimal.Decimal     `json:"actual_meters_used,omitempty"`
	Wastage          *decimal.Decimal     `json:"wastage,omitempty"`
	FabricCost       decimal.Decimal      `json:"fabric_cost"`
	StitchingCharge  decimal.Decimal      `json:"stitching_charge"`
	UnitPrice        decimal.Decimal      `json:"unit_price"`
	TotalPrice       decimal.Decimal      `json:"total_price"`
}

// price fills the money fields of the line from the fabric's price per meter.
func (it *Item) price(pricePerMeter decimal.Decimal) {
	p := PriceLine(it.EstimatedMeters, pricePerMeter, it.StitchingCharge, it.Quantity)
	it.FabricCost, it.UnitPrice, it.TotalPrice = p.FabricCost, p.UnitPrice, p.Total
}

// ItemIDs lists the ids of the order's items.
func (o Order) ItemIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ID)
	}
	return ids
}
