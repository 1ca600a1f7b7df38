package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// POStatus enumerates purchase order states.
type POStatus string

const (
	POStatusPending   POStatus = "PENDING"
	POStatusPartial   POStatus = "PARTIAL"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// settlementEpsilon is the balance below which a PO counts as paid.
var settlementEpsilon = decimal.RequireFromString("0.01")

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID            int64           `json:"id"`
	PONumber      string          `json:"po_number"`
	SupplierID    int64           `json:"supplier_id"`
	Status        POStatus        `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []POItem        `json:"items"`
}

// POItem is one line of a purchase order. FabricID is zero for non-fabric lines.
type POItem struct {
	ID               int64           `json:"id"`
	POID             int64           `json:"po_id"`
	FabricID         int64           `json:"fabric_id,omitempty"`
	Description      string          `json:"description"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

// FullyReceived reports whether the line has arrived completely.
func (i POItem) FullyReceived() bool {
	return i.ReceivedQuantity.GreaterThanOrEqual(i.OrderedQuantity)
}

// StatusFor derives the status from the receipt axis and the payment axis.
// RECEIVED needs both complete; any progress on either gives PARTIAL.
func StatusFor(items []POItem, paid, balance decimal.Decimal) POStatus {
	allReceived := len(items) > 0
	anyReceived := false
	for _, it := range items {
		if !it.FullyReceived() {
			allReceived = false
		}
		if it.ReceivedQuantity.IsPositive() {
			anyReceived = true
		}
	}
	paymentComplete := balance.LessThanOrEqual(settlementEpsilon)
	switch {
	case allReceived && paymentComplete:
		return POStatusReceived
	case anyReceived || paid.IsPositive():
		return POStatusPartial
	default:
		return POStatusPending
	}
}

// CreateItemInput is one line of a new purchase order.
type CreateItemInput struct {
	FabricID    int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// CreateInput creates a purchase order.
type CreateInput struct {
	SupplierID int64
	Items      []CreateItemInput
	Notes      string
}

// ItemReceipt is a quantity arriving for one PO line.
type ItemReceipt struct {
	POItemID int64
	Quantity decimal.Decimal
}

// ReceiveInput records goods and optionally money sent to the supplier.
type ReceiveInput struct {
	POID           int64
	Items          []ItemReceipt
	PaymentAmount  decimal.Decimal
	IdempotencyKey string
}

// PaymentInput records money paid to the supplier.
type PaymentInput struct {
	POID           int64
	Amount         decimal.Decimal
	IdempotencyKey string
}
