package orders

import (
	"github.com/shopspring/decimal"
)

// GSTRate applies to garments and is collected as equal CGST and SGST halves.
var GSTRate = decimal.RequireFromString("0.12")

var two = decimal.NewFromInt(2)

// LinePrice is the priced form of one order line.
type LinePrice struct {
	FabricCost decimal.Decimal
	Stitching  decimal.Decimal
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
}

// PriceLine charges the estimated meters at the fabric's price per meter plus the
// stitching charge per piece.
func PriceLine(meters, pricePerMeter, stitchingCharge decimal.Decimal, quantity int) LinePrice {
	qty := decimal.NewFromInt(int64(quantity))
	fabric := meters.Mul(pricePerMeter).Round(2)
	stitching := stitchingCharge.Mul(qty).Round(2)
	total := fabric.Add(stitching)
	unit := decimal.Zero
	if quantity > 0 {
		unit = total.Div(qty).Round(2)
	}
	return LinePrice{FabricCost: fabric, Stitching: stitching, UnitPrice: unit, Total: total}
}

// Quote is the tax breakdown of an order amount.
type Quote struct {
	Subtotal decimal.Decimal
	CGST     decimal.Decimal
	SGST     decimal.Decimal
	Total    decimal.Decimal
}

// Tax is CGST plus SGST.
func (q Quote) Tax() decimal.Decimal {
	return q.CGST.Add(q.SGST)
}

// QuoteFor adds GST to subtotal. SGST takes the rounding residue so the halves
// always add up to the tax.
func QuoteFor(subtotal decimal.Decimal) Quote {
	subtotal = subtotal.Round(2)
	gst := subtotal.Mul(GSTRate).Round(2)
	cgst := gst.Div(two).Round(2)
	return Quote{
		Subtotal: subtotal,
		CGST:     cgst,
		SGST:     gst.Sub(cgst),
		Total:    subtotal.Add(gst),
	}
}

// QuoteItems prices the sum of the items' line totals.
func QuoteItems(items []Item) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	return QuoteFor(subtotal)
}
