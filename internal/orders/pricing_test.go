package orders_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stitchline/stitchline/internal/orders"
)

func TestPriceLine(t *testing.T) {
	p := orders.PriceLine(d("5.25"), d("180"), d("650"), 3)
	assert.True(t, p.FabricCost.Equal(d("945")))
	assert.True(t, p.Stitching.Equal(d("1950")))
	assert.True(t, p.Total.Equal(d("2895")))
	assert.True(t, p.UnitPrice.Equal(d("965")))

	free := orders.PriceLine(d("2"), d("0"), d("0"), 1)
	assert.True(t, free.Total.IsZero())
}

func TestQuoteForSplitsGST(t *testing.T) {
	cases := []struct {
		subtotal, cgst, sgst, total string
	}{
		{"2900", "174", "174", "3248"},
		{"1000", "60", "60", "1120"},
		// 12% of 100.25 is 12.03; the odd paisa lands on SGST
		{"100.25", "6.02", "6.01", "112.28"},
		{"0", "0", "0", "0"},
	}
	for _, tc := range cases {
		q := orders.QuoteFor(d(tc.subtotal))
		assert.True(t, q.CGST.Equal(d(tc.cgst)), "%s cgst %s", tc.subtotal, q.CGST)
		assert.True(t, q.SGST.Equal(d(tc.sgst)), "%s sgst %s", tc.subtotal, q.SGST)
		assert.True(t, q.Total.Equal(d(tc.total)), "%s total %s", tc.subtotal, q.Total)
		assert.True(t, q.Subtotal.Add(q.Tax()).Equal(q.Total))
	}
}

func TestQuoteItemsSumsLines(t *testing.T) {
	q := orders.QuoteItems([]orders.Item{{TotalPrice: d("1400")}, {TotalPrice: d("1500")}})
	assert.True(t, q.Subtotal.Equal(d("2900")))
	assert.True(t, q.Total.Equal(d("3248")))
}
