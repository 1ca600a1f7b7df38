package inventory

import "github.com/shopspring/decimal"

// StockLevel is the alert classification of an item.
type StockLevel string

const (
	LevelOK       StockLevel = "OK"
	LevelLow      StockLevel = "LOW"
	LevelCritical StockLevel = "CRITICAL"
)

var lowStockFactor = decimal.RequireFromString("1.1")

// Classify is the single stock threshold rule: CRITICAL at or below the minimum,
// LOW below 110% of it.
func Classify(available, minimum decimal.Decimal) StockLevel {
	switch {
	case available.LessThanOrEqual(minimum):
		return LevelCritical
	case available.LessThan(minimum.Mul(lowStockFactor)):
		return LevelLow
	default:
		return LevelOK
	}
}
