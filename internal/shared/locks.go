package shared

import "fmt"

// StockAlertLockKey builds the redis key guarding the stock alert scan.
func StockAlertLockKey() string {
	return "stitchline:jobs:stock-alerts:lock"
}

// LedgerVerifyLockKey builds the redis key guarding the nightly ledger verification.
func LedgerVerifyLockKey() string {
	return "stitchline:jobs:ledger-verify:lock"
}

// IdempotencyKey namespaces a client supplied key per module.
func IdempotencyKey(module, key string) string {
	return fmt.Sprintf("stitchline:idem:%s:%s", module, key)
}
