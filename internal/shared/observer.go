package shared

// OperationObserver receives the outcome of core operations, typically for metrics.
type OperationObserver interface {
	ObserveOperation(operation string, err error)
}

// NopObserver discards observations.
type NopObserver struct{}

// ObserveOperation does nothing.
func (NopObserver) ObserveOperation(string, error) {}
