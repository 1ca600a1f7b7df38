package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds returned by the core. Callers match them with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a reservation or deduction larger than available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition indicates an illegal order status change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrOrderCancelled indicates a mutation against a cancelled order.
	ErrOrderCancelled = errors.New("order cancelled")
	// ErrExceedsBalance indicates a payment larger than the remaining balance.
	ErrExceedsBalance = errors.New("exceeds balance")
	// ErrPlanAlreadyExists indicates a duplicate installment plan.
	ErrPlanAlreadyExists = errors.New("installment plan already exists")
	// ErrForbidden indicates the actor lacks the capability.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

var kindNames = map[error]string{
	ErrNotFound:          "NotFound",
	ErrInsufficientStock: "InsufficientStock",
	ErrInvalidTransition: "InvalidTransition",
	ErrOrderCancelled:    "OrderCancelled",
	ErrExceedsBalance:    "ExceedsBalance",
	ErrPlanAlreadyExists: "PlanAlreadyExists",
	ErrForbidden:         "Forbidden",
	ErrValidation:        "Validation",
}

// Error carries the kind, a human readable reason and the quantities involved.
type Error struct {
	Kind    error
	Reason  string
	Amounts map[string]decimal.Decimal
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Reason
}

// Unwrap exposes the kind for errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind
}

// NewError builds an Error of the given kind.
func NewError(kind error, amounts map[string]decimal.Decimal, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Amounts: amounts}
}

// NotFoundf is shorthand for a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return NewError(ErrNotFound, nil, format, args...)
}

// Validationf is shorthand for a Validation error.
func Validationf(format string, args ...any) *Error {
	return NewError(ErrValidation, nil, format, args...)
}

// KindName returns the taxonomy name of err, or an empty string for unclassified errors.
func KindName(err error) string {
	for kind, name := range kindNames {
		if errors.Is(err, kind) {
			return name
		}
	}
	return ""
}

// AmountsOf extracts the amounts attached to a classified error.
func AmountsOf(err error) map[string]decimal.Decimal {
	var e *Error
	if errors.As(err, &e) {
		return e.Amounts
	}
	return nil
}
