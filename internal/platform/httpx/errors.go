// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/stitchline/stitchline/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrDuplicate    = errors.New("duplicate entry")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		DomainProblem(w, http.StatusNotFound, "Not Found", err)
	case errors.Is(err, shared.ErrValidation):
		DomainProblem(w, http.StatusBadRequest, "Validation Failed", err)
	case errors.Is(err, shared.ErrForbidden):
		DomainProblem(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, shared.ErrInsufficientStock):
		DomainProblem(w, http.StatusConflict, "Insufficient Stock", err)
	case errors.Is(err, shared.ErrInvalidTransition):
		DomainProblem(w, http.StatusConflict, "Invalid Transition", err)
	case errors.Is(err, shared.ErrOrderCancelled):
		DomainProblem(w, http.StatusConflict, "Order Cancelled", err)
	case errors.Is(err, shared.ErrPlanAlreadyExists):
		DomainProblem(w, http.StatusConflict, "Plan Already Exists", err)
	case errors.Is(err, shared.ErrExceedsBalance):
		DomainProblem(w, http.StatusUnprocessableEntity, "Exceeds Balance", err)
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
