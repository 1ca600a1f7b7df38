// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

// ProblemDetail represents RFC7807 problem details. Kind and Amounts are extension members
// carrying the error taxonomy and the quantities involved in a rejection.
type ProblemDetail struct {
	Type    string                     `json:"type,omitempty"`
	Title   string                     `json:"title"`
	Status  int                        `json:"status"`
	Detail  string                     `json:"detail,omitempty"`
	Kind    string                     `json:"kind,omitempty"`
	Amounts map[string]decimal.Decimal `json:"amounts,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DomainProblem sends a problem response describing a classified core error.
func DomainProblem(w http.ResponseWriter, status int, title string, err error) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:   title,
		Status:  status,
		Detail:  err.Error(),
		Kind:    shared.KindName(err),
		Amounts: shared.AmountsOf(err),
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
