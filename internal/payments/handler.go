package payments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler manages payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPaymentsView))
		r.Get("/orders/{id}/installments", h.list)
		r.Get("/orders/{id}/balance/verify", h.verify)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsRecord))
		r.Post("/orders/{id}/payments", h.record)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsManage))
		r.Post("/orders/{id}/installments/plan", h.plan)
		r.Patch("/installments/{id}", h.update)
		r.Post("/installments/{id}/cancel", h.cancel)
	})
}

type installmentResponse struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Number     int             `json:"installment_number"`
	Amount     decimal.Decimal `json:"installment_amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Status     string          `json:"status"`
	DueDate    time.Time       `json:"due_date"`
	PaidDate   *time.Time      `json:"paid_date,omitempty"`
	Mode       string          `json:"payment_mode,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	IsAdvance  bool            `json:"is_advance"`
}

func toResponse(i Installment) installmentResponse {
	return installmentResponse{
		ID: i.ID, OrderID: i.OrderID, Number: i.Number, Amount: i.Amount, PaidAmount: i.PaidAmount,
		Status: string(i.Status), DueDate: i.DueDate, PaidDate: i.PaidDate, Mode: string(i.Mode),
		Reference: i.Reference, Notes: i.Notes, IsAdvance: i.IsAdvance,
	}
}

func toResponses(rows []Installment) []installmentResponse {
	out := make([]installmentResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, toResponse(r))
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.ListInstallments(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(rows))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	check, err := h.service.Verify(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order_id":         check.OrderID,
		"consistent":       check.Consistent(),
		"stored_balance":   check.StoredBalance,
		"computed_balance": check.ComputedBalance,
		"stored_advance":   check.StoredAdvance,
		"computed_advance": check.ComputedAdvance,
		"paid_total":       check.PaidTotal,
		"overpaid_by":      check.OverpaidBy,
	})
}

type planRequest struct {
	Count       int              `json:"count" validate:"min=1,max=12"`
	FirstAmount *decimal.Decimal `json:"first_amount"`
	Frequency   string           `json:"frequency" validate:"required,oneof=WEEKLY BIWEEKLY MONTHLY"`
	StartDate   *time.Time       `json:"start_date"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req planRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PlanInput{OrderID: orderID, Count: req.Count, FirstAmount: req.FirstAmount, Frequency: Frequency(req.Frequency)}
	if req.StartDate != nil {
		input.StartDate = *req.StartDate
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rows, err := h.service.GeneratePlan(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponses(rows))
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Mode      string          `json:"payment_mode" validate:"omitempty,oneof=CASH UPI CARD BANK_TRANSFER CHEQUE"`
	Reference string          `json:"transaction_ref" validate:"max=120"`
	Notes     string          `json:"notes" validate:"max=500"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inst, err := h.service.RecordPayment(r.Context(), actor, PaymentInput{
		OrderID:        orderID,
		Amount:         req.Amount,
		Mode:           Mode(req.Mode),
		Reference:      req.Reference,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(inst))
}

type updateRequest struct {
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Mode       string          `json:"payment_mode" validate:"omitempty,oneof=CASH UPI CARD BANK_TRANSFER CHEQUE"`
	Reference  string          `json:"transaction_ref" validate:"max=120"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inst, err := h.service.UpdatePayment(r.Context(), actor, UpdateInput{
		InstallmentID: id,
		PaidAmount:    req.PaidAmount,
		Mode:          Mode(req.Mode),
		Reference:     req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inst))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inst, err := h.service.CancelInstallment(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(inst))
}
