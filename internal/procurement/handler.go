package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermProcurementView))
			r.Get("/", h.list)
			r.Get("/{id}", h.show)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementManage))
			r.Post("/", h.create)
			r.Post("/{id}/cancel", h.cancel)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementReceive))
			r.Post("/{id}/receive", h.receive)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermProcurementPay))
			r.Post("/{id}/payments", h.pay)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pos, err := h.service.List(r.Context(), POStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type createItemRequest struct {
	FabricID    int64           `json:"fabric_id" validate:"min=0"`
	Description string          `json:"description" validate:"max=200"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type createRequest struct {
	SupplierID int64               `json:"supplier_id" validate:"required,min=1"`
	Items      []createItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes      string              `json:"notes" validate:"max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{SupplierID: req.SupplierID, Notes: req.Notes}
	for _, it := range req.Items {
		input.Items = append(input.Items, CreateItemInput(it))
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

type receiptRequest struct {
	POItemID int64           `json:"po_item_id" validate:"required,min=1"`
	Quantity decimal.Decimal `json:"quantity"`
}

type receiveRequest struct {
	Items         []receiptRequest `json:"items" validate:"dive"`
	PaymentAmount decimal.Decimal  `json:"payment_amount"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ReceiveInput{POID: id, PaymentAmount: req.PaymentAmount, IdempotencyKey: r.Header.Get("Idempotency-Key")}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemReceipt(it))
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.Receive(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
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
	po, err := h.service.RecordPayment(r.Context(), actor, PaymentInput{
		POID:           id,
		Amount:         req.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	po, err := h.service.Cancel(r.Context(), actor, id)
	if err != nil {
		h.logger.Debug("po cancel rejected", slog.Int64("po_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}
