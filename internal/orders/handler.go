package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler manages order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: mw}
}

type createItemRequest struct {
	PatternID       int64           `json:"pattern_id" validate:"required,gt=0"`
	FabricID        int64           `json:"fabric_id" validate:"required,gt=0"`
	BodyType        string          `json:"body_type" validate:"omitempty,oneof=SLIM REGULAR LARGE XL"`
	Quantity        int             `json:"quantity" validate:"required,gt=0"`
	StitchingCharge decimal.Decimal `json:"stitching_charge"`
}

type createRequest struct {
	CustomerID     int64               `json:"customer_id" validate:"required,gt=0"`
	Items          []createItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount       decimal.Decimal     `json:"discount"`
	DiscountReason string              `json:"discount_reason" validate:"max=500"`
	AdvancePaid    decimal.Decimal     `json:"advance_paid"`
	AdvanceMode    string              `json:"advance_mode" validate:"omitempty,oneof=CASH UPI CARD BANK_TRANSFER CHEQUE"`
	DeliveryDate   *time.Time          `json:"delivery_date"`
	Notes          string              `json:"notes" validate:"max=1000"`
}

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		CustomerID:     req.CustomerID,
		Discount:       req.Discount,
		DiscountReason: req.DiscountReason,
		AdvancePaid:    req.AdvancePaid,
		AdvanceMode:    payments.Mode(req.AdvanceMode),
		DeliveryDate:   req.DeliveryDate,
		Notes:          req.Notes,
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, CreateItemInput{
			PatternID:       it.PatternID,
			FabricID:        it.FabricID,
			BodyType:        reservation.BodyType(it.BodyType),
			Quantity:        it.Quantity,
			StitchingCharge: it.StitchingCharge,
		})
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// Show handles GET /orders/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// List handles GET /orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	filter.BeforeID, _ = strconv.ParseInt(q.Get("before_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

type usageRequest struct {
	ItemID           int64            `json:"item_id" validate:"required,gt=0"`
	ActualMetersUsed *decimal.Decimal `json:"actual_meters_used"`
	Wastage          *decimal.Decimal `json:"wastage"`
}

type transitionRequest struct {
	Status string         `json:"status" validate:"required"`
	Usage  []usageRequest `json:"usage" validate:"dive"`
	Notes  string         `json:"notes" validate:"max=500"`
}

// Transition handles POST /orders/{id}/status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := TransitionInput{OrderID: id, To: Status(req.Status), Notes: req.Notes}
	for _, u := range req.Usage {
		input.Usage = append(input.Usage, ItemUsage(u))
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.Transition(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type splitRequest struct {
	ItemIDs      []int64    `json:"item_ids" validate:"required,min=1"`
	DeliveryDate *time.Time `json:"delivery_date"`
	Notes        string     `json:"notes" validate:"max=500"`
}

// Split handles POST /orders/{id}/split.
func (h *Handler) Split(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req splitRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Split(r.Context(), actor, SplitInput{
		OrderID:      id,
		ItemIDs:      req.ItemIDs,
		DeliveryDate: req.DeliveryDate,
		Notes:        req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"original":    result.Original,
		"split":       result.Split,
		"reallocated": result.Reallocated,
	})
}

type updateItemRequest struct {
	PatternID int64  `json:"pattern_id" validate:"gte=0"`
	FabricID  int64  `json:"fabric_id" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Notes     string `json:"notes" validate:"max=500"`
}

// UpdateItem handles PATCH /orders/{id}/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.UpdateItem(r.Context(), actor, UpdateItemInput{
		OrderID:   id,
		ItemID:    itemID,
		PatternID: req.PatternID,
		FabricID:  req.FabricID,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason" validate:"max=500"`
}

// UpdateDiscount handles PATCH /orders/{id}/discount.
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req discountRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.UpdateDiscount(r.Context(), actor, DiscountInput{OrderID: id, Discount: req.Discount, Reason: req.Reason})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
