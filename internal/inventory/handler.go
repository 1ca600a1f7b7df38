package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/fabrics", h.handleList)
		r.Get("/fabrics/{id}", h.handleShow)
		r.Get("/fabrics/{id}/movements", h.handleMovements)
		r.Get("/fabrics/{id}/verify", h.handleVerify)
		r.Get("/fabrics/{id}/stock-card.xlsx", h.handleStockCard)
		r.Get("/stock/low", h.handleLowStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryManage))
		r.Post("/fabrics", h.handleCreate)
		r.Post("/fabrics/{id}/adjustments", h.handleAdjustment)
	})
}

type fabricResponse struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	OnHand           decimal.Decimal `json:"on_hand"`
	Reserved         decimal.Decimal `json:"reserved"`
	Available        decimal.Decimal `json:"available"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPurchased   decimal.Decimal `json:"total_purchased"`
	Level            StockLevel      `json:"level"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func toFabricResponse(f FabricItem) fabricResponse {
	return fabricResponse{
		ID: f.ID, Code: f.Code, Name: f.Name, Unit: f.Unit,
		OnHand: f.OnHand, Reserved: f.Reserved, Available: f.Available(),
		MinimumThreshold: f.MinimumThreshold, UnitPrice: f.UnitPrice, TotalPurchased: f.TotalPurchased,
		Level: f.Level(), UpdatedAt: f.UpdatedAt,
	}
}

type movementResponse struct {
	ID            int64           `json:"id"`
	Type          MovementType    `json:"movement_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReservedDelta decimal.Decimal `json:"reserved_delta"`
	ReservedAfter decimal.Decimal `json:"reserved_after"`
	OrderID       int64           `json:"order_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ActorID       int64           `json:"actor_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID: m.ID, Type: m.Type, Quantity: m.Quantity, BalanceAfter: m.BalanceAfter,
		ReservedDelta: m.ReservedDelta, ReservedAfter: m.ReservedAfter,
		OrderID: m.OrderID, Notes: m.Notes, ActorID: m.ActorID, CreatedAt: m.CreatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.StockLevels(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]fabricResponse, 0, len(levels))
	for _, st := range levels {
		out = append(out, toFabricResponse(st.Item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]fabricResponse, 0, len(levels))
	for _, st := range levels {
		out = append(out, toFabricResponse(st.Item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFabricResponse(item))
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{FabricID: id}
	if v := r.URL.Query().Get("before_id"); v != "" {
		if filter.BeforeID, err = strconv.ParseInt(v, 10, 64); err != nil {
			httpx.RespondError(w, shared.Validationf("invalid before_id"))
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			httpx.RespondError(w, shared.Validationf("invalid limit"))
			return
		}
	}
	movements, err := h.service.History(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Verify(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"fabric_id":       v.FabricID,
		"consistent":      v.Consistent(),
		"movements":       v.Movements,
		"on_hand":         v.OnHand,
		"reserved":        v.Reserved,
		"ledger_on_hand":  v.LedgerOnHand,
		"ledger_reserved": v.LedgerReserved,
		"broken_at":       v.BrokenChainAtIDs,
	})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Attachment(w, fmt.Sprintf("stock-card-%d.xlsx", id))
	if err := h.service.ExportHistory(r.Context(), id, w); err != nil {
		h.logger.Error("export stock card", slog.Int64("fabric_id", id), slog.Any("error", err))
		w.Header().Del("Content-Disposition")
		httpx.RespondError(w, err)
	}
}

type createFabricRequest struct {
	Code             string          `json:"code" validate:"required,max=40"`
	Name             string          `json:"name" validate:"required,max=120"`
	Unit             string          `json:"unit" validate:"max=10"`
	OpeningStock     decimal.Decimal `json:"opening_stock"`
	MinimumThreshold decimal.Decimal `json:"minimum_threshold"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createFabricRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.CreateFabric(r.Context(), actor, CreateFabricInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFabricResponse(item))
}

type adjustmentRequest struct {
	Type     string          `json:"movement_type" validate:"required,oneof=PURCHASE ADJUSTMENT RETURN WASTAGE"`
	Quantity decimal.Decimal `json:"quantity"`
	Notes    string          `json:"notes" validate:"max=500"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustmentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	mv, err := h.service.AdjustStock(r.Context(), actor, AdjustInput{
		FabricID: id,
		Type:     MovementType(req.Type),
		Quantity: req.Quantity,
		Notes:    req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(mv))
}
