package reservation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler serves the pattern catalogue.
type Handler struct {
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(service *Service, mw rbac.Middleware) *Handler {
	return &Handler{service: service, mw: mw}
}

// MountRoutes registers pattern routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/patterns", func(r chi.Router) {
		r.With(h.mw.RequireAny(shared.PermInventoryView)).Get("/", h.list)
		r.With(h.mw.RequireAny(shared.PermInventoryManage)).Post("/", h.create)
		r.With(h.mw.RequireAny(shared.PermInventoryView)).Get("/{id}", h.get)
	})
}

type patternRequest struct {
	Name              string          `json:"name" validate:"required"`
	BaseMeters        decimal.Decimal `json:"base_meters"`
	SlimAdjustment    decimal.Decimal `json:"slim_adjustment"`
	RegularAdjustment decimal.Decimal `json:"regular_adjustment"`
	LargeAdjustment   decimal.Decimal `json:"large_adjustment"`
	XLAdjustment      decimal.Decimal `json:"xl_adjustment"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	p, err := h.service.CreatePattern(r.Context(), actor, CreatePatternInput(req))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patterns)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
