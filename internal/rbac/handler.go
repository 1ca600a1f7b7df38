package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/shared"
)

// Handler exposes role permissions over JSON.
type Handler struct {
	service *Service
	mw      Middleware
}

// NewHandler constructs the handler.
func NewHandler(service *Service, mw Middleware) *Handler {
	return &Handler{service: service, mw: mw}
}

// MountRoutes registers the permissions endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myPermissions)
	r.With(h.mw.RequireAll(shared.CoreScopes()...)).Get("/roles/{role}/permissions", h.rolePermissions)
	r.With(h.mw.RequireAll(shared.CoreScopes()...)).Put("/roles/{role}/permissions", h.setRolePermissions)
}

type permissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	h.respond(w, r, actor.Role)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, chi.URLParam(r, "role"))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, role string) {
	perms, err := h.service.EffectivePermissions(r.Context(), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Role: normalizeRole(role), Permissions: perms})
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req setPermissionsRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role := chi.URLParam(r, "role")
	if err := h.service.SetRolePermissions(r.Context(), role, req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, role)
}
