package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/stitchline/stitchline/internal/shared"
)

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrdersView))
		r.Get("/orders", h.List)
		r.Get("/orders/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermOrdersCreate))
		r.Post("/orders", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermOrdersUpdate))
		r.Post("/orders/{id}/status", h.Transition)
		r.Post("/orders/{id}/split", h.Split)
		r.Patch("/orders/{id}/items/{itemId}", h.UpdateItem)
		r.Patch("/orders/{id}/discount", h.UpdateDiscount)
	})
}
