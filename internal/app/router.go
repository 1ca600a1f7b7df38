package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/stitchline/stitchline/internal/audit/http"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/observability"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/procurement"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	RBACHandler        *rbac.Handler
	InventoryHandler   *inventory.Handler
	PatternHandler     *reservation.Handler
	OrderHandler       *orders.Handler
	PaymentHandler     *payments.Handler
	ProcurementHandler *procurement.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// Mounter is implemented by every module handler.
type Mounter interface {
	MountRoutes(r chi.Router)
}

// NewRouter constructs the chi.Router with Stitchline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		for _, h := range []Mounter{
			params.RBACHandler,
			params.InventoryHandler,
			params.PatternHandler,
			params.OrderHandler,
			params.PaymentHandler,
			params.ProcurementHandler,
			params.AuditHandler,
		} {
			if isNilMounter(h) {
				continue
			}
			h.MountRoutes(r)
		}
	})

	return r
}

// isNilMounter catches typed nil handlers stored in the interface slice.
func isNilMounter(m Mounter) bool {
	switch h := m.(type) {
	case nil:
		return true
	case *rbac.Handler:
		return h == nil
	case *inventory.Handler:
		return h == nil
	case *reservation.Handler:
		return h == nil
	case *orders.Handler:
		return h == nil
	case *payments.Handler:
		return h == nil
	case *procurement.Handler:
		return h == nil
	case *audithttp.Handler:
		return h == nil
	}
	return false
}
