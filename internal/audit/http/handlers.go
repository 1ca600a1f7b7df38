package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stitchline/stitchline/internal/audit"
	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/shared"
)

const (
	defaultDateRange  = 30 * 24 * time.Hour
	maxDateRangeHours = 24 * 366
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
	OrderHistory(ctx context.Context, orderID int64) ([]audit.TimelineRow, error)
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    Middleware
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		rbac:    mw,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.OrderHistory(r.Context(), orderID)
	if err != nil {
		h.handleServerError(w, "load order history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	httpx.Attachment(w, "audit-timeline.csv")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toTime := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.TimelineFilters{}, shared.Validationf("invalid to")
		}
		toTime = parsed.Add(24 * time.Hour)
	}
	fromTime := toTime.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.TimelineFilters{}, shared.Validationf("invalid from")
		}
		fromTime = parsed
	}
	if !fromTime.Before(toTime) || toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, shared.Validationf("invalid range")
	}

	filters := audit.TimelineFilters{
		From:   fromTime,
		To:     toTime,
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	ints := []struct {
		name   string
		target *int64
	}{
		{"order_id", &filters.OrderID},
		{"entity_id", &filters.EntityID},
		{"actor_id", &filters.ActorID},
	}
	for _, p := range ints {
		if v := strings.TrimSpace(q.Get(p.name)); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil || parsed <= 0 {
				return audit.TimelineFilters{}, shared.Validationf("invalid %s", p.name)
			}
			*p.target = parsed
		}
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, shared.Validationf("invalid page")
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, shared.Validationf("invalid page_size")
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}
