package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/stitchline/stitchline/internal/shared"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("inventory:stock-alerts").End(nil)
	metrics.Jobs().SetDrift("fabric", 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `stitchline_jobs_total{job="inventory:stock-alerts",status="success"} 1`) {
		t.Fatalf("expected body to contain stitchline_jobs_total, got: %s", body)
	}
	if !strings.Contains(body, `stitchline_ledger_drift{kind="fabric"} 0`) {
		t.Fatalf("expected drift gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestObserveOperationLabelsOutcome(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveOperation("orders.create", nil)
	metrics.ObserveOperation("orders.create", shared.NewError(shared.ErrInsufficientStock, nil, "Insufficient stock"))
	metrics.ObserveOperation("orders.create", fmt.Errorf("wrap: %w", shared.ErrInsufficientStock))
	metrics.ObserveOperation("orders.create", errors.New("connection reset"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("orders.create", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.operations.WithLabelValues("orders.create", shared.KindName(shared.ErrInsufficientStock))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues("orders.create", "error")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveOperation("payments.record", nil)
	assert.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
