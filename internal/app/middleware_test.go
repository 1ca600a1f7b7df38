package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/observability"
	"github.com/stitchline/stitchline/internal/shared"
)

func TestActorMiddleware(t *testing.T) {
	var got shared.Actor
	var present bool
	h := ActorMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name    string
		id      string
		role    string
		status  int
		present bool
		want    shared.Actor
	}{
		{name: "anonymous", status: http.StatusNoContent},
		{name: "valid", id: "42", role: "tailor", status: http.StatusNoContent, present: true, want: shared.Actor{ID: 42, Role: "TAILOR"}},
		{name: "bad id", id: "abc", role: "OWNER", status: http.StatusUnauthorized},
		{name: "missing role", id: "7", status: http.StatusUnauthorized},
		{name: "zero id", id: "0", role: "OWNER", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, present = shared.Actor{}, false
			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
			if tc.id != "" {
				req.Header.Set(HeaderActorID, tc.id)
			}
			if tc.role != "" {
				req.Header.Set(HeaderActorRole, tc.role)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.present, present)
			if tc.present {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 100}
	router := NewRouter(RouterParams{Config: cfg, Metrics: observability.NewMetrics()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `stitchline_http_requests_total{code="200",route="/healthz"} 1`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
