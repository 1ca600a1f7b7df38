package inventory_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

type fabricBody struct {
	ID        int64           `json:"id"`
	OnHand    decimal.Decimal `json:"on_hand"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Level     string          `json:"level"`
}

type movementBody struct {
	Type         string          `json:"movement_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Notes        string          `json:"notes"`
}

func newInventoryRouter(svc *inventory.Service) http.Handler {
	r := chi.NewRouter()
	inventory.NewHandler(nil, svc, rbac.Middleware{Service: rbac.NewService(nil)}).MountRoutes(r)
	return r
}

func request(h http.Handler, role, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Role: role}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestFabricHandlersBindDecimals(t *testing.T) {
	svc, store := newService(t)
	router := newInventoryRouter(svc)

	rr := request(router, rbac.RoleInventoryManager, http.MethodPost, "/fabrics",
		`{"code":"CHK-1","name":"Check","opening_stock":"12.5","minimum_threshold":4,"unit_price":"310.75"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var fabric fabricBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fabric))
	assert.True(t, fabric.OnHand.Equal(d("12.5")))
	assert.True(t, fabric.Available.Equal(d("12.5")))
	assert.True(t, fabric.UnitPrice.Equal(d("310.75")))

	rr = request(router, rbac.RoleInventoryManager, http.MethodPost, fmt.Sprintf("/fabrics/%d/adjustments", fabric.ID),
		`{"movement_type":"WASTAGE","quantity":"2.25","notes":"water damage"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var mv movementBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mv))
	assert.Equal(t, "WASTAGE", mv.Type)
	assert.True(t, mv.Quantity.Equal(d("-2.25")))
	assert.True(t, mv.BalanceAfter.Equal(d("10.25")))

	reserve(t, store, fabric.ID, "8")
	rr = request(router, rbac.RoleViewer, http.MethodGet, fmt.Sprintf("/fabrics/%d", fabric.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fabric))
	assert.True(t, fabric.Reserved.Equal(d("8")))
	assert.True(t, fabric.Available.Equal(d("2.25")))

	rr = request(router, rbac.RoleViewer, http.MethodGet, fmt.Sprintf("/fabrics/%d/verify", fabric.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"consistent":true`)
}

func TestAdjustmentHandlerRejectsEatingReservedStock(t *testing.T) {
	svc, store := newService(t)
	router := newInventoryRouter(svc)
	item := createFabric(t, svc, "MUS-02", "10", "0")
	reserve(t, store, item.ID, "8")

	rr := request(router, rbac.RoleInventoryManager, http.MethodPost, fmt.Sprintf("/fabrics/%d/adjustments", item.ID),
		`{"movement_type":"WASTAGE","quantity":5}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "InsufficientStock", problem.Kind)
	assert.True(t, problem.Amounts["available"].Equal(d("2")))
	assert.True(t, problem.Amounts["required"].Equal(d("5")))
}

func TestInventoryHandlersRejectBadRequests(t *testing.T) {
	svc, _ := newService(t)
	router := newInventoryRouter(svc)
	item := createFabric(t, svc, "SAT-01", "10", "0")
	adjust := fmt.Sprintf("/fabrics/%d/adjustments", item.ID)

	cases := []struct {
		name, role, method, target, body string
		status                           int
	}{
		{"anonymous", "", http.MethodGet, "/fabrics", "", http.StatusUnauthorized},
		{"sales cannot create", rbac.RoleSalesManager, http.MethodPost, "/fabrics", `{"code":"X","name":"X"}`, http.StatusForbidden},
		{"missing code", rbac.RoleOwner, http.MethodPost, "/fabrics", `{"name":"X"}`, http.StatusBadRequest},
		{"order movement", rbac.RoleOwner, http.MethodPost, adjust, `{"movement_type":"ORDER_USED","quantity":"1"}`, http.StatusBadRequest},
		{"bad quantity", rbac.RoleOwner, http.MethodPost, adjust, `{"movement_type":"PURCHASE","quantity":"a lot"}`, http.StatusBadRequest},
		{"zero quantity", rbac.RoleOwner, http.MethodPost, adjust, `{"movement_type":"PURCHASE","quantity":"0"}`, http.StatusBadRequest},
		{"unknown fabric", rbac.RoleOwner, http.MethodPost, "/fabrics/4242/adjustments", `{"movement_type":"PURCHASE","quantity":"1"}`, http.StatusNotFound},
		{"bad limit", rbac.RoleViewer, http.MethodGet, fmt.Sprintf("/fabrics/%d/movements?limit=many", item.ID), "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := request(router, tc.role, tc.method, tc.target, tc.body)
		assert.Equal(t, tc.status, rr.Code, tc.name)
	}

	rr := request(router, rbac.RoleViewer, http.MethodGet, "/fabrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []fabricBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].OnHand.Equal(d("10")))
}
