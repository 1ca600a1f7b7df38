package orders_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/platform/httpx"
	"github.com/stitchline/stitchline/internal/rbac"
	"github.com/stitchline/stitchline/internal/shared"
)

func (f *fixture) router() http.Handler {
	r := chi.NewRouter()
	orders.NewHandler(nil, f.svc, rbac.Middleware{Service: rbac.NewService(nil)}).MountRoutes(r)
	return r
}

func call(h http.Handler, role, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 5, Role: role}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) order(t *testing.T, id int64) orders.Order {
	t.Helper()
	o, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func decodeOrder(t *testing.T, rr *httptest.ResponseRecorder) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o), rr.Body.String())
	return o
}

func TestCreateHandlerBindsDecimals(t *testing.T) {
	f := newFixture(t, "20")
	body := fmt.Sprintf(`{"customer_id":9,"items":[{"pattern_id":%d,"fabric_id":%d,"quantity":2,"stitching_charge":"500"}],
		"discount":"48.00","discount_reason":"festival","advance_paid":1000,"advance_mode":"UPI"}`, f.pattern.ID, f.fabric.ID)

	rr := call(f.router(), rbac.RoleSalesManager, http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	o := decodeOrder(t, rr)
	assert.True(t, o.TotalAmount.Equal(d("1568")))
	assert.True(t, o.Discount.Equal(d("48")))
	assert.Equal(t, "festival", o.DiscountReason)
	assert.True(t, o.AdvancePaid.Equal(d("1000")))
	assert.True(t, o.BalanceAmount.Equal(d("520")))
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].StitchingCharge.Equal(d("500")))
	assert.Equal(t, "REGULAR", string(o.Items[0].BodyType))
	assert.True(t, f.stock(t).Reserved.Equal(d("4")))
}

func TestCreateHandlerRejections(t *testing.T) {
	f := newFixture(t, "3")
	item := fmt.Sprintf(`{"pattern_id":%d,"fabric_id":%d,"quantity":2}`, f.pattern.ID, f.fabric.ID)
	cases := []struct {
		name, role, body string
		status           int
	}{
		{"anonymous", "", `{"customer_id":9,"items":[` + item + `]}`, http.StatusUnauthorized},
		{"viewer", rbac.RoleViewer, `{"customer_id":9,"items":[` + item + `]}`, http.StatusForbidden},
		{"no items", rbac.RoleOwner, `{"customer_id":9,"items":[]}`, http.StatusBadRequest},
		{"bad body type", rbac.RoleOwner, fmt.Sprintf(`{"customer_id":9,"items":[{"pattern_id":%d,"fabric_id":%d,"quantity":1,"body_type":"HUGE"}]}`, f.pattern.ID, f.fabric.ID), http.StatusBadRequest},
		{"bad decimal", rbac.RoleOwner, `{"customer_id":9,"discount":"lots","items":[` + item + `]}`, http.StatusBadRequest},
		{"short of fabric", rbac.RoleOwner, `{"customer_id":9,"items":[` + item + `]}`, http.StatusConflict},
	}
	for _, tc := range cases {
		rr := call(f.router(), tc.role, http.MethodPost, "/orders", tc.body)
		assert.Equal(t, tc.status, rr.Code, tc.name)
	}

	rr := call(f.router(), rbac.RoleOwner, http.MethodPost, "/orders", `{"customer_id":9,"items":[`+item+`]}`)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "InsufficientStock", problem.Kind)
	assert.True(t, problem.Amounts["available"].Equal(d("3")))
	assert.True(t, problem.Amounts["required"].Equal(d("4")))
}

func TestTransitionHandlerConvertsUsage(t *testing.T) {
	f := newFixture(t, "20")
	o := f.create(t, "0", f.item(2, "500"), f.item(1, "800"))
	target := fmt.Sprintf("/orders/%d/status", o.ID)
	body := fmt.Sprintf(`{"status":"DELIVERED","notes":"picked up","usage":[{"item_id":%d,"actual_meters_used":"3.5","wastage":0.25}]}`, o.Items[0].ID)

	rr := call(f.router(), rbac.RoleTailor, http.MethodPost, target, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decodeOrder(t, rr)
	assert.Equal(t, orders.StatusDelivered, got.Status)
	require.NotNil(t, got.Items[0].ActualMetersUsed)
	require.NotNil(t, got.Items[0].Wastage)
	assert.True(t, got.Items[0].ActualMetersUsed.Equal(d("3.5")))
	assert.True(t, got.Items[0].Wastage.Equal(d("0.25")))
	// the second line had no usage and falls back to its estimate
	require.NotNil(t, got.Items[1].ActualMetersUsed)
	assert.True(t, got.Items[1].ActualMetersUsed.Equal(d("2")))

	stock := f.stock(t)
	assert.True(t, stock.OnHand.Equal(d("14.25")), stock.OnHand.String())
	assert.True(t, stock.Reserved.IsZero())
}

func TestTransitionHandlerRejections(t *testing.T) {
	f := newFixture(t, "20")
	o := f.create(t, "0", f.item(1, "500"))
	target := fmt.Sprintf("/orders/%d/status", o.ID)

	cases := []struct {
		name, body string
		status     int
	}{
		{"foreign item", `{"status":"CUTTING","usage":[{"item_id":4242,"wastage":"1"}]}`, http.StatusBadRequest},
		{"missing item id", `{"status":"CUTTING","usage":[{"wastage":"1"}]}`, http.StatusBadRequest},
		{"negative usage", fmt.Sprintf(`{"status":"CUTTING","usage":[{"item_id":%d,"wastage":"-1"}]}`, o.Items[0].ID), http.StatusBadRequest},
		{"unknown status", `{"status":"SHIPPED"}`, http.StatusBadRequest},
		{"backwards", `{"status":"NEW"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		rr := call(f.router(), rbac.RoleOwner, http.MethodPost, target, tc.body)
		assert.Equal(t, tc.status, rr.Code, tc.name)
	}
	rr := call(f.router(), rbac.RoleViewer, http.MethodPost, target, `{"status":"CUTTING"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, orders.StatusNew, f.order(t, o.ID).Status)
}

func TestEditHandlers(t *testing.T) {
	f := newFixture(t, "20")
	o := f.create(t, "0", f.item(2, "500"))
	router := f.router()

	rr := call(router, rbac.RoleSalesManager, http.MethodPatch, fmt.Sprintf("/orders/%d/items/%d", o.ID, o.Items[0].ID), `{"quantity":3,"notes":"one more"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := decodeOrder(t, rr)
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.True(t, f.stock(t).Reserved.Equal(d("6")))

	rr = call(router, rbac.RoleSalesManager, http.MethodPatch, fmt.Sprintf("/orders/%d/items/abc", o.ID), `{"quantity":3}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = call(router, rbac.RoleSalesManager, http.MethodPatch, fmt.Sprintf("/orders/%d/items/%d", o.ID, o.Items[0].ID), `{"quantity":30}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = call(router, rbac.RoleSalesManager, http.MethodPatch, fmt.Sprintf("/orders/%d/discount", o.ID), `{"discount":"100.50","reason":"regular"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got = decodeOrder(t, rr)
	assert.True(t, got.Discount.Equal(d("100.5")))
	assert.True(t, got.BalanceAmount.Equal(got.TotalAmount.Sub(d("100.5"))))

	rr = call(router, rbac.RoleViewer, http.MethodPatch, fmt.Sprintf("/orders/%d/discount", o.ID), `{"discount":"0"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestReadHandlers(t *testing.T) {
	f := newFixture(t, "20")
	o := f.create(t, "0", f.item(1, "500"))
	f.create(t, "0", f.item(1, "500"))
	router := f.router()

	rr := call(router, rbac.RoleViewer, http.MethodGet, fmt.Sprintf("/orders/%d", o.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, o.OrderNumber, decodeOrder(t, rr).OrderNumber)

	rr = call(router, rbac.RoleViewer, http.MethodGet, "/orders/4242", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(router, rbac.RoleViewer, http.MethodGet, "/orders?status=NEW&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rr = call(router, rbac.RoleViewer, http.MethodGet, "/orders?status=LOST", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
