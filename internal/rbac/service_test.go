package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/stitchline/internal/shared"
)

type stubStore struct {
	grants map[string][]string
	err    error
}

func (s *stubStore) RolePermissions(_ context.Context, role string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.grants[role], nil
}

func (s *stubStore) ReplaceRolePermissions(_ context.Context, role string, perms []string) error {
	if s.grants == nil {
		s.grants = map[string][]string{}
	}
	s.grants[role] = perms
	return nil
}

func TestAuthorizeDefaultPolicy(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, shared.Actor{ID: 1, Role: "owner"}, shared.PermPaymentsManage))
	require.NoError(t, svc.Authorize(ctx, shared.Actor{ID: 2, Role: RoleTailor}, shared.PermOrdersUpdate))

	err := svc.Authorize(ctx, shared.Actor{ID: 3, Role: RoleViewer}, shared.PermOrdersCreate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	err = svc.Authorize(ctx, shared.Actor{ID: 4, Role: RoleInventoryManager}, shared.PermPaymentsRecord)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	err = svc.Authorize(ctx, shared.Actor{ID: 5}, shared.PermInventoryView)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestExplicitGrantsOverrideDefaults(t *testing.T) {
	store := &stubStore{grants: map[string][]string{RoleViewer: {"orders.view", "Payments.View", "orders.view"}}}
	svc := NewService(store)

	perms, err := svc.EffectivePermissions(context.Background(), "viewer")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.view", "payments.view"}, perms)

	err = svc.Authorize(context.Background(), shared.Actor{Role: RoleViewer}, shared.PermInventoryView)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestSetRolePermissionsRejectsUnknown(t *testing.T) {
	svc := NewService(&stubStore{})
	err := svc.SetRolePermissions(context.Background(), RoleTailor, []string{"orders.view", "launch.rockets"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	require.NoError(t, svc.SetRolePermissions(context.Background(), RoleTailor, []string{"orders.view"}))
	perms, err := svc.EffectivePermissions(context.Background(), RoleTailor)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.view"}, perms)
}

func TestAuthorizeStoreFailure(t *testing.T) {
	svc := NewService(&stubStore{err: errors.New("db down")})
	err := svc.Authorize(context.Background(), shared.Actor{Role: RoleOwner}, shared.PermOrdersView)
	require.Error(t, err)
	assert.False(t, errors.Is(err, shared.ErrForbidden))
}

func TestMiddlewareRequireAny(t *testing.T) {
	mw := Middleware{Service: NewService(nil)}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := mw.RequireAny(shared.PermOrdersCreate, shared.PermOrdersUpdate)(ok)

	cases := []struct {
		name   string
		actor  *shared.Actor
		status int
	}{
		{name: "no actor", status: http.StatusUnauthorized},
		{name: "viewer", actor: &shared.Actor{ID: 1, Role: RoleViewer}, status: http.StatusForbidden},
		{name: "tailor", actor: &shared.Actor{ID: 2, Role: RoleTailor}, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/orders", nil)
			if tc.actor != nil {
				req = req.WithContext(shared.ContextWithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMiddlewareRequireAll(t *testing.T) {
	mw := Middleware{Service: NewService(nil)}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := mw.RequireAll(shared.PermInventoryView, shared.PermPaymentsView)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{Role: RoleSalesManager}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
