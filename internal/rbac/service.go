package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/stitchline/stitchline/internal/shared"
)

// Store loads explicit grants. An empty result means the role uses DefaultPolicy.
type Store interface {
	RolePermissions(ctx context.Context, role string) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, role string, perms []string) error
}

// Service resolves capabilities for actors and implements shared.Authorizer.
type Service struct {
	store    Store
	defaults map[string][]string
}

// NewService constructs a Service. store may be nil, in which case only DefaultPolicy applies.
func NewService(store Store) *Service {
	return &Service{store: store, defaults: DefaultPolicy()}
}

// EffectivePermissions returns deduplicated permission names for a role.
func (s *Service) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	role = normalizeRole(role)
	if role == "" {
		return nil, nil
	}
	if s.store != nil {
		perms, err := s.store.RolePermissions(ctx, role)
		if err != nil {
			return nil, err
		}
		if len(perms) > 0 {
			return normalizePermissions(perms), nil
		}
	}
	return normalizePermissions(s.defaults[role]), nil
}

// Authorize allows the actor when its role holds capability.
func (s *Service) Authorize(ctx context.Context, actor shared.Actor, capability string) error {
	granted, err := s.EffectivePermissions(ctx, actor.Role)
	if err != nil {
		return fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	if hasAnyPermission(granted, []string{strings.ToLower(capability)}) {
		return nil
	}
	return shared.NewError(shared.ErrForbidden, nil, "role %q lacks %s", actor.Role, capability)
}

// SetRolePermissions replaces the explicit grants of a role. Unknown capabilities are rejected.
func (s *Service) SetRolePermissions(ctx context.Context, role string, perms []string) error {
	role = normalizeRole(role)
	if role == "" {
		return shared.Validationf("rbac: role required")
	}
	if s.store == nil {
		return fmt.Errorf("rbac: store not configured")
	}
	known := make(map[string]struct{})
	for _, p := range shared.CoreScopes() {
		known[p] = struct{}{}
	}
	perms = normalizePermissions(perms)
	for _, p := range perms {
		if _, ok := known[p]; !ok {
			return shared.Validationf("rbac: unknown permission %s", p)
		}
	}
	return s.store.ReplaceRolePermissions(ctx, role, perms)
}

func normalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}
