package rbac

import "github.com/stitchline/stitchline/internal/shared"

// Roles known to the shop.
const (
	RoleAdmin            = "ADMIN"
	RoleOwner            = "OWNER"
	RoleInventoryManager = "INVENTORY_MANAGER"
	RoleSalesManager     = "SALES_MANAGER"
	RoleTailor           = "TAILOR"
	RoleViewer           = "VIEWER"
)

// RolePermissions pairs a role with its granted capabilities.
type RolePermissions struct {
	Role        string
	Permissions []string
}

// DefaultPolicy is used for roles without rows in role_permissions.
func DefaultPolicy() map[string][]string {
	all := shared.CoreScopes()
	return map[string][]string{
		RoleAdmin: all,
		RoleOwner: all,
		RoleInventoryManager: {
			shared.PermInventoryView, shared.PermInventoryManage,
			shared.PermProcurementView, shared.PermProcurementManage,
			shared.PermProcurementReceive, shared.PermProcurementPay,
		},
		RoleSalesManager: {
			shared.PermOrdersView, shared.PermOrdersCreate, shared.PermOrdersUpdate,
			shared.PermPaymentsView, shared.PermPaymentsRecord, shared.PermPaymentsManage,
			shared.PermAuditView,
		},
		RoleTailor: {
			shared.PermInventoryView,
			shared.PermOrdersView, shared.PermOrdersCreate, shared.PermOrdersUpdate,
			shared.PermProcurementView, shared.PermProcurementManage, shared.PermProcurementReceive,
		},
		RoleViewer: {
			shared.PermInventoryView, shared.PermOrdersView,
		},
	}
}
