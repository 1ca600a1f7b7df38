package shared

import "context"

// Capabilities checked before every mutating entry point.
const (
	PermInventoryView   = "inventory.view"
	PermInventoryManage = "inventory.manage"

	PermOrdersView   = "orders.view"
	PermOrdersCreate = "orders.create"
	PermOrdersUpdate = "orders.update"

	PermPaymentsView   = "payments.view"
	PermPaymentsRecord = "payments.record"
	PermPaymentsManage = "payments.manage"

	PermProcurementView    = "procurement.view"
	PermProcurementManage  = "procurement.manage"
	PermProcurementReceive = "procurement.receive"
	PermProcurementPay     = "procurement.pay"

	PermAuditView = "audit.view"
)

// Authorizer answers whether an actor holds a capability. A deny is reported as ErrForbidden.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, capability string) error
}

// AllowAll grants every capability. Used by tools and tests.
type AllowAll struct{}

// Authorize always allows.
func (AllowAll) Authorize(context.Context, Actor, string) error { return nil }

// CoreScopes lists every capability known to the core.
func CoreScopes() []string {
	return []string{
		PermInventoryView,
		PermInventoryManage,
		PermOrdersView,
		PermOrdersCreate,
		PermOrdersUpdate,
		PermPaymentsView,
		PermPaymentsRecord,
		PermPaymentsManage,
		PermProcurementView,
		PermProcurementManage,
		PermProcurementReceive,
		PermProcurementPay,
		PermAuditView,
	}
}
