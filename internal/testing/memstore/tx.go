package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/audit"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/procurement"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// Tx implements the transactional port of every module. It is only valid inside WithTx.
type Tx struct {
	s *Store
}

var (
	_ inventory.TxRepository   = (*Tx)(nil)
	_ reservation.TxRepository = (*Tx)(nil)
	_ payments.TxRepository    = (*Tx)(nil)
	_ orders.TxRepository      = (*Tx)(nil)
	_ procurement.TxRepository = (*Tx)(nil)
)

func (t *Tx) InsertFabric(_ context.Context, item inventory.FabricItem) (inventory.FabricItem, error) {
	if err := t.s.injected("InsertFabric"); err != nil {
		return inventory.FabricItem{}, err
	}
	for _, existing := range t.s.state.fabrics {
		if existing.Code == item.Code {
			return inventory.FabricItem{}, shared.Validationf("inventory: fabric code %s already exists", item.Code)
		}
	}
	now := t.s.now()
	item.ID = t.s.nextID()
	item.OnHand, item.Reserved, item.TotalPurchased = decimal.Zero, decimal.Zero, decimal.Zero
	item.CreatedAt, item.UpdatedAt = now, now
	t.s.state.fabrics[item.ID] = item
	return item, nil
}

func (t *Tx) LockFabric(_ context.Context, id int64) (inventory.FabricItem, error) {
	if err := t.s.injected("LockFabric"); err != nil {
		return inventory.FabricItem{}, err
	}
	item, ok := t.s.state.fabrics[id]
	if !ok {
		return inventory.FabricItem{}, shared.NotFoundf("fabric not found")
	}
	return item, nil
}

func (t *Tx) LastMovement(_ context.Context, fabricID int64) (inventory.Movement, error) {
	for i := len(t.s.state.movements) - 1; i >= 0; i-- {
		if m := t.s.state.movements[i]; m.FabricID == fabricID {
			return m, nil
		}
	}
	return inventory.Movement{}, inventory.ErrNoMovements
}

func (t *Tx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	if err := t.s.injected("InsertMovement"); err != nil {
		return inventory.Movement{}, err
	}
	m.ID = t.s.nextID()
	m.CreatedAt = t.s.now()
	t.s.state.movements = append(t.s.state.movements, m)
	return m, nil
}

func (t *Tx) UpdateFabricCounters(_ context.Context, id int64, onHand, reserved, purchasedDelta decimal.Decimal) error {
	item, ok := t.s.state.fabrics[id]
	if !ok {
		return shared.NotFoundf("fabric not found")
	}
	item.OnHand, item.Reserved = onHand, reserved
	item.TotalPurchased = item.TotalPurchased.Add(purchasedDelta)
	item.UpdatedAt = t.s.now()
	t.s.state.fabrics[id] = item
	return nil
}

func (t *Tx) InsertAudit(_ context.Context, rec shared.AuditRecord) error {
	if err := t.s.injected("InsertAudit"); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	at := rec.At
	if at.IsZero() {
		at = t.s.now()
	}
	t.s.state.audit = append(t.s.state.audit, audit.TimelineRow{
		ID:          t.s.nextID(),
		At:          at,
		OrderID:     rec.OrderID,
		Entity:      rec.Entity,
		EntityID:    rec.EntityID,
		ActorID:     rec.ActorID,
		Action:      rec.ChangeType,
		Field:       rec.FieldName,
		OldValue:    rec.OldValue,
		NewValue:    rec.NewValue,
		Description: rec.Description,
	})
	return nil
}

func (t *Tx) GetPattern(_ context.Context, id int64) (reservation.Pattern, error) {
	p, ok := t.s.state.patterns[id]
	if !ok {
		return reservation.Pattern{}, shared.NotFoundf("pattern not found")
	}
	return p, nil
}

func (t *Tx) LockAccount(_ context.Context, orderID int64) (payments.Account, error) {
	return t.s.account(orderID)
}

func (t *Tx) PaidTotals(_ context.Context, orderID int64) (payments.PaidTotals, error) {
	return payments.Totals(t.s.installmentsOf(orderID)), nil
}

func (t *Tx) InstallmentsForUpdate(_ context.Context, orderID int64) ([]payments.Installment, error) {
	return t.s.installmentsOf(orderID), nil
}

func (t *Tx) LockInstallment(_ context.Context, id int64) (payments.Installment, error) {
	inst, ok := t.s.state.installments[id]
	if !ok {
		return payments.Installment{}, shared.NotFoundf("installment not found")
	}
	return inst, nil
}

func (t *Tx) InsertInstallment(_ context.Context, inst payments.Installment) (payments.Installment, error) {
	if err := t.s.injected("InsertInstallment"); err != nil {
		return payments.Installment{}, err
	}
	for _, existing := range t.s.state.installments {
		if existing.OrderID == inst.OrderID && existing.Number == inst.Number {
			return payments.Installment{}, shared.Validationf("installment %d already exists", inst.Number)
		}
	}
	inst.ID = t.s.nextID()
	inst.CreatedAt = t.s.now()
	t.s.state.installments[inst.ID] = inst
	return inst, nil
}

func (t *Tx) UpdateInstallment(_ context.Context, inst payments.Installment) error {
	current, ok := t.s.state.installments[inst.ID]
	if !ok {
		return shared.NotFoundf("installment not found")
	}
	current.Amount, current.PaidAmount, current.Status = inst.Amount, inst.PaidAmount, inst.Status
	current.PaidDate, current.Mode, current.Reference, current.Notes = inst.PaidDate, inst.Mode, inst.Reference, inst.Notes
	t.s.state.installments[inst.ID] = current
	return nil
}

func (t *Tx) UpdateBalance(_ context.Context, orderID int64, advance, balance decimal.Decimal) error {
	if err := t.s.injected("UpdateBalance"); err != nil {
		return err
	}
	o, ok := t.s.state.orders[orderID]
	if !ok {
		return shared.NotFoundf("order not found")
	}
	o.AdvancePaid, o.BalanceAmount, o.UpdatedAt = advance, balance, t.s.now()
	t.s.state.orders[orderID] = o
	return nil
}

func (t *Tx) InsertOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	if err := t.s.injected("InsertOrder"); err != nil {
		return orders.Order{}, err
	}
	for _, existing := range t.s.state.orders {
		if existing.OrderNumber == o.OrderNumber {
			return orders.Order{}, orders.ErrDuplicateNumber
		}
	}
	now := t.s.now()
	o.ID = t.s.nextID()
	o.CreatedAt, o.UpdatedAt = now, now
	items := make([]orders.Item, 0, len(o.Items))
	for _, it := range o.Items {
		it.ID = t.s.nextID()
		it.OrderID = o.ID
		t.s.state.items[it.ID] = it
		items = append(items, it)
	}
	stored := o
	stored.Items = nil
	t.s.state.orders[o.ID] = stored
	o.Items = items
	return o, nil
}

func (t *Tx) LockOrder(_ context.Context, id int64) (orders.Order, error) {
	return t.s.orderWithItems(id)
}

func (t *Tx) UpdateStatus(_ context.Context, id int64, status orders.Status, completedAt *time.Time) error {
	o, ok := t.s.state.orders[id]
	if !ok {
		return shared.NotFoundf("order not found")
	}
	o.Status = status
	if completedAt != nil {
		o.CompletedDate = completedAt
	}
	o.UpdatedAt = t.s.now()
	t.s.state.orders[id] = o
	return nil
}

func (t *Tx) UpdateItemUsage(_ context.Context, itemID int64, actual, wastage *decimal.Decimal) error {
	it, ok := t.s.state.items[itemID]
	if !ok {
		return shared.NotFoundf("order item not found")
	}
	it.ActualMetersUsed, it.Wastage = actual, wastage
	t.s.state.items[itemID] = it
	return nil
}

func (t *Tx) MoveItems(_ context.Context, itemIDs []int64, toOrderID int64) error {
	for _, id := range itemIDs {
		it, ok := t.s.state.items[id]
		if !ok {
			return shared.NotFoundf("order item not found")
		}
		it.OrderID = toOrderID
		t.s.state.items[id] = it
	}
	return nil
}

func (t *Tx) UpdateItem(_ context.Context, it orders.Item) error {
	if err := t.s.injected("UpdateItem"); err != nil {
		return err
	}
	stored, ok := t.s.state.items[it.ID]
	if !ok {
		return shared.NotFoundf("order item not found")
	}
	stored.PatternID, stored.FabricID, stored.Quantity = it.PatternID, it.FabricID, it.Quantity
	stored.EstimatedMeters, stored.FabricCost = it.EstimatedMeters, it.FabricCost
	stored.UnitPrice, stored.TotalPrice = it.UnitPrice, it.TotalPrice
	t.s.state.items[it.ID] = stored
	return nil
}

func (t *Tx) UpdateAmounts(_ context.Context, id int64, q orders.Quote, discount decimal.Decimal) error {
	o, ok := t.s.state.orders[id]
	if !ok {
		return shared.NotFoundf("order not found")
	}
	o.Subtotal, o.CGST, o.SGST, o.TotalAmount = q.Subtotal, q.CGST, q.SGST, q.Total
	o.Discount, o.UpdatedAt = discount, t.s.now()
	t.s.state.orders[id] = o
	return nil
}

func (t *Tx) UpdateDiscount(_ context.Context, id int64, discount decimal.Decimal, reason string) error {
	o, ok := t.s.state.orders[id]
	if !ok {
		return shared.NotFoundf("order not found")
	}
	o.Discount, o.DiscountReason, o.UpdatedAt = discount, reason, t.s.now()
	t.s.state.orders[id] = o
	return nil
}

func (t *Tx) InsertPO(_ context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	now := t.s.now()
	po.ID = t.s.nextID()
	po.CreatedAt, po.UpdatedAt = now, now
	items := make([]procurement.POItem, 0, len(po.Items))
	for _, it := range po.Items {
		it.ID = t.s.nextID()
		it.POID = po.ID
		t.s.state.poItems[it.ID] = it
		items = append(items, it)
	}
	stored := po
	stored.Items = nil
	t.s.state.pos[po.ID] = stored
	po.Items = items
	return po, nil
}

func (t *Tx) LockPO(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	return t.s.poWithItems(id)
}

func (t *Tx) UpdateReceived(_ context.Context, itemID int64, received decimal.Decimal) error {
	it, ok := t.s.state.poItems[itemID]
	if !ok {
		return shared.NotFoundf("po item not found")
	}
	it.ReceivedQuantity = received
	t.s.state.poItems[itemID] = it
	return nil
}

func (t *Tx) UpdatePO(_ context.Context, id int64, status procurement.POStatus, paid, balance decimal.Decimal) error {
	if err := t.s.injected("UpdatePO"); err != nil {
		return err
	}
	po, ok := t.s.state.pos[id]
	if !ok {
		return shared.NotFoundf("purchase order not found")
	}
	po.Status, po.PaidAmount, po.BalanceAmount, po.UpdatedAt = status, paid, balance, t.s.now()
	t.s.state.pos[id] = po
	return nil
}

func sortedMovements(in []inventory.Movement, fabricID int64, newestFirst bool) []inventory.Movement {
	out := []inventory.Movement{}
	for _, m := range in {
		if m.FabricID == fabricID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
