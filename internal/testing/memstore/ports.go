package memstore

import (
	"context"
	"sort"

	"github.com/stitchline/stitchline/internal/audit"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/procurement"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// InventoryRepo adapts Store to inventory.RepositoryPort.
type InventoryRepo struct{ s *Store }

// Inventory returns the inventory view of the store.
func (s *Store) Inventory() InventoryRepo { return InventoryRepo{s: s} }

func (r InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r InventoryRepo) GetFabric(_ context.Context, id int64) (item inventory.FabricItem, err error) {
	r.s.read(func() {
		var ok bool
		if item, ok = r.s.state.fabrics[id]; !ok {
			err = shared.NotFoundf("fabric not found")
		}
	})
	return item, err
}

func (r InventoryRepo) ListFabrics(context.Context) ([]inventory.FabricItem, error) {
	out := []inventory.FabricItem{}
	r.s.read(func() {
		for _, f := range r.s.state.fabrics {
			out = append(out, f)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r InventoryRepo) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	out := []inventory.Movement{}
	r.s.read(func() {
		for _, m := range sortedMovements(r.s.state.movements, filter.FabricID, true) {
			if filter.BeforeID != 0 && m.ID >= filter.BeforeID {
				continue
			}
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
			out = append(out, m)
		}
	})
	return out, nil
}

func (r InventoryRepo) AllMovements(_ context.Context, fabricID int64) (out []inventory.Movement, _ error) {
	r.s.read(func() { out = sortedMovements(r.s.state.movements, fabricID, false) })
	return out, nil
}

// PatternRepo adapts Store to reservation.PatternStore.
type PatternRepo struct{ s *Store }

// Patterns returns the pattern catalogue view of the store.
func (s *Store) Patterns() PatternRepo { return PatternRepo{s: s} }

func (r PatternRepo) InsertPattern(_ context.Context, p reservation.Pattern) (reservation.Pattern, error) {
	r.s.read(func() {
		p.ID = r.s.nextID()
		p.CreatedAt = r.s.now()
		r.s.state.patterns[p.ID] = p
	})
	return p, nil
}

func (r PatternRepo) FindPattern(_ context.Context, id int64) (p reservation.Pattern, err error) {
	r.s.read(func() {
		var ok bool
		if p, ok = r.s.state.patterns[id]; !ok {
			err = shared.NotFoundf("pattern not found")
		}
	})
	return p, err
}

func (r PatternRepo) ListPatterns(context.Context) ([]reservation.Pattern, error) {
	out := []reservation.Pattern{}
	r.s.read(func() {
		for _, p := range r.s.state.patterns {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PaymentsRepo adapts Store to payments.RepositoryPort.
type PaymentsRepo struct{ s *Store }

// Payments returns the payments view of the store.
func (s *Store) Payments() PaymentsRepo { return PaymentsRepo{s: s} }

func (r PaymentsRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.s.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r PaymentsRepo) GetAccount(_ context.Context, orderID int64) (acc payments.Account, err error) {
	r.s.read(func() { acc, err = r.s.account(orderID) })
	return acc, err
}

func (r PaymentsRepo) GetInstallment(_ context.Context, id int64) (inst payments.Installment, err error) {
	r.s.read(func() {
		var ok bool
		if inst, ok = r.s.state.installments[id]; !ok {
			err = shared.NotFoundf("installment not found")
		}
	})
	return inst, err
}

func (r PaymentsRepo) ListInstallments(_ context.Context, orderID int64) (out []payments.Installment, _ error) {
	r.s.read(func() { out = r.s.installmentsOf(orderID) })
	return out, nil
}

// OrdersRepo adapts Store to orders.RepositoryPort.
type OrdersRepo struct{ s *Store }

// Orders returns the orders view of the store.
func (s *Store) Orders() OrdersRepo { return OrdersRepo{s: s} }

func (r OrdersRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.s.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r OrdersRepo) Get(_ context.Context, id int64) (o orders.Order, err error) {
	r.s.read(func() { o, err = r.s.orderWithItems(id) })
	return o, err
}

func (r OrdersRepo) List(_ context.Context, filter orders.ListFilter) ([]orders.Order, error) {
	out := []orders.Order{}
	r.s.read(func() {
		ids := make([]int64, 0, len(r.s.state.orders))
		for id := range r.s.state.orders {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		for _, id := range ids {
			o, _ := r.s.orderWithItems(id)
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.CustomerID != 0 && o.CustomerID != filter.CustomerID {
				continue
			}
			if filter.BeforeID != 0 && o.ID >= filter.BeforeID {
				continue
			}
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
			out = append(out, o)
		}
	})
	return out, nil
}

// ProcurementRepo adapts Store to procurement.RepositoryPort.
type ProcurementRepo struct{ s *Store }

// Procurement returns the purchase order view of the store.
func (s *Store) Procurement() ProcurementRepo { return ProcurementRepo{s: s} }

func (r ProcurementRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.s.run(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r ProcurementRepo) GetPO(_ context.Context, id int64) (po procurement.PurchaseOrder, err error) {
	r.s.read(func() { po, err = r.s.poWithItems(id) })
	return po, err
}

func (r ProcurementRepo) ListPOs(_ context.Context, status procurement.POStatus, limit int) ([]procurement.PurchaseOrder, error) {
	out := []procurement.PurchaseOrder{}
	r.s.read(func() {
		ids := make([]int64, 0, len(r.s.state.pos))
		for id := range r.s.state.pos {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		for _, id := range ids {
			po := r.s.state.pos[id]
			if status != "" && po.Status != status {
				continue
			}
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, po)
		}
	})
	return out, nil
}

// AuditRepo adapts Store to audit.Repository.
type AuditRepo struct{ s *Store }

// Audit returns the audit trail view of the store.
func (s *Store) Audit() AuditRepo { return AuditRepo{s: s} }

func (r AuditRepo) TimelineWindow(ctx context.Context, f audit.TimelineFilters, offset, limit int) ([]audit.TimelineRow, error) {
	all, _ := r.TimelineAll(ctx, f)
	if offset >= len(all) {
		return []audit.TimelineRow{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r AuditRepo) TimelineAll(_ context.Context, f audit.TimelineFilters) ([]audit.TimelineRow, error) {
	out := []audit.TimelineRow{}
	for _, row := range r.s.Records() {
		switch {
		case !f.From.IsZero() && row.At.Before(f.From),
			!f.To.IsZero() && !row.At.Before(f.To),
			f.OrderID != 0 && row.OrderID != f.OrderID,
			f.Entity != "" && row.Entity != f.Entity,
			f.EntityID != 0 && row.EntityID != f.EntityID,
			f.ActorID != 0 && row.ActorID != f.ActorID,
			f.Action != "" && row.Action != f.Action:
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
