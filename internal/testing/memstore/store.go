// Package memstore is an in-memory implementation of every repository port. Each WithTx
// runs under one store-wide lock and is rolled back wholesale when the callback fails,
// which gives services the same all-or-nothing behaviour PostgreSQL gives them.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stitchline/stitchline/internal/audit"
	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/orders"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/procurement"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

type state struct {
	seq          int64
	fabrics      map[int64]inventory.FabricItem
	movements    []inventory.Movement
	patterns     map[int64]reservation.Pattern
	orders       map[int64]orders.Order
	items        map[int64]orders.Item
	installments map[int64]payments.Installment
	pos          map[int64]procurement.PurchaseOrder
	poItems      map[int64]procurement.POItem
	audit        []audit.TimelineRow
}

func newState() state {
	return state{
		fabrics:      map[int64]inventory.FabricItem{},
		patterns:     map[int64]reservation.Pattern{},
		orders:       map[int64]orders.Order{},
		items:        map[int64]orders.Item{},
		installments: map[int64]payments.Installment{},
		pos:          map[int64]procurement.PurchaseOrder{},
		poItems:      map[int64]procurement.POItem{},
	}
}

func (s state) clone() state {
	out := state{
		seq:          s.seq,
		fabrics:      cloneMap(s.fabrics),
		movements:    append([]inventory.Movement(nil), s.movements...),
		patterns:     cloneMap(s.patterns),
		orders:       cloneMap(s.orders),
		items:        cloneMap(s.items),
		installments: cloneMap(s.installments),
		pos:          cloneMap(s.pos),
		poItems:      cloneMap(s.poItems),
		audit:        append([]audit.TimelineRow(nil), s.audit...),
	}
	return out
}

func cloneMap[V any](in map[int64]V) map[int64]V {
	out := make(map[int64]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store holds all tables.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
	fail  map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), now: time.Now, fail: map[string]error{}}
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes the next call of the named Tx method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *Store) nextID() int64 {
	s.state.seq++
	return s.state.seq
}

func (s *Store) injected(method string) error {
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return err
	}
	return nil
}

func (s *Store) run(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&Tx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Records returns the audit trail oldest first.
func (s *Store) Records() []audit.TimelineRow {
	var out []audit.TimelineRow
	s.read(func() { out = append(out, s.state.audit...) })
	return out
}

// RecordsOfType filters the audit trail by change type.
func (s *Store) RecordsOfType(changeType string) []audit.TimelineRow {
	var out []audit.TimelineRow
	for _, r := range s.Records() {
		if r.Action == changeType {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) orderWithItems(id int64) (orders.Order, error) {
	o, ok := s.state.orders[id]
	if !ok {
		return orders.Order{}, shared.NotFoundf("order not found")
	}
	o.Items = []orders.Item{}
	for _, it := range s.state.items {
		if it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].ID < o.Items[j].ID })
	return o, nil
}

func (s *Store) poWithItems(id int64) (procurement.PurchaseOrder, error) {
	po, ok := s.state.pos[id]
	if !ok {
		return procurement.PurchaseOrder{}, shared.NotFoundf("purchase order not found")
	}
	po.Items = []procurement.POItem{}
	for _, it := range s.state.poItems {
		if it.POID == id {
			po.Items = append(po.Items, it)
		}
	}
	sort.Slice(po.Items, func(i, j int) bool { return po.Items[i].ID < po.Items[j].ID })
	return po, nil
}

func (s *Store) installmentsOf(orderID int64) []payments.Installment {
	out := []payments.Installment{}
	for _, inst := range s.state.installments {
		if inst.OrderID == orderID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *Store) account(orderID int64) (payments.Account, error) {
	o, ok := s.state.orders[orderID]
	if !ok {
		return payments.Account{}, shared.NotFoundf("order not found")
	}
	return payments.Account{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Cancelled:   o.Status == orders.StatusCancelled,
		Total:       o.TotalAmount,
		Discount:    o.Discount,
		AdvancePaid: o.AdvancePaid,
		Balance:     o.BalanceAmount,
	}, nil
}
