package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/payments"
	"github.com/stitchline/stitchline/internal/reservation"
	"github.com/stitchline/stitchline/internal/shared"
)

// ErrDuplicateNumber is returned by InsertOrder when the order number is taken.
var ErrDuplicateNumber = errors.New("orders: duplicate order number")

const numberAttempts = 5

// TxRepository is everything an order operation touches inside one transaction.
type TxRepository interface {
	reservation.TxRepository
	payments.TxRepository
	InsertOrder(ctx context.Context, order Order) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error
	UpdateItemUsage(ctx context.Context, itemID int64, actual, wastage *decimal.Decimal) error
	MoveItems(ctx context.Context, itemIDs []int64, toOrderID int64) error
	UpdateItem(ctx context.Context, item Item) error
	UpdateAmounts(ctx context.Context, id int64, quote Quote, discount decimal.Decimal) error
	UpdateDiscount(ctx context.Context, id int64, discount decimal.Decimal, reason string) error
}

// Notifier is told about orders after their transaction commits.
type Notifier interface {
	OrderCreated(ctx context.Context, order Order) error
	OrderReady(ctx context.Context, order Order) error
}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, Order) error { return nil }
func (nopNotifier) OrderReady(context.Context, Order) error   { return nil }

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// Service runs the order lifecycle.
type Service struct {
	repo     RepositoryPort
	engine   *reservation.Engine
	authz    shared.Authorizer
	logger   *slog.Logger
	observer shared.OperationObserver
	notifier Notifier
	now      func() time.Time
	number   func(time.Time) string
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *reservation.Engine, authz shared.Authorizer, logger *slog.Logger) *Service {
	if engine == nil {
		engine = reservation.NewEngine()
	}
	if authz == nil {
		authz = shared.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		authz:    authz,
		logger:   logger,
		observer: shared.NopObserver{},
		notifier: nopNotifier{},
		now:      time.Now,
		number:   NewOrderNumber,
	}
}

// UseObserver reports operation outcomes to o.
func (s *Service) UseObserver(o shared.OperationObserver) {
	if o != nil {
		s.observer = o
	}
}

// UseNotifier sends order events to n.
func (s *Service) UseNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// UseClock overrides the time source.
func (s *Service) UseClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// UseNumberGenerator overrides order number generation.
func (s *Service) UseNumberGenerator(fn func(time.Time) string) {
	if fn != nil {
		s.number = fn
	}
}

// NewOrderNumber formats ORD-<unix millis>-<3 random digits>.
func NewOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%d-%03d", at.UnixMilli(), rand.IntN(1000))
}

// Create validates fabric for every item, prices the lines from the fabric ledger, stores
// the order, reserves its fabric and records the advance, all in one transaction.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (order Order, err error) {
	defer func() { s.observer.ObserveOperation("orders.create", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermOrdersCreate); err != nil {
		return Order{}, err
	}
	if err := validateCreate(input); err != nil {
		return Order{}, err
	}

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items := make([]Item, 0, len(input.Items))
		reqs := make([]reservation.Requirement, 0, len(input.Items))
		for _, in := range input.Items {
			pattern, err := tx.GetPattern(ctx, in.PatternID)
			if err != nil {
				return err
			}
			meters, err := reservation.ComputeRequiredMeters(pattern, in.BodyType, in.Quantity)
			if err != nil {
				return err
			}
			bodyType := in.BodyType
			if bodyType == "" {
				bodyType = reservation.BodyTypeRegular
			}
			items = append(items, Item{
				PatternID:       in.PatternID,
				FabricID:        in.FabricID,
				BodyType:        bodyType,
				Quantity:        in.Quantity,
				EstimatedMeters: meters,
				StitchingCharge: in.StitchingCharge,
			})
			reqs = append(reqs, reservation.Requirement{FabricID: in.FabricID, Meters: meters})
		}
		if err := s.engine.CheckAvailability(ctx, tx, reqs); err != nil {
			return err
		}
		prices := make(map[int64]decimal.Decimal, len(reqs))
		for i := range items {
			price, ok := prices[items[i].FabricID]
			if !ok {
				fabric, err := inventory.Lock(ctx, tx, items[i].FabricID)
				if err != nil {
					return err
				}
				price = fabric.UnitPrice
				prices[fabric.ID] = price
			}
			items[i].price(price)
		}
		quote := QuoteItems(items)
		net := quote.Total.Sub(input.Discount)
		if net.IsNegative() {
			return shared.Validationf("orders: discount %s exceeds total %s", input.Discount.StringFixed(2), quote.Total.StringFixed(2))
		}
		if input.AdvancePaid.GreaterThan(net) {
			return shared.NewError(shared.ErrExceedsBalance,
				map[string]decimal.Decimal{"amount": input.AdvancePaid, "balance": net},
				"Advance (₹%s) exceeds order amount (₹%s)", shared.FormatAmount(input.AdvancePaid), shared.FormatAmount(net))
		}

		created, err := s.insert(ctx, tx, Order{
			CustomerID:     input.CustomerID,
			Status:         StatusNew,
			Subtotal:       quote.Subtotal,
			CGST:           quote.CGST,
			SGST:           quote.SGST,
			TotalAmount:    quote.Total,
			Discount:       input.Discount,
			DiscountReason: input.DiscountReason,
			AdvancePaid:    decimal.Zero,
			BalanceAmount:  net,
			DeliveryDate:   input.DeliveryDate,
			Notes:          input.Notes,
			CreatedBy:      actor.ID,
			Items:          items,
		}, now)
		if err != nil {
			return err
		}
		ref := reservation.Ref{OrderID: created.ID, ActorID: actor.ID, Notes: "Reserved for order " + created.OrderNumber}
		for _, it := range created.Items {
			if _, err := s.engine.Reserve(ctx, tx, it.FabricID, it.EstimatedMeters, ref); err != nil {
				return err
			}
		}
		if _, err := payments.RecordAdvance(ctx, tx, created.ID, input.AdvancePaid, input.AdvanceMode, now); err != nil {
			return err
		}
		acc, err := payments.Reconcile(ctx, tx, created.ID)
		if err != nil {
			return err
		}
		created.AdvancePaid = acc.AdvancePaid
		created.BalanceAmount = acc.Balance
		order = created
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:    created.ID,
			Entity:     "order",
			EntityID:   created.ID,
			ActorID:    actor.ID,
			ChangeType: shared.ChangeOrderCreated,
			Description: fmt.Sprintf("Order %s created with %d items. Total ₹%s, advance ₹%s, balance ₹%s",
				created.OrderNumber, len(created.Items), shared.FormatAmount(quote.Total),
				shared.FormatAmount(acc.AdvancePaid), shared.FormatAmount(acc.Balance)),
		})
	})
	if err != nil {
		s.logRejection("order creation rejected", 0, err)
		return Order{}, err
	}
	s.logger.Info("order created",
		slog.Int64("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int("items", len(order.Items)),
		slog.String("total", order.TotalAmount.StringFixed(2)),
	)
	if err := s.notifier.OrderCreated(ctx, order); err != nil {
		s.logger.Warn("order confirmation not queued", slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
	return order, nil
}

func validateCreate(input CreateInput) error {
	if input.CustomerID <= 0 {
		return shared.Validationf("orders: customer required")
	}
	if len(input.Items) == 0 {
		return shared.Validationf("orders: at least one item required")
	}
	for i, it := range input.Items {
		if it.PatternID <= 0 || it.FabricID <= 0 {
			return shared.Validationf("orders: item %d needs pattern and fabric", i+1)
		}
		if it.Quantity <= 0 {
			return shared.Validationf("orders: item %d quantity must be positive", i+1)
		}
		if it.StitchingCharge.IsNegative() {
			return shared.Validationf("orders: item %d stitching charge must be >= 0", i+1)
		}
	}
	if input.Discount.IsNegative() || input.AdvancePaid.IsNegative() {
		return shared.Validationf("orders: discount and advance must be >= 0")
	}
	if input.AdvanceMode != "" && !input.AdvanceMode.Valid() {
		return shared.Validationf("orders: unknown payment mode %q", input.AdvanceMode)
	}
	return nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, order Order, now time.Time) (Order, error) {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		order.OrderNumber = s.number(now)
		created, err := tx.InsertOrder(ctx, order)
		if errors.Is(err, ErrDuplicateNumber) {
			continue
		}
		if err != nil {
			return Order{}, fmt.Errorf("orders: insert order: %w", err)
		}
		return created, nil
	}
	return Order{}, fmt.Errorf("orders: could not allocate a unique order number after %d attempts", numberAttempts)
}

// Transition moves an order to input.To and applies the stock effect of the move.
func (s *Service) Transition(ctx context.Context, actor shared.Actor, input TransitionInput) (order Order, err error) {
	defer func() { s.observer.ObserveOperation("orders.transition", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermOrdersUpdate); err != nil {
		return Order{}, err
	}
	if !input.To.Valid() {
		return Order{}, shared.Validationf("orders: unknown status %q", input.To)
	}
	now := s.now()
	var from Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		from = current.Status
		effect, ok := transitions[transitionKey{current.Status, input.To}]
		if !ok {
			return shared.NewError(shared.ErrInvalidTransition, nil,
				"Cannot move order %s from %s to %s", current.OrderNumber, current.Status, input.To)
		}
		usage, err := usageByItem(current, input.Usage)
		if err != nil {
			return err
		}
		ref := reservation.Ref{OrderID: current.ID, ActorID: actor.ID}
		var completed *time.Time
		switch effect {
		case effectNone:
			for _, it := range current.Items {
				u, ok := usage[it.ID]
				if !ok {
					continue
				}
				if err := tx.UpdateItemUsage(ctx, it.ID, pick(u.ActualMetersUsed, it.ActualMetersUsed), pick(u.Wastage, it.Wastage)); err != nil {
					return err
				}
			}
		case effectDeliver:
			for _, it := range current.Items {
				u := usage[it.ID]
				actual := it.EstimatedMeters
				if p := pick(u.ActualMetersUsed, it.ActualMetersUsed); p != nil {
					actual = *p
				}
				wastage := decimal.Zero
				if p := pick(u.Wastage, it.Wastage); p != nil {
					wastage = *p
				}
				if _, err := s.engine.Consume(ctx, tx, it.FabricID, it.EstimatedMeters, actual, wastage, ref); err != nil {
					return err
				}
				if err := tx.UpdateItemUsage(ctx, it.ID, &actual, &wastage); err != nil {
					return err
				}
			}
			completed = &now
		case effectCancel:
			for _, it := range current.Items {
				if _, err := s.engine.Release(ctx, tx, it.FabricID, it.EstimatedMeters, ref); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateStatus(ctx, current.ID, input.To, completed); err != nil {
			return fmt.Errorf("orders: update status: %w", err)
		}
		desc := fmt.Sprintf("Status changed from %s to %s", current.Status, input.To)
		if input.Notes != "" {
			desc += ": " + input.Notes
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     current.ID,
			Entity:      "order",
			EntityID:    current.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeStatusUpdate,
			FieldName:   "status",
			OldValue:    string(current.Status),
			NewValue:    string(input.To),
			Description: desc,
		})
	})
	if err != nil {
		s.logRejection("status change rejected", input.OrderID, err)
		return Order{}, err
	}
	s.logger.Info("order status changed",
		slog.Int64("order_id", input.OrderID),
		slog.String("from", string(from)),
		slog.String("to", string(input.To)),
	)
	order, err = s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status == StatusReady {
		if nerr := s.notifier.OrderReady(ctx, order); nerr != nil {
			s.logger.Warn("ready notification not queued", slog.Int64("order_id", order.ID), slog.Any("error", nerr))
		}
	}
	return order, nil
}

func usageByItem(order Order, usage []ItemUsage) (map[int64]ItemUsage, error) {
	owned := make(map[int64]struct{}, len(order.Items))
	for _, it := range order.Items {
		owned[it.ID] = struct{}{}
	}
	out := make(map[int64]ItemUsage, len(usage))
	for _, u := range usage {
		if _, ok := owned[u.ItemID]; !ok {
			return nil, shared.Validationf("orders: item %d does not belong to order %s", u.ItemID, order.OrderNumber)
		}
		if (u.ActualMetersUsed != nil && u.ActualMetersUsed.IsNegative()) || (u.Wastage != nil && u.Wastage.IsNegative()) {
			return nil, shared.Validationf("orders: usage of item %d must be >= 0", u.ItemID)
		}
		out[u.ItemID] = u
	}
	return out, nil
}

func pick(override, stored *decimal.Decimal) *decimal.Decimal {
	if override != nil {
		return override
	}
	return stored
}

// Split moves input.ItemIDs into a new order carrying the same status. Both orders are
// requoted from their own lines, the discount is divided by the split order's share of the
// total and payments above the original's new amount follow the items.
func (s *Service) Split(ctx context.Context, actor shared.Actor, input SplitInput) (result SplitResult, err error) {
	defer func() { s.observer.ObserveOperation("orders.split", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermOrdersUpdate); err != nil {
		return SplitResult{}, err
	}
	if len(input.ItemIDs) == 0 {
		return SplitResult{}, shared.Validationf("orders: select items to split")
	}
	now := s.now()
	var splitID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.LockOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		switch orig.Status {
		case StatusCancelled:
			return shared.NewError(shared.ErrOrderCancelled, nil, "Order %s is cancelled", orig.OrderNumber)
		case StatusDelivered:
			return shared.NewError(shared.ErrInvalidTransition, nil, "Order %s is already delivered", orig.OrderNumber)
		}
		if len(orig.Items) < 2 {
			return shared.Validationf("orders: order %s must have at least 2 items to split", orig.OrderNumber)
		}
		selected := make(map[int64]struct{}, len(input.ItemIDs))
		for _, id := range input.ItemIDs {
			selected[id] = struct{}{}
		}
		var moved, kept []Item
		for _, it := range orig.Items {
			if _, ok := selected[it.ID]; ok {
				moved = append(moved, it)
			} else {
				kept = append(kept, it)
			}
		}
		if len(moved) != len(selected) {
			return shared.Validationf("orders: some items do not belong to order %s", orig.OrderNumber)
		}
		if len(kept) == 0 {
			return shared.Validationf("orders: cannot move every item out of order %s", orig.OrderNumber)
		}
		splitQuote := QuoteItems(moved)
		keptQuote := QuoteItems(kept)
		splitDiscount := decimal.Zero
		if orig.TotalAmount.IsPositive() {
			splitDiscount = orig.Discount.Mul(splitQuote.Total).Div(orig.TotalAmount).Round(2)
		}
		if splitDiscount.GreaterThan(splitQuote.Total) {
			splitDiscount = splitQuote.Total
		}
		keptDiscount := orig.Discount.Sub(splitDiscount)
		if keptDiscount.GreaterThan(keptQuote.Total) {
			return shared.Validationf("orders: discount %s does not fit the remaining total %s of order %s",
				orig.Discount.StringFixed(2), keptQuote.Total.StringFixed(2), orig.OrderNumber)
		}

		delivery := orig.DeliveryDate
		if input.DeliveryDate != nil {
			delivery = input.DeliveryDate
		}
		parent := orig.ID
		split, err := s.insert(ctx, tx, Order{
			CustomerID:     orig.CustomerID,
			Status:         orig.Status,
			Subtotal:       splitQuote.Subtotal,
			CGST:           splitQuote.CGST,
			SGST:           splitQuote.SGST,
			TotalAmount:    splitQuote.Total,
			Discount:       splitDiscount,
			DiscountReason: orig.DiscountReason,
			AdvancePaid:    decimal.Zero,
			BalanceAmount:  splitQuote.Total.Sub(splitDiscount),
			DeliveryDate:   delivery,
			ParentOrderID:  &parent,
			Notes:          input.Notes,
			CreatedBy:      actor.ID,
		}, now)
		if err != nil {
			return err
		}
		splitID = split.ID
		ids := make([]int64, 0, len(moved))
		for _, it := range moved {
			ids = append(ids, it.ID)
		}
		if err := tx.MoveItems(ctx, ids, split.ID); err != nil {
			return fmt.Errorf("orders: move items: %w", err)
		}
		if err := tx.UpdateAmounts(ctx, orig.ID, keptQuote, keptDiscount); err != nil {
			return fmt.Errorf("orders: update amounts: %w", err)
		}
		realloc, err := payments.ReallocateOverpayment(ctx, tx, orig.ID, split.ID, actor.ID, now)
		if err != nil {
			return err
		}
		result.Reallocated = realloc.Amount
		if err := tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:    orig.ID,
			Entity:     "order",
			EntityID:   orig.ID,
			ActorID:    actor.ID,
			ChangeType: shared.ChangeOrderSplit,
			FieldName:  "total_amount",
			OldValue:   orig.TotalAmount.StringFixed(2),
			NewValue:   keptQuote.Total.StringFixed(2),
			Description: fmt.Sprintf("%d items split into order %s (₹%s)",
				len(ids), split.OrderNumber, shared.FormatAmount(splitQuote.Total)),
		}); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     split.ID,
			Entity:      "order",
			EntityID:    split.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeOrderCreated,
			Description: fmt.Sprintf("Order %s created by splitting %s", split.OrderNumber, orig.OrderNumber),
		})
	})
	if err != nil {
		s.logRejection("order split rejected", input.OrderID, err)
		return SplitResult{}, err
	}
	if result.Original, err = s.repo.Get(ctx, input.OrderID); err != nil {
		return SplitResult{}, err
	}
	if result.Split, err = s.repo.Get(ctx, splitID); err != nil {
		return SplitResult{}, err
	}
	s.logger.Info("order split",
		slog.Int64("order_id", input.OrderID),
		slog.Int64("split_order_id", splitID),
		slog.String("reallocated", result.Reallocated.StringFixed(2)),
	)
	return result, nil
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List pages orders newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Validationf("orders: unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) logRejection(msg string, orderID int64, err error) {
	kind := shared.KindName(err)
	if kind == "" {
		s.logger.Error(msg, slog.Int64("order_id", orderID), slog.Any("error", err))
		return
	}
	attrs := []any{slog.Int64("order_id", orderID), slog.String("kind", kind), slog.String("reason", err.Error())}
	for k, v := range shared.AmountsOf(err) {
		attrs = append(attrs, slog.String(k, v.String()))
	}
	s.logger.Warn(msg, attrs...)
}
