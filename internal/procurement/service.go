package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/inventory"
	"github.com/stitchline/stitchline/internal/shared"
)

const idempotencyModule = "procurement"

// TxRepository describes the transactional operations of receiving and settlement.
type TxRepository interface {
	inventory.TxRepository
	InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	LockPO(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateReceived(ctx context.Context, itemID int64, received decimal.Decimal) error
	UpdatePO(ctx context.Context, id int64, status POStatus, paid, balance decimal.Decimal) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error)
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	authz       shared.Authorizer
	idempotency shared.Idempotency
	logger      *slog.Logger
	observer    shared.OperationObserver
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, authz shared.Authorizer, idem shared.Idempotency, logger *slog.Logger) *Service {
	if authz == nil {
		authz = shared.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, idempotency: idem, logger: logger, observer: shared.NopObserver{}, now: time.Now}
}

// UseObserver reports operation outcomes to o.
func (s *Service) UseObserver(o shared.OperationObserver) {
	if o != nil {
		s.observer = o
	}
}

// Create registers a purchase order in PENDING.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (po PurchaseOrder, err error) {
	defer func() { s.observer.ObserveOperation("procurement.create", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermProcurementManage); err != nil {
		return PurchaseOrder{}, err
	}
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, shared.Validationf("procurement: supplier required")
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, shared.Validationf("procurement: at least one item required")
	}
	total := decimal.Zero
	items := make([]POItem, 0, len(input.Items))
	for i, in := range input.Items {
		if !in.Quantity.IsPositive() {
			return PurchaseOrder{}, shared.Validationf("procurement: item %d quantity must be positive", i+1)
		}
		if in.UnitPrice.IsNegative() {
			return PurchaseOrder{}, shared.Validationf("procurement: item %d price must be >= 0", i+1)
		}
		desc := strings.TrimSpace(in.Description)
		if desc == "" && in.FabricID == 0 {
			return PurchaseOrder{}, shared.Validationf("procurement: item %d needs a fabric or a description", i+1)
		}
		line := in.Quantity.Mul(in.UnitPrice).Round(2)
		total = total.Add(line)
		items = append(items, POItem{
			FabricID:         in.FabricID,
			Description:      desc,
			OrderedQuantity:  in.Quantity,
			ReceivedQuantity: decimal.Zero,
			UnitPrice:        in.UnitPrice,
			TotalPrice:       line,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, it := range items {
			if it.FabricID == 0 {
				continue
			}
			if _, err := tx.LockFabric(ctx, it.FabricID); err != nil {
				return err
			}
		}
		po, err = tx.InsertPO(ctx, PurchaseOrder{
			PONumber:      generateNumber("PO", s.now()),
			SupplierID:    input.SupplierID,
			Status:        POStatusPending,
			TotalAmount:   total,
			PaidAmount:    decimal.Zero,
			BalanceAmount: total,
			Notes:         input.Notes,
			CreatedBy:     actor.ID,
			Items:         items,
		})
		if err != nil {
			return fmt.Errorf("procurement: insert po: %w", err)
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "purchase_order",
			EntityID:    po.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePOCreated,
			Description: fmt.Sprintf("Purchase order %s created for ₹%s", po.PONumber, shared.FormatAmount(total)),
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order created", slog.Int64("po_id", po.ID), slog.String("po_number", po.PONumber))
	return po, nil
}

// Receive adds received quantities, books fabric into stock and applies an optional payment.
func (s *Service) Receive(ctx context.Context, actor shared.Actor, input ReceiveInput) (po PurchaseOrder, err error) {
	defer func() { s.observer.ObserveOperation("procurement.receive", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermProcurementReceive); err != nil {
		return PurchaseOrder{}, err
	}
	if input.PaymentAmount.IsNegative() {
		return PurchaseOrder{}, shared.Validationf("procurement: payment must be >= 0")
	}
	if len(input.Items) == 0 && input.PaymentAmount.IsZero() {
		return PurchaseOrder{}, shared.Validationf("procurement: nothing to receive")
	}
	for _, r := range input.Items {
		if !r.Quantity.IsPositive() {
			return PurchaseOrder{}, shared.Validationf("procurement: received quantity must be positive")
		}
	}
	if err := s.claim(ctx, input.IdempotencyKey); err != nil {
		return PurchaseOrder{}, err
	}
	defer func() { s.release(ctx, input.IdempotencyKey, err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if current.Status == POStatusCancelled {
			return cancelledErr(current)
		}
		if input.PaymentAmount.GreaterThan(current.BalanceAmount) {
			return exceedsErr(input.PaymentAmount, current.BalanceAmount)
		}
		index := make(map[int64]int, len(current.Items))
		for i, it := range current.Items {
			index[it.ID] = i
		}
		receipts := append([]ItemReceipt(nil), input.Items...)
		for _, r := range receipts {
			i, ok := index[r.POItemID]
			if !ok {
				return shared.Validationf("procurement: item %d does not belong to %s", r.POItemID, current.PONumber)
			}
			it := &current.Items[i]
			received := it.ReceivedQuantity.Add(r.Quantity)
			if received.GreaterThan(it.OrderedQuantity) {
				return shared.Validationf("procurement: receiving %s would exceed ordered %s on item %d",
					received.String(), it.OrderedQuantity.String(), it.ID)
			}
			it.ReceivedQuantity = received
			if err := tx.UpdateReceived(ctx, it.ID, received); err != nil {
				return fmt.Errorf("procurement: update received: %w", err)
			}
		}

		// fabric rows are locked in id order
		sort.SliceStable(receipts, func(a, b int) bool {
			return current.Items[index[receipts[a].POItemID]].FabricID < current.Items[index[receipts[b].POItemID]].FabricID
		})
		for _, r := range receipts {
			it := current.Items[index[r.POItemID]]
			if it.FabricID == 0 {
				continue
			}
			fabric, err := inventory.Lock(ctx, tx, it.FabricID)
			if err != nil {
				return err
			}
			if _, err := inventory.Append(ctx, tx, &fabric, inventory.Entry{
				Type:     inventory.MovementPurchase,
				Quantity: r.Quantity,
				Notes:    fmt.Sprintf("Received against %s", current.PONumber),
				ActorID:  actor.ID,
			}); err != nil {
				return err
			}
		}

		paid := current.PaidAmount.Add(input.PaymentAmount)
		balance := current.TotalAmount.Sub(paid)
		status := StatusFor(current.Items, paid, balance)
		if err := tx.UpdatePO(ctx, current.ID, status, paid, balance); err != nil {
			return fmt.Errorf("procurement: update po: %w", err)
		}
		desc := fmt.Sprintf("Received %d lines on %s", len(input.Items), current.PONumber)
		if input.PaymentAmount.IsPositive() {
			desc += fmt.Sprintf(", paid ₹%s", shared.FormatAmount(input.PaymentAmount))
		}
		if err := tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "purchase_order",
			EntityID:    current.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePOReceived,
			FieldName:   "status",
			OldValue:    string(current.Status),
			NewValue:    string(status),
			Description: desc + fmt.Sprintf(". Status %s", status),
		}); err != nil {
			return err
		}
		current.PaidAmount, current.BalanceAmount, current.Status = paid, balance, status
		po = current
		return nil
	})
	if err != nil {
		s.logger.Warn("receipt rejected", slog.Int64("po_id", input.POID), slog.String("kind", shared.KindName(err)), slog.Any("error", err))
		return PurchaseOrder{}, err
	}
	s.logger.Info("purchase order received", slog.Int64("po_id", po.ID), slog.String("status", string(po.Status)))
	return po, nil
}

// RecordPayment settles part of the supplier balance.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, input PaymentInput) (po PurchaseOrder, err error) {
	defer func() { s.observer.ObserveOperation("procurement.pay", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermProcurementPay); err != nil {
		return PurchaseOrder{}, err
	}
	if !input.Amount.IsPositive() {
		return PurchaseOrder{}, shared.Validationf("procurement: payment must be positive")
	}
	if err := s.claim(ctx, input.IdempotencyKey); err != nil {
		return PurchaseOrder{}, err
	}
	defer func() { s.release(ctx, input.IdempotencyKey, err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if current.Status == POStatusCancelled {
			return cancelledErr(current)
		}
		if input.Amount.GreaterThan(current.BalanceAmount) {
			return exceedsErr(input.Amount, current.BalanceAmount)
		}
		paid := current.PaidAmount.Add(input.Amount)
		balance := current.TotalAmount.Sub(paid)
		status := StatusFor(current.Items, paid, balance)
		if err := tx.UpdatePO(ctx, current.ID, status, paid, balance); err != nil {
			return err
		}
		current.PaidAmount, current.BalanceAmount, current.Status = paid, balance, status
		po = current
		return tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "purchase_order",
			EntityID:    current.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePOPayment,
			FieldName:   "balance_amount",
			OldValue:    current.TotalAmount.Sub(paid.Sub(input.Amount)).StringFixed(2),
			NewValue:    balance.StringFixed(2),
			Description: fmt.Sprintf("Payment of ₹%s on %s. Balance ₹%s", shared.FormatAmount(input.Amount), current.PONumber, shared.FormatAmount(balance)),
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// Cancel voids a purchase order that has neither receipts nor payments.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, poID int64) (po PurchaseOrder, err error) {
	defer func() { s.observer.ObserveOperation("procurement.cancel", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermProcurementManage); err != nil {
		return PurchaseOrder{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPO(ctx, poID)
		if err != nil {
			return err
		}
		if current.Status == POStatusCancelled {
			return shared.NewError(shared.ErrInvalidTransition, nil, "Purchase order %s is already cancelled", current.PONumber)
		}
		if current.Status != POStatusPending {
			return shared.NewError(shared.ErrInvalidTransition, nil,
				"Purchase order %s has receipts or payments and cannot be cancelled", current.PONumber)
		}
		if err := tx.UpdatePO(ctx, current.ID, POStatusCancelled, current.PaidAmount, current.BalanceAmount); err != nil {
			return err
		}
		current.Status = POStatusCancelled
		po = current
		return tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "purchase_order",
			EntityID:    current.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePOCancelled,
			FieldName:   "status",
			OldValue:    string(POStatusPending),
			NewValue:    string(POStatusCancelled),
			Description: fmt.Sprintf("Purchase order %s cancelled", current.PONumber),
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// Get returns one purchase order with its items.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// List returns purchase orders newest first.
func (s *Service) List(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListPOs(ctx, status, limit)
}

func (s *Service) claim(ctx context.Context, key string) error {
	if key == "" || s.idempotency == nil {
		return nil
	}
	return s.idempotency.CheckAndInsert(ctx, key, idempotencyModule)
}

// release frees a claimed key when processing failed so the client can retry.
func (s *Service) release(ctx context.Context, key string, err error) {
	if err == nil || key == "" || s.idempotency == nil {
		return
	}
	_ = s.idempotency.Delete(ctx, key, idempotencyModule)
}

func cancelledErr(po PurchaseOrder) error {
	return shared.NewError(shared.ErrOrderCancelled, nil, "Purchase order %s is cancelled", po.PONumber)
}

func exceedsErr(amount, balance decimal.Decimal) error {
	return shared.NewError(shared.ErrExceedsBalance,
		map[string]decimal.Decimal{"amount": amount, "balance": balance},
		"Payment amount (₹%s) exceeds balance (₹%s)", shared.FormatAmount(amount), shared.FormatAmount(balance))
}

func generateNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, at.UnixNano())
}
