package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline/stitchline/internal/shared"
)

const idempotencyModule = "payments"

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, orderID int64) (Account, error)
	GetInstallment(ctx context.Context, id int64) (Installment, error)
	ListInstallments(ctx context.Context, orderID int64) ([]Installment, error)
}

// Service reconciles installments with order balances.
type Service struct {
	repo     RepositoryPort
	authz    shared.Authorizer
	idem     shared.Idempotency
	logger   *slog.Logger
	observer shared.OperationObserver
	now      func() time.Time
}

// NewService builds Service. idem may be nil when de-duplication is not wanted.
func NewService(repo RepositoryPort, authz shared.Authorizer, idem shared.Idempotency, logger *slog.Logger) *Service {
	if authz == nil {
		authz = shared.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, idem: idem, logger: logger, observer: shared.NopObserver{}, now: time.Now}
}

// UseObserver reports operation outcomes to o.
func (s *Service) UseObserver(o shared.OperationObserver) {
	if o != nil {
		s.observer = o
	}
}

// UseClock overrides the time source.
func (s *Service) UseClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GeneratePlan schedules the outstanding balance of an order in Count installments.
func (s *Service) GeneratePlan(ctx context.Context, actor shared.Actor, input PlanInput) (installments []Installment, err error) {
	defer func() { s.observer.ObserveOperation("payments.plan", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermPaymentsManage); err != nil {
		return nil, err
	}
	start := input.StartDate
	if start.IsZero() {
		start = s.now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.LockAccount(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if acc.Cancelled {
			return cancelledErr(acc)
		}
		totals, err := tx.PaidTotals(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if totals.Scheduled > 0 {
			return shared.NewError(shared.ErrPlanAlreadyExists, nil,
				"Order %s already has %d installments", acc.OrderNumber, totals.Scheduled)
		}
		balance := acc.Net().Sub(totals.Paid)
		rows, err := Schedule(balance, input.Count, input.FirstAmount, input.Frequency, start)
		if err != nil {
			return err
		}
		installments = make([]Installment, 0, len(rows))
		for i, row := range rows {
			inst, err := tx.InsertInstallment(ctx, Installment{
				OrderID:    input.OrderID,
				Number:     totals.MaxNumber + i + 1,
				Amount:     row.Amount,
				PaidAmount: decimal.Zero,
				Status:     StatusPending,
				DueDate:    row.DueDate,
				Notes:      fmt.Sprintf("Installment %d of %d", i+1, len(rows)),
			})
			if err != nil {
				return fmt.Errorf("payments: insert installment: %w", err)
			}
			installments = append(installments, inst)
		}
		if _, err := Reconcile(ctx, tx, input.OrderID); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     input.OrderID,
			Entity:      "order",
			EntityID:    input.OrderID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePlanGenerated,
			Description: fmt.Sprintf("%d %s installments scheduled for ₹%s", len(rows), input.Frequency, shared.FormatAmount(balance)),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("installment plan generated", slog.Int64("order_id", input.OrderID), slog.Int("count", len(installments)))
	return installments, nil
}

// RecordPayment stores a PAID installment for money received and reconciles the balance.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, input PaymentInput) (inst Installment, err error) {
	defer func() { s.observer.ObserveOperation("payments.record", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermPaymentsRecord); err != nil {
		return Installment{}, err
	}
	if !input.Amount.IsPositive() {
		return Installment{}, shared.Validationf("payments: amount must be positive")
	}
	if input.Mode == "" {
		input.Mode = ModeCash
	}
	if !input.Mode.Valid() {
		return Installment{}, shared.Validationf("payments: unknown payment mode %q", input.Mode)
	}
	amount := input.Amount.Round(2)

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Installment{}, err
		}
		defer func() {
			if err != nil {
				_ = s.idem.Delete(ctx, input.IdempotencyKey, idempotencyModule)
			}
		}()
	}

	now := s.now()
	var acc Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccount(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if locked.Cancelled {
			return cancelledErr(locked)
		}
		totals, err := tx.PaidTotals(ctx, input.OrderID)
		if err != nil {
			return err
		}
		balance := locked.Net().Sub(totals.Paid)
		if amount.GreaterThan(balance) {
			return exceedsErr(amount, balance)
		}
		notes := input.Notes
		if notes == "" {
			notes = fmt.Sprintf("Payment recorded via %s", input.Mode)
		}
		inst, err = tx.InsertInstallment(ctx, Installment{
			OrderID:    input.OrderID,
			Number:     totals.MaxNumber + 1,
			Amount:     amount,
			PaidAmount: amount,
			Status:     StatusPaid,
			DueDate:    now,
			PaidDate:   &now,
			Mode:       input.Mode,
			Reference:  input.Reference,
			Notes:      notes,
		})
		if err != nil {
			return fmt.Errorf("payments: insert payment: %w", err)
		}
		acc, err = Reconcile(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		desc := fmt.Sprintf("Payment of ₹%s recorded via %s", shared.FormatAmount(amount), input.Mode)
		if input.Reference != "" {
			desc += fmt.Sprintf(" (Ref: %s)", input.Reference)
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     input.OrderID,
			Entity:      "order",
			EntityID:    input.OrderID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangePaymentRecorded,
			FieldName:   "balance_amount",
			OldValue:    balance.StringFixed(2),
			NewValue:    acc.Balance.StringFixed(2),
			Description: desc + fmt.Sprintf(". New balance: ₹%s", shared.FormatAmount(acc.Balance)),
		})
	})
	if err != nil {
		s.logRejection("payment rejected", input.OrderID, err)
		return Installment{}, err
	}
	s.logger.Info("payment recorded",
		slog.Int64("order_id", input.OrderID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("mode", string(input.Mode)),
		slog.String("balance", acc.Balance.StringFixed(2)),
	)
	return inst, nil
}

// UpdatePayment sets the paid amount of an installment, derives its status and reconciles.
func (s *Service) UpdatePayment(ctx context.Context, actor shared.Actor, input UpdateInput) (inst Installment, err error) {
	defer func() { s.observer.ObserveOperation("payments.update", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermPaymentsManage); err != nil {
		return Installment{}, err
	}
	if input.PaidAmount.IsNegative() {
		return Installment{}, shared.Validationf("payments: paid amount must be >= 0")
	}
	if input.Mode != "" && !input.Mode.Valid() {
		return Installment{}, shared.Validationf("payments: unknown payment mode %q", input.Mode)
	}
	current, err := s.repo.GetInstallment(ctx, input.InstallmentID)
	if err != nil {
		return Installment{}, err
	}
	now := s.now()
	paid := input.PaidAmount.Round(2)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.LockAccount(ctx, current.OrderID)
		if err != nil {
			return err
		}
		if acc.Cancelled {
			return cancelledErr(acc)
		}
		inst, err = tx.LockInstallment(ctx, input.InstallmentID)
		if err != nil {
			return err
		}
		if inst.Status == StatusCancelled {
			return shared.Validationf("payments: installment %d is cancelled", inst.Number)
		}
		totals, err := tx.PaidTotals(ctx, inst.OrderID)
		if err != nil {
			return err
		}
		balanceWithout := acc.Net().Sub(totals.Paid).Add(inst.PaidAmount)
		if paid.GreaterThan(balanceWithout) {
			return exceedsErr(paid, balanceWithout)
		}
		old := inst.PaidAmount
		inst.PaidAmount = paid
		inst.Status = StatusFor(inst.Amount, paid, inst.DueDate, now)
		if paid.IsPositive() {
			inst.PaidDate = &now
		} else {
			inst.PaidDate = nil
		}
		if input.Mode != "" {
			inst.Mode = input.Mode
		}
		if input.Reference != "" {
			inst.Reference = input.Reference
		}
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return fmt.Errorf("payments: update installment: %w", err)
		}
		updated, err := Reconcile(ctx, tx, inst.OrderID)
		if err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:    inst.OrderID,
			Entity:     "installment",
			EntityID:   inst.ID,
			ActorID:    actor.ID,
			ChangeType: shared.ChangePaymentUpdated,
			FieldName:  "paid_amount",
			OldValue:   old.StringFixed(2),
			NewValue:   paid.StringFixed(2),
			Description: fmt.Sprintf("Installment #%d paid amount changed from ₹%s to ₹%s (%s). New balance: ₹%s",
				inst.Number, shared.FormatAmount(old), shared.FormatAmount(paid), inst.Status, shared.FormatAmount(updated.Balance)),
		})
	})
	if err != nil {
		s.logRejection("installment update rejected", current.OrderID, err)
		return Installment{}, err
	}
	s.logger.Info("installment updated", slog.Int64("installment_id", inst.ID), slog.String("status", string(inst.Status)))
	return inst, nil
}

// CancelInstallment voids an unpaid installment.
func (s *Service) CancelInstallment(ctx context.Context, actor shared.Actor, installmentID int64) (inst Installment, err error) {
	defer func() { s.observer.ObserveOperation("payments.cancel", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermPaymentsManage); err != nil {
		return Installment{}, err
	}
	current, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return Installment{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, current.OrderID); err != nil {
			return err
		}
		inst, err = tx.LockInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		if inst.Status == StatusCancelled {
			return shared.Validationf("payments: installment %d already cancelled", inst.Number)
		}
		if inst.PaidAmount.IsPositive() {
			return shared.Validationf("payments: installment %d has payments recorded", inst.Number)
		}
		inst.Status = StatusCancelled
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}
		if _, err := Reconcile(ctx, tx, inst.OrderID); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			OrderID:     inst.OrderID,
			Entity:      "installment",
			EntityID:    inst.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeInstallmentVoided,
			Description: fmt.Sprintf("Installment #%d of ₹%s cancelled", inst.Number, shared.FormatAmount(inst.Amount)),
		})
	})
	if err != nil {
		return Installment{}, err
	}
	return inst, nil
}

// ListInstallments returns the installments of an order by number.
func (s *Service) ListInstallments(ctx context.Context, orderID int64) ([]Installment, error) {
	if _, err := s.repo.GetAccount(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListInstallments(ctx, orderID)
}

// Account returns the money view of an order.
func (s *Service) Account(ctx context.Context, orderID int64) (Account, error) {
	return s.repo.GetAccount(ctx, orderID)
}

// Verify recomputes an order's balance from its installments without writing anything.
func (s *Service) Verify(ctx context.Context, orderID int64) (BalanceCheck, error) {
	acc, err := s.repo.GetAccount(ctx, orderID)
	if err != nil {
		return BalanceCheck{}, err
	}
	rows, err := s.repo.ListInstallments(ctx, orderID)
	if err != nil {
		return BalanceCheck{}, err
	}
	totals := Totals(rows)
	computed := acc.Net().Sub(totals.Paid)
	check := BalanceCheck{
		OrderID:         orderID,
		StoredBalance:   acc.Balance,
		ComputedBalance: computed,
		StoredAdvance:   acc.AdvancePaid,
		ComputedAdvance: totals.Advance,
		PaidTotal:       totals.Paid,
		NegativeBalance: computed.IsNegative(),
		OverpaidBy:      decimal.Max(computed.Neg(), decimal.Zero),
	}
	if !check.Consistent() {
		s.logger.Warn("balance drift detected",
			slog.Int64("order_id", orderID),
			slog.String("stored", acc.Balance.StringFixed(2)),
			slog.String("computed", computed.StringFixed(2)),
		)
	}
	return check, nil
}

func (s *Service) logRejection(msg string, orderID int64, err error) {
	kind := shared.KindName(err)
	if kind == "" {
		s.logger.Error(msg, slog.Int64("order_id", orderID), slog.Any("error", err))
		return
	}
	attrs := []any{slog.Int64("order_id", orderID), slog.String("kind", kind)}
	for k, v := range shared.AmountsOf(err) {
		attrs = append(attrs, slog.String(k, v.StringFixed(2)))
	}
	s.logger.Warn(msg, attrs...)
}

func cancelledErr(acc Account) error {
	return shared.NewError(shared.ErrOrderCancelled, nil, "Order %s is cancelled", acc.OrderNumber)
}

func exceedsErr(amount, balance decimal.Decimal) error {
	return shared.NewError(shared.ErrExceedsBalance,
		map[string]decimal.Decimal{"amount": amount, "balance": balance},
		"Payment amount (₹%s) exceeds balance (₹%s)", shared.FormatAmount(amount), shared.FormatAmount(balance))
}
