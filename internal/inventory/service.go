package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/stitchline/stitchline/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetFabric(ctx context.Context, id int64) (FabricItem, error)
	ListFabrics(ctx context.Context) ([]FabricItem, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	AllMovements(ctx context.Context, fabricID int64) ([]Movement, error)
}

// Service coordinates the stock ledger.
type Service struct {
	repo     RepositoryPort
	authz    shared.Authorizer
	logger   *slog.Logger
	observer shared.OperationObserver
	group    singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, authz shared.Authorizer, logger *slog.Logger) *Service {
	if authz == nil {
		authz = shared.AllowAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, authz: authz, logger: logger, observer: shared.NopObserver{}}
}

// UseObserver reports operation outcomes to o.
func (s *Service) UseObserver(o shared.OperationObserver) {
	if o != nil {
		s.observer = o
	}
}

// CreateFabric registers a fabric SKU. Opening stock is narrated as an ADJUSTMENT row.
func (s *Service) CreateFabric(ctx context.Context, actor shared.Actor, input CreateFabricInput) (created FabricItem, err error) {
	defer func() { s.observer.ObserveOperation("inventory.create_fabric", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermInventoryManage); err != nil {
		return FabricItem{}, err
	}
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return FabricItem{}, shared.Validationf("inventory: code and name required")
	}
	if input.OpeningStock.IsNegative() || input.MinimumThreshold.IsNegative() || input.UnitPrice.IsNegative() {
		return FabricItem{}, shared.Validationf("inventory: quantities and price must be >= 0")
	}
	if input.Unit == "" {
		input.Unit = "m"
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.InsertFabric(ctx, FabricItem{
			Code:             input.Code,
			Name:             input.Name,
			Unit:             input.Unit,
			MinimumThreshold: input.MinimumThreshold,
			UnitPrice:        input.UnitPrice,
		})
		if err != nil {
			return err
		}
		if input.OpeningStock.IsPositive() {
			if _, err := Append(ctx, tx, &item, Entry{
				Type:     MovementAdjustment,
				Quantity: input.OpeningStock,
				Notes:    "Opening stock",
				ActorID:  actor.ID,
			}); err != nil {
				return err
			}
		}
		created = item
		return tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "fabric",
			EntityID:    item.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeFabricCreated,
			Description: fmt.Sprintf("Fabric %s (%s) created with %s", item.Name, item.Code, shared.FormatMeters(input.OpeningStock)),
		})
	})
	if err != nil {
		return FabricItem{}, err
	}
	s.logger.Info("fabric created", slog.Int64("fabric_id", created.ID), slog.String("code", created.Code))
	return created, nil
}

// AdjustStock appends a manual PURCHASE, ADJUSTMENT, RETURN or WASTAGE movement.
// PURCHASE and RETURN always add, WASTAGE always removes, ADJUSTMENT keeps its sign.
func (s *Service) AdjustStock(ctx context.Context, actor shared.Actor, input AdjustInput) (mv Movement, err error) {
	defer func() { s.observer.ObserveOperation("inventory.adjust", err) }()
	if err := s.authz.Authorize(ctx, actor, shared.PermInventoryManage); err != nil {
		return Movement{}, err
	}
	if input.FabricID == 0 {
		return Movement{}, shared.Validationf("inventory: fabric required")
	}
	if input.Quantity.IsZero() {
		return Movement{}, shared.Validationf("inventory: quantity must be non zero")
	}
	qty := input.Quantity
	switch input.Type {
	case MovementPurchase, MovementReturn:
		qty = qty.Abs()
	case MovementWastage:
		qty = qty.Abs().Neg()
	case MovementAdjustment:
	default:
		return Movement{}, shared.Validationf("inventory: %s cannot be posted manually", input.Type)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := Lock(ctx, tx, input.FabricID)
		if err != nil {
			return err
		}
		before := item.OnHand
		mv, err = Append(ctx, tx, &item, Entry{Type: input.Type, Quantity: qty, Notes: input.Notes, ActorID: actor.ID})
		if err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditRecord{
			Entity:      "fabric",
			EntityID:    item.ID,
			ActorID:     actor.ID,
			ChangeType:  shared.ChangeStockAdjusted,
			FieldName:   "on_hand",
			OldValue:    before.String(),
			NewValue:    item.OnHand.String(),
			Description: fmt.Sprintf("%s of %s on %s", input.Type, shared.FormatMeters(qty), item.Name),
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.logger.Warn("stock adjustment rejected", slog.Int64("fabric_id", input.FabricID), slog.String("quantity", qty.String()))
		}
		return Movement{}, err
	}
	s.logger.Info("stock adjusted", slog.Int64("fabric_id", input.FabricID), slog.String("type", string(input.Type)), slog.String("quantity", qty.String()))
	return mv, nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id int64) (FabricItem, error) {
	return s.repo.GetFabric(ctx, id)
}

// History lists an item's movements newest first. Pass the last seen ID as BeforeID to continue.
func (s *Service) History(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.FabricID == 0 {
		return nil, shared.Validationf("inventory: fabric required")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if _, err := s.repo.GetFabric(ctx, filter.FabricID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, filter)
}

// Verify replays the ledger of an item and compares it with the stored counters.
func (s *Service) Verify(ctx context.Context, fabricID int64) (Verification, error) {
	item, err := s.repo.GetFabric(ctx, fabricID)
	if err != nil {
		return Verification{}, err
	}
	movements, err := s.repo.AllMovements(ctx, fabricID)
	if err != nil {
		return Verification{}, err
	}
	onHand, reserved, broken := Replay(movements)
	v := Verification{
		FabricID:         fabricID,
		Movements:        len(movements),
		OnHand:           item.OnHand,
		Reserved:         item.Reserved,
		LedgerOnHand:     onHand,
		LedgerReserved:   reserved,
		BrokenChainAtIDs: broken,
	}
	if !v.Consistent() {
		s.logger.Warn("ledger drift detected",
			slog.Int64("fabric_id", fabricID),
			slog.String("on_hand", item.OnHand.String()),
			slog.String("ledger_on_hand", onHand.String()),
			slog.String("reserved", item.Reserved.String()),
			slog.String("ledger_reserved", reserved.String()),
		)
	}
	return v, nil
}

// StockLevels classifies every item. Concurrent callers share one query, which runs
// detached from the first caller's cancellation; each caller still stops waiting on its own ctx.
func (s *Service) StockLevels(ctx context.Context) ([]StockStatus, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan("stock-levels", func() (any, error) {
		items, err := s.repo.ListFabrics(detached)
		if err != nil {
			return nil, err
		}
		out := make([]StockStatus, 0, len(items))
		for _, item := range items {
			out = append(out, StockStatus{Item: item, Level: item.Level()})
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]StockStatus), nil
	}
}

// LowStock returns the items classified LOW or CRITICAL.
func (s *Service) LowStock(ctx context.Context) ([]StockStatus, error) {
	all, err := s.StockLevels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StockStatus, 0)
	for _, st := range all {
		if st.Level != LevelOK {
			out = append(out, st)
		}
	}
	return out, nil
}
