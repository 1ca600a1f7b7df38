package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Audit change types written by the core.
const (
	ChangeOrderCreated       = "ORDER_CREATED"
	ChangeStatusUpdate       = "STATUS_UPDATE"
	ChangeOrderSplit         = "ORDER_SPLIT"
	ChangeItemUpdated        = "ITEM_UPDATED"
	ChangeDiscountUpdated    = "DISCOUNT_UPDATED"
	ChangePaymentRecorded    = "PAYMENT_RECORDED"
	ChangePaymentUpdated     = "PAYMENT_UPDATED"
	ChangePlanGenerated      = "INSTALLMENT_PLAN_CREATED"
	ChangeInstallmentVoided  = "INSTALLMENT_CANCELLED"
	ChangePaymentReallocated = "PAYMENT_REALLOCATED"
	ChangeStockAdjusted      = "STOCK_ADJUSTED"
	ChangeFabricCreated      = "FABRIC_CREATED"
	ChangePOCreated          = "PO_CREATED"
	ChangePOReceived         = "PO_RECEIVED"
	ChangePOPayment          = "PO_PAYMENT"
	ChangePOCancelled        = "PO_CANCELLED"
)

// AuditRecord represents a row in audit_trail.
type AuditRecord struct {
	OrderID     int64
	Entity      string
	EntityID    int64
	ActorID     int64
	ChangeType  string
	FieldName   string
	OldValue    string
	NewValue    string
	Description string
	At          time.Time
}

// Validate checks the required fields.
func (r AuditRecord) Validate() error {
	if r.ChangeType == "" || r.Entity == "" || r.Description == "" {
		return errors.New("audit record requires change type, entity and description")
	}
	return nil
}

// InsertAudit writes the record inside the caller's transaction.
func InsertAudit(ctx context.Context, tx pgx.Tx, rec AuditRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `INSERT INTO audit_trail (order_id, entity, entity_id, actor_id, change_type, field_name, old_value, new_value, description, occurred_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),NULLIF($8,''),$9,$10)`,
		nullID(rec.OrderID), rec.Entity, rec.EntityID, nullID(rec.ActorID), rec.ChangeType, rec.FieldName, rec.OldValue, rec.NewValue, rec.Description, rec.At)
	return err
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
