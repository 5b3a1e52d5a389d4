package persistence

import (
	"context"
	"time"

	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoice.Repository using GORM.
// Every status write is a single UPDATE guarded by the current status, so
// the row itself serialises concurrent callers.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// CreateUnbilled inserts a new unbilled invoice
func (r *GormInvoiceRepository) CreateUnbilled(ctx context.Context, inv *invoice.Invoice) error {
	if inv.PaymentStatus != invoice.PaymentStatusUnbilled {
		return shared.ValidationError("new invoices must be unbilled, got %s", inv.PaymentStatus)
	}
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.PreconditionFailed("%s invoice already exists for work order %d", inv.Type, inv.WorkOrderID)
		}
		return err
	}
	inv.ID = model.ID
	inv.CreatedAt = model.CreatedAt
	inv.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds an invoice by its provider AR invoice id
func (r *GormInvoiceRepository) FindByExternalID(ctx context.Context, externalID string) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "bill_ar_invoice_id = ?", externalID).Error; err != nil {
		return nil, notFound(err, "invoice with external id", externalID)
	}
	return model.ToDomain(), nil
}

// FindByWorkOrderAndType finds the invoice of the given type for a work order
func (r *GormInvoiceRepository) FindByWorkOrderAndType(ctx context.Context, workOrderID int64, t invoice.Type) (*invoice.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("work_order_id = ? AND invoice_type = ?", workOrderID, string(t)).
		First(&model).Error; err != nil {
		return nil, notFound(err, string(t)+" invoice for work order", workOrderID)
	}
	return model.ToDomain(), nil
}

// ListByWorkOrder returns the invoices of a work order, oldest first
func (r *GormInvoiceRepository) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]*invoice.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*invoice.Invoice, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// MarkAwaitingPayment moves an unbilled invoice to awaiting_payment.
// An invoice that was already sent yields PRECONDITION_FAILED.
func (r *GormInvoiceRepository) MarkAwaitingPayment(ctx context.Context, id int64, externalID string) error {
	if externalID == "" {
		return shared.ValidationError("bill_ar_invoice_id is required")
	}
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND payment_status = ?", id, string(invoice.PaymentStatusUnbilled)).
		Updates(map[string]any{
			"payment_status":     string(invoice.PaymentStatusAwaitingPayment),
			"bill_ar_invoice_id": externalID,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return shared.PreconditionFailed("external invoice id %s is already linked to another invoice", externalID)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return shared.PreconditionFailed("invoice %d already sent, status is %s", id, current.PaymentStatus)
	}
	return nil
}

// MarkPaid moves an invoice to paid from any earlier status. A paid invoice
// is left untouched and reported as (false, nil).
func (r *GormInvoiceRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND payment_status <> ?", id, string(invoice.PaymentStatusPaid)).
		Updates(map[string]any{
			"payment_status": string(invoice.PaymentStatusPaid),
			"paid_at":        now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

var _ invoice.Repository = (*GormInvoiceRepository)(nil)
