package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice domain entity.
// (work_order_id, invoice_type) is unique: one invoice per fee type.
type InvoiceModel struct {
	BaseModel
	WorkOrderID     int64                 `gorm:"not null;uniqueIndex:idx_invoices_work_order_type"`
	LabID           int64                 `gorm:"not null;index"`
	CreatedBy       uuid.UUID             `gorm:"type:uuid;not null"`
	InvoiceType     invoice.Type          `gorm:"type:varchar(20);not null;uniqueIndex:idx_invoices_work_order_type"`
	TotalAmount     decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	PaymentStatus   invoice.PaymentStatus `gorm:"type:varchar(20);not null;default:'unbilled';index"`
	BillARInvoiceID *string               `gorm:"column:bill_ar_invoice_id;type:varchar(64);uniqueIndex"`
	PaidAt          *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *invoice.Invoice {
	return &invoice.Invoice{
		ID:              m.ID,
		WorkOrderID:     m.WorkOrderID,
		LabID:           m.LabID,
		CreatedBy:       m.CreatedBy,
		Type:            m.InvoiceType,
		TotalAmount:     m.TotalAmount,
		PaymentStatus:   m.PaymentStatus,
		BillARInvoiceID: m.BillARInvoiceID,
		PaidAt:          m.PaidAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// InvoiceModelFromDomain converts a domain Invoice to the persistence model.
func InvoiceModelFromDomain(i *invoice.Invoice) *InvoiceModel {
	return &InvoiceModel{
		BaseModel: BaseModel{
			ID:        i.ID,
			CreatedAt: i.CreatedAt,
			UpdatedAt: i.UpdatedAt,
		},
		WorkOrderID:     i.WorkOrderID,
		LabID:           i.LabID,
		CreatedBy:       i.CreatedBy,
		InvoiceType:     i.Type,
		TotalAmount:     i.TotalAmount,
		PaymentStatus:   i.PaymentStatus,
		BillARInvoiceID: i.BillARInvoiceID,
		PaidAt:          i.PaidAt,
	}
}
