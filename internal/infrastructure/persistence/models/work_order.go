package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/workorder"
)

// WorkOrderModel is the persistence model for the WorkOrder domain entity.
type WorkOrderModel struct {
	BaseModel
	Title            string            `gorm:"type:varchar(200);not null"`
	Description      string            `gorm:"type:text"`
	Equipment        string            `gorm:"type:varchar(200)"`
	Urgency          workorder.Urgency `gorm:"type:varchar(20);not null;default:'normal'"`
	CategoryID       *int64
	LabID            int64            `gorm:"not null;index"`
	CreatedBy        uuid.UUID        `gorm:"type:uuid;not null"`
	AssignedTo       *uuid.UUID       `gorm:"type:uuid;index"`
	Status           workorder.Status `gorm:"type:varchar(20);not null;default:'open';index"`
	ScheduledDate    *time.Time
	BillVendorBillID *string `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (WorkOrderModel) TableName() string {
	return "work_orders"
}

// ToDomain converts the persistence model to a domain WorkOrder.
func (m *WorkOrderModel) ToDomain() *workorder.WorkOrder {
	return &workorder.WorkOrder{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		Equipment:        m.Equipment,
		Urgency:          m.Urgency,
		CategoryID:       m.CategoryID,
		LabID:            m.LabID,
		CreatedBy:        m.CreatedBy,
		AssignedTo:       m.AssignedTo,
		Status:           m.Status,
		ScheduledDate:    m.ScheduledDate,
		BillVendorBillID: m.BillVendorBillID,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// WorkOrderModelFromDomain converts a domain WorkOrder to the persistence model.
func WorkOrderModelFromDomain(w *workorder.WorkOrder) *WorkOrderModel {
	return &WorkOrderModel{
		BaseModel: BaseModel{
			ID:        w.ID,
			CreatedAt: w.CreatedAt,
			UpdatedAt: w.UpdatedAt,
		},
		Title:            w.Title,
		Description:      w.Description,
		Equipment:        w.Equipment,
		Urgency:          w.Urgency,
		CategoryID:       w.CategoryID,
		LabID:            w.LabID,
		CreatedBy:        w.CreatedBy,
		AssignedTo:       w.AssignedTo,
		Status:           w.Status,
		ScheduledDate:    w.ScheduledDate,
		BillVendorBillID: w.BillVendorBillID,
	}
}

// WorkOrderUpdateModel is the persistence model for a history entry.
type WorkOrderUpdateModel struct {
	ID          int64                `gorm:"primaryKey;autoIncrement"`
	WorkOrderID int64                `gorm:"not null;index"`
	AuthorID    uuid.UUID            `gorm:"type:uuid;not null"`
	Kind        workorder.UpdateKind `gorm:"type:varchar(20);not null"`
	Body        string               `gorm:"type:text;not null"`
	FromStatus  *string              `gorm:"type:varchar(20)"`
	ToStatus    *string              `gorm:"type:varchar(20)"`
	CreatedAt   time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkOrderUpdateModel) TableName() string {
	return "work_order_updates"
}

// ToDomain converts the persistence model to a domain Update.
func (m *WorkOrderUpdateModel) ToDomain() *workorder.Update {
	u := &workorder.Update{
		ID:          m.ID,
		WorkOrderID: m.WorkOrderID,
		AuthorID:    m.AuthorID,
		Kind:        m.Kind,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
	}
	if m.FromStatus != nil {
		s := workorder.Status(*m.FromStatus)
		u.FromStatus = &s
	}
	if m.ToStatus != nil {
		s := workorder.Status(*m.ToStatus)
		u.ToStatus = &s
	}
	return u
}

// WorkOrderUpdateModelFromDomain converts a domain Update to the persistence model.
func WorkOrderUpdateModelFromDomain(u *workorder.Update) *WorkOrderUpdateModel {
	m := &WorkOrderUpdateModel{
		ID:          u.ID,
		WorkOrderID: u.WorkOrderID,
		AuthorID:    u.AuthorID,
		Kind:        u.Kind,
		Body:        u.Body,
		CreatedAt:   u.CreatedAt,
	}
	if u.FromStatus != nil {
		s := string(*u.FromStatus)
		m.FromStatus = &s
	}
	if u.ToStatus != nil {
		s := string(*u.ToStatus)
		m.ToStatus = &s
	}
	return m
}
