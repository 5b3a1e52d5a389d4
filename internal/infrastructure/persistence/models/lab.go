package models

import (
	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/lab"
)

// LabModel is the persistence model for the Lab domain entity.
type LabModel struct {
	BaseModel
	Name           string    `gorm:"type:varchar(200);not null"`
	ManagerID      uuid.UUID `gorm:"type:uuid;not null;index"`
	AddressLine1   string    `gorm:"type:varchar(200)"`
	AddressLine2   string    `gorm:"type:varchar(200)"`
	City           string    `gorm:"type:varchar(100)"`
	State          string    `gorm:"type:varchar(100)"`
	PostalCode     string    `gorm:"type:varchar(20)"`
	BillCustomerID *string   `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (LabModel) TableName() string {
	return "labs"
}

// ToDomain converts the persistence model to a domain Lab.
func (m *LabModel) ToDomain() *lab.Lab {
	return &lab.Lab{
		ID:        m.ID,
		Name:      m.Name,
		ManagerID: m.ManagerID,
		Address: lab.Address{
			Line1:      m.AddressLine1,
			Line2:      m.AddressLine2,
			City:       m.City,
			State:      m.State,
			PostalCode: m.PostalCode,
		},
		BillCustomerID: m.BillCustomerID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// LabModelFromDomain converts a domain Lab to the persistence model.
func LabModelFromDomain(l *lab.Lab) *LabModel {
	return &LabModel{
		BaseModel: BaseModel{
			ID:        l.ID,
			CreatedAt: l.CreatedAt,
			UpdatedAt: l.UpdatedAt,
		},
		Name:           l.Name,
		ManagerID:      l.ManagerID,
		AddressLine1:   l.Address.Line1,
		AddressLine2:   l.Address.Line2,
		City:           l.Address.City,
		State:          l.Address.State,
		PostalCode:     l.Address.PostalCode,
		BillCustomerID: l.BillCustomerID,
	}
}
