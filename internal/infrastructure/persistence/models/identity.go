package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/identity"
)

// ProfileModel is the persistence model for the Profile domain entity.
type ProfileModel struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Role      identity.Role `gorm:"type:varchar(20);not null;index"`
	FullName  string        `gorm:"type:varchar(200)"`
	Phone     string        `gorm:"type:varchar(50)"`
	Email     string        `gorm:"type:varchar(200)"`
	CreatedAt time.Time     `gorm:"not null"`
	UpdatedAt time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProfileModel) TableName() string {
	return "profiles"
}

// ToDomain converts the persistence model to a domain Profile.
func (m *ProfileModel) ToDomain() *identity.Profile {
	return &identity.Profile{
		ID:        m.ID,
		Role:      m.Role,
		FullName:  m.FullName,
		Phone:     m.Phone,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ProfileModelFromDomain converts a domain Profile to the persistence model.
func ProfileModelFromDomain(p *identity.Profile) *ProfileModel {
	return &ProfileModel{
		ID:        p.ID,
		Role:      p.Role,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Email:     p.Email,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// TechnicianModel is the persistence model for the Technician domain entity.
// Verified is nullable: NULL means the review is still pending.
type TechnicianModel struct {
	ProfileID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Verified     *bool
	BillVendorID *string   `gorm:"type:varchar(64)"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TechnicianModel) TableName() string {
	return "technicians"
}

// ToDomain converts the persistence model to a domain Technician.
func (m *TechnicianModel) ToDomain() *identity.Technician {
	return &identity.Technician{
		ProfileID:    m.ProfileID,
		Verified:     m.Verified,
		BillVendorID: m.BillVendorID,
	}
}

// TechnicianModelFromDomain converts a domain Technician to the persistence model.
func TechnicianModelFromDomain(t *identity.Technician) *TechnicianModel {
	return &TechnicianModel{
		ProfileID:    t.ProfileID,
		Verified:     t.Verified,
		BillVendorID: t.BillVendorID,
		UpdatedAt:    time.Now(),
	}
}
