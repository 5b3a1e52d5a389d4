package models

import "time"

// BaseModel provides the integer key and timestamps shared by the
// marketplace tables.
type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// All returns every model in migration order. Tests use it with AutoMigrate.
func All() []any {
	return []any{
		&ProfileModel{},
		&TechnicianModel{},
		&LabModel{},
		&WorkOrderModel{},
		&WorkOrderUpdateModel{},
		&InvoiceModel{},
	}
}
