package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProfileRepository implements identity.ProfileRepository using GORM
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new GormProfileRepository
func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// FindByID finds a profile by its ID
func (r *GormProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	var model models.ProfileModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "profile", id)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a profile
func (r *GormProfileRepository) Save(ctx context.Context, p *identity.Profile) error {
	return r.db.WithContext(ctx).Save(models.ProfileModelFromDomain(p)).Error
}

// GormTechnicianRepository implements identity.TechnicianRepository using GORM
type GormTechnicianRepository struct {
	db *gorm.DB
}

// NewGormTechnicianRepository creates a new GormTechnicianRepository
func NewGormTechnicianRepository(db *gorm.DB) *GormTechnicianRepository {
	return &GormTechnicianRepository{db: db}
}

// FindByProfileID finds the technician record for a profile
func (r *GormTechnicianRepository) FindByProfileID(ctx context.Context, profileID uuid.UUID) (*identity.Technician, error) {
	var model models.TechnicianModel
	if err := r.db.WithContext(ctx).First(&model, "profile_id = ?", profileID).Error; err != nil {
		return nil, notFound(err, "technician", profileID)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a technician
func (r *GormTechnicianRepository) Save(ctx context.Context, t *identity.Technician) error {
	return r.db.WithContext(ctx).Save(models.TechnicianModelFromDomain(t)).Error
}

// SetBillVendorIDIfAbsent writes vendorID unless the technician already holds
// a well-formed vendor id.
func (r *GormTechnicianRepository) SetBillVendorIDIfAbsent(ctx context.Context, profileID uuid.UUID, vendorID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TechnicianModel{}).
		Where("profile_id = ?", profileID).
		Where(missingExternalID("bill_vendor_id", identity.VendorIDPrefix)).
		Updates(map[string]any{
			"bill_vendor_id": vendorID,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByProfileID(ctx, profileID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

var (
	_ identity.ProfileRepository    = (*GormProfileRepository)(nil)
	_ identity.TechnicianRepository = (*GormTechnicianRepository)(nil)
)
