package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLabRepository implements lab.Repository using GORM
type GormLabRepository struct {
	db *gorm.DB
}

// NewGormLabRepository creates a new GormLabRepository
func NewGormLabRepository(db *gorm.DB) *GormLabRepository {
	return &GormLabRepository{db: db}
}

// FindByID finds a lab by its ID
func (r *GormLabRepository) FindByID(ctx context.Context, id int64) (*lab.Lab, error) {
	var model models.LabModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "lab", id)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates a lab
func (r *GormLabRepository) Save(ctx context.Context, l *lab.Lab) error {
	model := models.LabModelFromDomain(l)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	l.ID = model.ID
	l.CreatedAt = model.CreatedAt
	l.UpdatedAt = model.UpdatedAt
	return nil
}

// SetBillCustomerIDIfAbsent writes customerID unless the lab already holds a
// well-formed customer id. The check and the write are one statement.
func (r *GormLabRepository) SetBillCustomerIDIfAbsent(ctx context.Context, labID int64, customerID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LabModel{}).
		Where("id = ?", labID).
		Where(missingExternalID("bill_customer_id", lab.CustomerIDPrefix)).
		Updates(map[string]any{
			"bill_customer_id": customerID,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, labID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// missingExternalID matches rows where column does not hold prefix followed by
// at least one character, the same rule as lab.IsCustomerID and
// identity.IsVendorID. substr keeps the prefix check case-sensitive on SQLite,
// whose LIKE is not.
func missingExternalID(column, prefix string) clause.Expr {
	return gorm.Expr(
		fmt.Sprintf("%[1]s IS NULL OR length(%[1]s) <= ? OR substr(%[1]s, 1, ?) <> ?", column),
		len(prefix), len(prefix), prefix,
	)
}

var _ lab.Repository = (*GormLabRepository)(nil)
