package persistence

import (
	"context"
	"time"

	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GormWorkOrderRepository implements workorder.Repository using GORM
type GormWorkOrderRepository struct {
	db *gorm.DB
}

// NewGormWorkOrderRepository creates a new GormWorkOrderRepository
func NewGormWorkOrderRepository(db *gorm.DB) *GormWorkOrderRepository {
	return &GormWorkOrderRepository{db: db}
}

// FindByID finds a work order by its ID
func (r *GormWorkOrderRepository) FindByID(ctx context.Context, id int64) (*workorder.WorkOrder, error) {
	var model models.WorkOrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "work order", id)
	}
	return model.ToDomain(), nil
}

// FindAll returns one page of work orders and the total count. Without an
// explicit sort the newest come first.
func (r *GormWorkOrderRepository) FindAll(ctx context.Context, filter workorder.Filter) ([]*workorder.WorkOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WorkOrderModel{})
	if filter.LabID != nil {
		query = query.Where("lab_id = ?", *filter.LabID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	sortField := ValidateSortField(filter.OrderBy, WorkOrderSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var rows []models.WorkOrderModel
	if err := query.Order(sortField + " " + sortOrder).Order("id " + sortOrder).
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*workorder.WorkOrder, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a new work order
func (r *GormWorkOrderRepository) Create(ctx context.Context, wo *workorder.WorkOrder) error {
	model := models.WorkOrderModelFromDomain(wo)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	wo.ID = model.ID
	wo.CreatedAt = model.CreatedAt
	wo.UpdatedAt = model.UpdatedAt
	return nil
}

// Update writes the mutable columns of wo guarded by the expected status.
// A map is used so a cleared assignee is written as NULL.
func (r *GormWorkOrderRepository) Update(ctx context.Context, wo *workorder.WorkOrder, expected workorder.Status) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.WorkOrderModel{}).
		Where("id = ? AND status = ?", wo.ID, string(expected)).
		Updates(map[string]any{
			"title":          wo.Title,
			"description":    wo.Description,
			"equipment":      wo.Equipment,
			"urgency":        string(wo.Urgency),
			"category_id":    wo.CategoryID,
			"assigned_to":    wo.AssignedTo,
			"status":         string(wo.Status),
			"scheduled_date": wo.ScheduledDate,
			"updated_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, wo.ID); err != nil {
			return err
		}
		return workorder.ErrConcurrentModification
	}
	wo.UpdatedAt = now
	return nil
}

// SetVendorBillIDIfAbsent records billID only while no vendor bill is on file
func (r *GormWorkOrderRepository) SetVendorBillIDIfAbsent(ctx context.Context, id int64, billID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WorkOrderModel{}).
		Where("id = ? AND bill_vendor_bill_id IS NULL", id).
		Updates(map[string]any{
			"bill_vendor_bill_id": billID,
			"updated_at":          time.Now(),
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

// GormWorkOrderUpdateRepository implements workorder.UpdateRepository using GORM
type GormWorkOrderUpdateRepository struct {
	db *gorm.DB
}

// NewGormWorkOrderUpdateRepository creates a new GormWorkOrderUpdateRepository
func NewGormWorkOrderUpdateRepository(db *gorm.DB) *GormWorkOrderUpdateRepository {
	return &GormWorkOrderUpdateRepository{db: db}
}

// Append inserts a history entry
func (r *GormWorkOrderUpdateRepository) Append(ctx context.Context, u *workorder.Update) error {
	model := models.WorkOrderUpdateModelFromDomain(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	u.ID = model.ID
	u.CreatedAt = model.CreatedAt
	return nil
}

// ListByWorkOrder returns the thread of a work order, oldest first
func (r *GormWorkOrderUpdateRepository) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]*workorder.Update, error) {
	var rows []models.WorkOrderUpdateModel
	if err := r.db.WithContext(ctx).
		Where("work_order_id = ?", workOrderID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*workorder.Update, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var (
	_ workorder.Repository       = (*GormWorkOrderRepository)(nil)
	_ workorder.UpdateRepository = (*GormWorkOrderUpdateRepository)(nil)
)
