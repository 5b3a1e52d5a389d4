package workorder

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrConcurrentModification is returned when the stored status no longer
// matches the status a transition was computed from.
var ErrConcurrentModification = errors.New("work order: modified concurrently")

// Filter contains filter options for listing work orders
type Filter struct {
	LabID      *int64
	Status     *Status
	AssignedTo *uuid.UUID
	Page       int
	PageSize   int
	OrderBy    string
	OrderDir   string
}

// Repository defines the interface for work order persistence
type Repository interface {
	// FindByID finds a work order by ID
	FindByID(ctx context.Context, id int64) (*WorkOrder, error)

	// FindAll returns work orders matching the filter and the total count
	FindAll(ctx context.Context, filter Filter) ([]*WorkOrder, int64, error)

	// Create inserts a new work order and assigns its ID
	Create(ctx context.Context, wo *WorkOrder) error

	// Update persists wo only if its stored status still equals expected.
	// It returns ErrConcurrentModification otherwise.
	Update(ctx context.Context, wo *WorkOrder, expected Status) error

	// SetVendorBillIDIfAbsent records the vendor bill id once. It reports
	// whether this call wrote the value.
	SetVendorBillIDIfAbsent(ctx context.Context, id int64, billID string) (bool, error)
}

// UpdateRepository defines the interface for the history thread
type UpdateRepository interface {
	// Append inserts an entry and assigns its ID
	Append(ctx context.Context, u *Update) error

	// ListByWorkOrder returns entries oldest first
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]*Update, error)
}
