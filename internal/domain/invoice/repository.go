package invoice

import "context"

// Repository defines the interface for the invoice ledger.
// Status writes are single conditional updates so concurrent callers never
// regress payment_status.
type Repository interface {
	// CreateUnbilled inserts inv, which must be unbilled, and assigns its ID.
	// A second invoice of the same type for a work order is rejected with a
	// PRECONDITION_FAILED domain error.
	CreateUnbilled(ctx context.Context, inv *Invoice) error

	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id int64) (*Invoice, error)

	// FindByExternalID finds an invoice by its provider AR invoice id
	FindByExternalID(ctx context.Context, externalID string) (*Invoice, error)

	// FindByWorkOrderAndType finds the invoice of type t for a work order
	FindByWorkOrderAndType(ctx context.Context, workOrderID int64, t Type) (*Invoice, error)

	// ListByWorkOrder returns all invoices of a work order, oldest first
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]*Invoice, error)

	// MarkAwaitingPayment moves an unbilled invoice to awaiting_payment and
	// stores externalID.
	MarkAwaitingPayment(ctx context.Context, id int64, externalID string) error

	// MarkPaid moves an invoice to paid. Applying it to a paid invoice is a
	// no-op success. It reports whether this call performed the transition.
	MarkPaid(ctx context.Context, id int64) (bool, error)
}
