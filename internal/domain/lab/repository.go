package lab

import "context"

// Repository defines the interface for lab persistence
type Repository interface {
	// FindByID finds a lab by ID
	FindByID(ctx context.Context, id int64) (*Lab, error)

	// Save inserts or updates a lab
	Save(ctx context.Context, lab *Lab) error

	// SetBillCustomerIDIfAbsent stores customerID only when the lab has no
	// well-formed customer id yet. It reports whether this call wrote the
	// value; on false the caller must re-read the lab to get the winner's id.
	SetBillCustomerIDIfAbsent(ctx context.Context, labID int64, customerID string) (bool, error)
}
