package identity

import (
	"context"

	"github.com/google/uuid"
)

// ProfileRepository defines the interface for profile persistence
type ProfileRepository interface {
	// FindByID finds a profile by identity
	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)

	// Save inserts or updates a profile
	Save(ctx context.Context, profile *Profile) error
}

// TechnicianRepository defines the interface for technician persistence
type TechnicianRepository interface {
	// FindByProfileID finds the technician record of a profile
	FindByProfileID(ctx context.Context, profileID uuid.UUID) (*Technician, error)

	// Save inserts or updates a technician
	Save(ctx context.Context, technician *Technician) error

	// SetBillVendorIDIfAbsent stores vendorID only when the current value is
	// missing or malformed. It reports whether this call wrote the value.
	SetBillVendorIDIfAbsent(ctx context.Context, profileID uuid.UUID, vendorID string) (bool, error)
}
