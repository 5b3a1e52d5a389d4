package identity

import (
	"strings"

	"github.com/google/uuid"
)

// VendorIDPrefix is the prefix every billing-provider vendor id carries.
const VendorIDPrefix = "009"

// Verification is the admin review outcome for a technician.
type Verification string

const (
	VerificationVerified Verification = "verified"
	VerificationPending  Verification = "pending"
	VerificationRejected Verification = "rejected"
)

// Technician extends a technician Profile with review and billing state.
// Verified is tri-state: true (verified), nil (pending review), false (rejected).
type Technician struct {
	ProfileID    uuid.UUID
	Verified     *bool
	BillVendorID *string
}

// Verification collapses the tri-state flag into a named outcome.
func (t *Technician) Verification() Verification {
	switch {
	case t.Verified == nil:
		return VerificationPending
	case *t.Verified:
		return VerificationVerified
	default:
		return VerificationRejected
	}
}

// IsVerified reports whether the technician passed review.
func (t *Technician) IsVerified() bool {
	return t.Verified != nil && *t.Verified
}

// HasVendorID reports whether a well-formed billing vendor id is on file.
func (t *Technician) HasVendorID() bool {
	return IsVendorID(t.BillVendorID)
}

// VendorID returns the stored billing vendor id, or "".
func (t *Technician) VendorID() string {
	if t.BillVendorID == nil {
		return ""
	}
	return *t.BillVendorID
}

// IsVendorID reports whether id is a well-formed billing vendor id.
func IsVendorID(id *string) bool {
	return id != nil && strings.HasPrefix(*id, VendorIDPrefix) && len(*id) > len(VendorIDPrefix)
}
