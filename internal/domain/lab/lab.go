package lab

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/shared"
)

// CustomerIDPrefix is the prefix every billing-provider customer id carries.
// Stored ids without it are treated as absent and re-provisioned.
const CustomerIDPrefix = "0cu"

// Address is the lab's postal address.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

// Lab is a customer of the marketplace. It owns work orders and, once billed,
// exactly one billing-provider customer id.
type Lab struct {
	ID             int64
	Name           string
	ManagerID      uuid.UUID
	Address        Address
	BillCustomerID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewLab creates a lab managed by managerID.
func NewLab(name string, managerID uuid.UUID, addr Address) (*Lab, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ValidationError("name is required")
	}
	if managerID == uuid.Nil {
		return nil, shared.ValidationError("manager_id is required")
	}
	now := time.Now()
	return &Lab{
		Name:      name,
		ManagerID: managerID,
		Address:   addr,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsManagedBy reports whether userID manages this lab.
func (l *Lab) IsManagedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && l.ManagerID == userID
}

// HasCustomerID reports whether a reusable billing customer id is on file.
func (l *Lab) HasCustomerID() bool {
	return IsCustomerID(l.BillCustomerID)
}

// CustomerID returns the stored billing customer id, or "".
func (l *Lab) CustomerID() string {
	if l.BillCustomerID == nil {
		return ""
	}
	return *l.BillCustomerID
}

// IsCustomerID reports whether id is a well-formed billing customer id.
func IsCustomerID(id *string) bool {
	return id != nil && strings.HasPrefix(*id, CustomerIDPrefix) && len(*id) > len(CustomerIDPrefix)
}
