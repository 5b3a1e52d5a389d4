package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/shared"
)

// Role identifies which side of the marketplace a profile acts for.
type Role string

const (
	RoleLab        Role = "lab"        // Lab staff; a lab manager owns work orders
	RoleTechnician Role = "technician" // Service provider
	RoleAdmin      Role = "admin"      // Platform operator
)

// IsValid checks if the role is a known Role
func (r Role) IsValid() bool {
	switch r {
	case RoleLab, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

// String returns the string representation of Role
func (r Role) String() string {
	return string(r)
}

// Profile is the marketplace-side record of an authenticated identity.
type Profile struct {
	ID        uuid.UUID
	Role      Role
	FullName  string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates a profile for an identity issued by the auth service.
func NewProfile(id uuid.UUID, role Role, fullName, email string) (*Profile, error) {
	if id == uuid.Nil {
		return nil, shared.ValidationError("id is required")
	}
	if !role.IsValid() {
		return nil, shared.ValidationError("role %q is not valid", role)
	}
	now := time.Now()
	return &Profile{
		ID:        id,
		Role:      role,
		FullName:  strings.TrimSpace(fullName),
		Email:     strings.TrimSpace(email),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasEmail reports whether a notification address is on file.
func (p *Profile) HasEmail() bool {
	return strings.TrimSpace(p.Email) != ""
}

// DisplayName returns the full name, falling back to the email address.
func (p *Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}
