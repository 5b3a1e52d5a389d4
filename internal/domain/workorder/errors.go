package workorder

import (
	"errors"
	"fmt"

	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/shared"
)

// Reasons a transition is refused. They are reachable with errors.Is through a
// *ForbiddenTransition.
var (
	ErrNotTechnician      = errors.New("work order: actor is not a technician")
	ErrTechnicianPending  = errors.New("work order: technician verification is pending")
	ErrTechnicianRejected = errors.New("work order: technician verification was rejected")
	ErrNotAssignee        = errors.New("work order: actor is not the assigned technician")
	ErrNotLabManager      = errors.New("work order: actor does not manage the owning lab")
	ErrTerminalState      = errors.New("work order: status is terminal")
	ErrInvalidTransition  = errors.New("work order: transition not allowed")
)

// ForbiddenTransition is returned for every refused status change. It carries
// the actor role and both states for diagnostics.
type ForbiddenTransition struct {
	Role   identity.Role
	From   Status
	To     Status
	Reason error
}

// Error implements the error interface
func (e *ForbiddenTransition) Error() string {
	return fmt.Sprintf("%s cannot move work order from %s to %s: %v", e.Role, e.From, e.To, e.Reason)
}

// Unwrap exposes the reason sentinel and a FORBIDDEN domain error so the HTTP
// layer maps the failure to 403.
func (e *ForbiddenTransition) Unwrap() []error {
	return []error{e.Reason, shared.NewDomainError(shared.CodeForbidden, e.Error())}
}

func forbidden(role identity.Role, from, to Status, reason error) error {
	return &ForbiddenTransition{Role: role, From: from, To: to, Reason: reason}
}
