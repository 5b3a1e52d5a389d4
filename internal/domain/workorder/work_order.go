package workorder

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/shared"
)

// Actor is the authenticated caller attempting a mutation.
type Actor struct {
	ID   uuid.UUID
	Role identity.Role
}

// IsAdmin reports whether the actor is a platform operator.
func (a Actor) IsAdmin() bool {
	return a.Role == identity.RoleAdmin
}

// WorkOrder is a maintenance request posted by a lab.
type WorkOrder struct {
	ID               int64
	Title            string
	Description      string
	Equipment        string
	Urgency          Urgency
	CategoryID       *int64
	LabID            int64
	CreatedBy        uuid.UUID
	AssignedTo       *uuid.UUID
	Status           Status
	ScheduledDate    *time.Time
	BillVendorBillID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Details holds the editable fields of a work order.
type Details struct {
	Title         string
	Description   string
	Equipment     string
	Urgency       Urgency
	CategoryID    *int64
	ScheduledDate *time.Time
}

func (d Details) normalize() (Details, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return d, shared.ValidationError("title is required")
	}
	if len(d.Title) > 200 {
		return d, shared.ValidationError("title must be at most 200 characters")
	}
	if d.Urgency == "" {
		d.Urgency = UrgencyNormal
	}
	if !d.Urgency.IsValid() {
		return d, shared.ValidationError("urgency %q is not valid", d.Urgency)
	}
	return d, nil
}

// New creates an open work order for l, posted by its manager.
func New(actor Actor, l *lab.Lab, d Details) (*WorkOrder, error) {
	if l == nil {
		return nil, shared.ValidationError("lab_id is required")
	}
	if !l.IsManagedBy(actor.ID) && !actor.IsAdmin() {
		return nil, shared.AuthorizationError("only the lab manager can create work orders for lab %d", l.ID)
	}
	d, err := d.normalize()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &WorkOrder{
		Title:         d.Title,
		Description:   d.Description,
		Equipment:     d.Equipment,
		Urgency:       d.Urgency,
		CategoryID:    d.CategoryID,
		LabID:         l.ID,
		CreatedBy:     actor.ID,
		Status:        StatusOpen,
		ScheduledDate: d.ScheduledDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsAssignedTo reports whether userID is the assigned technician.
func (w *WorkOrder) IsAssignedTo(userID uuid.UUID) bool {
	return w.AssignedTo != nil && *w.AssignedTo == userID
}

// Claim assigns the work order to a verified technician.
func (w *WorkOrder) Claim(actor Actor, tech *identity.Technician) error {
	if err := w.checkEdge(actor, StatusClaimed); err != nil {
		return err
	}
	if actor.Role != identity.RoleTechnician || tech == nil || tech.ProfileID != actor.ID {
		return forbidden(actor.Role, w.Status, StatusClaimed, ErrNotTechnician)
	}
	switch tech.Verification() {
	case identity.VerificationPending:
		return forbidden(actor.Role, w.Status, StatusClaimed, ErrTechnicianPending)
	case identity.VerificationRejected:
		return forbidden(actor.Role, w.Status, StatusClaimed, ErrTechnicianRejected)
	}
	assignee := actor.ID
	w.AssignedTo = &assignee
	w.moveTo(StatusClaimed)
	return nil
}

// Release hands a claimed work order back to the open pool.
func (w *WorkOrder) Release(actor Actor) error {
	if err := w.checkEdge(actor, StatusOpen); err != nil {
		return err
	}
	if !w.IsAssignedTo(actor.ID) {
		return forbidden(actor.Role, w.Status, StatusOpen, ErrNotAssignee)
	}
	w.AssignedTo = nil
	w.moveTo(StatusOpen)
	return nil
}

// Complete marks the work as done. Only the assignee may complete.
func (w *WorkOrder) Complete(actor Actor) error {
	if err := w.checkEdge(actor, StatusCompleted); err != nil {
		return err
	}
	if !w.IsAssignedTo(actor.ID) {
		return forbidden(actor.Role, w.Status, StatusCompleted, ErrNotAssignee)
	}
	w.moveTo(StatusCompleted)
	return nil
}

// Cancel withdraws the work order. Only the manager of the owning lab may
// cancel, and only before completion.
func (w *WorkOrder) Cancel(actor Actor, l *lab.Lab) error {
	if err := w.checkEdge(actor, StatusCanceled); err != nil {
		return err
	}
	if l == nil || l.ID != w.LabID || !l.IsManagedBy(actor.ID) {
		return forbidden(actor.Role, w.Status, StatusCanceled, ErrNotLabManager)
	}
	w.AssignedTo = nil
	w.moveTo(StatusCanceled)
	return nil
}

// Edit replaces the descriptive fields while the work order is still open.
func (w *WorkOrder) Edit(actor Actor, l *lab.Lab, d Details) error {
	if l == nil || l.ID != w.LabID || !l.IsManagedBy(actor.ID) {
		return shared.AuthorizationError("only the lab manager can edit work order %d", w.ID)
	}
	if w.Status != StatusOpen {
		return shared.PreconditionFailed("work order %d can only be edited while open, status is %s", w.ID, w.Status)
	}
	d, err := d.normalize()
	if err != nil {
		return err
	}
	w.Title = d.Title
	w.Description = d.Description
	w.Equipment = d.Equipment
	w.Urgency = d.Urgency
	w.CategoryID = d.CategoryID
	w.ScheduledDate = d.ScheduledDate
	w.UpdatedAt = time.Now()
	return nil
}

// IsPayable reports whether the assigned technician may be paid.
func (w *WorkOrder) IsPayable() bool {
	return w.Status == StatusCompleted && w.AssignedTo != nil
}

func (w *WorkOrder) checkEdge(actor Actor, to Status) error {
	if w.Status.IsTerminal() {
		return forbidden(actor.Role, w.Status, to, ErrTerminalState)
	}
	if !w.Status.CanTransitionTo(to) {
		return forbidden(actor.Role, w.Status, to, ErrInvalidTransition)
	}
	return nil
}

func (w *WorkOrder) moveTo(to Status) {
	w.Status = to
	w.UpdatedAt = time.Now()
}
