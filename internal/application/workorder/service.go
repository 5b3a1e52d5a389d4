// Package workorder runs the work-order lifecycle for the HTTP layer: it
// loads the aggregates a transition needs, applies the domain rules and
// persists the result with optimistic concurrency.
package workorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/telemetry"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// InitialFeeInvoicer bills the initial fee of a new work order.
type InitialFeeInvoicer interface {
	CreateInitialFeeInvoice(ctx context.Context, workOrderID int64) (*payment.InvoiceResult, error)
}

// ServiceConfig holds the dependencies of Service
type ServiceConfig struct {
	WorkOrders  workorder.Repository
	Updates     workorder.UpdateRepository
	Labs        lab.Repository
	Technicians identity.TechnicianRepository
	Invoices    invoice.Repository
	Invoicer    InitialFeeInvoicer // optional
	Logger      *zap.Logger
}

// Service implements the work-order use cases.
type Service struct {
	workOrders  workorder.Repository
	updates     workorder.UpdateRepository
	labs        lab.Repository
	technicians identity.TechnicianRepository
	invoices    invoice.Repository
	invoicer    InitialFeeInvoicer
	logger      *zap.Logger
}

// NewService creates a new work order Service
func NewService(c ServiceConfig) *Service {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		workOrders:  c.WorkOrders,
		updates:     c.Updates,
		labs:        c.Labs,
		technicians: c.Technicians,
		invoices:    c.Invoices,
		invoicer:    c.Invoicer,
		logger:      logger,
	}
}

// CreateResult is a new work order and the outcome of billing its initial
// fee. InitialFeeError is set when billing failed; the work order stands.
type CreateResult struct {
	WorkOrder       *workorder.WorkOrder
	InitialFee      *payment.InvoiceResult
	InitialFeeError string
}

// Create posts a work order for a lab managed by actor and bills the
// initial fee on a best-effort basis.
func (s *Service) Create(ctx context.Context, actor workorder.Actor, labID int64, d workorder.Details) (result *CreateResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "workorder", "create",
		telemetry.SpanAttrLabID, labID,
		telemetry.SpanAttrActorRole, actor.Role.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if labID <= 0 {
		return nil, shared.ValidationError("lab_id is required")
	}
	l, err := s.labs.FindByID(ctx, labID)
	if err != nil {
		return nil, err
	}
	wo, err := workorder.New(actor, l, d)
	if err != nil {
		return nil, err
	}
	if err := s.workOrders.Create(ctx, wo); err != nil {
		return nil, fmt.Errorf("failed to create work order: %w", err)
	}
	s.logger.Info("Work order created",
		zap.Int64("work_order_id", wo.ID),
		zap.Int64("lab_id", l.ID),
		zap.String("urgency", string(wo.Urgency)))

	result = &CreateResult{WorkOrder: wo}
	if s.invoicer == nil {
		return result, nil
	}
	fee, feeErr := s.invoicer.CreateInitialFeeInvoice(ctx, wo.ID)
	if feeErr != nil {
		s.logger.Warn("Initial fee invoice failed, work order kept",
			zap.Int64("work_order_id", wo.ID),
			zap.Error(feeErr))
		result.InitialFeeError = feeErr.Error()
		return result, nil
	}
	result.InitialFee = fee
	return result, nil
}

// Get returns a work order visible to actor.
func (s *Service) Get(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error) {
	wo, err := s.workOrders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, actor, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// ListResult is one page of work orders.
type ListResult struct {
	Items    []*workorder.WorkOrder
	Total    int64
	Page     int
	PageSize int
}

// List returns work orders matching filter, narrowed to what actor may see:
// lab staff see their own lab, technicians see the open pool or their own
// assignments, admins see everything.
func (s *Service) List(ctx context.Context, actor workorder.Actor, filter workorder.Filter) (*ListResult, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, shared.ValidationError("status %q is not valid", *filter.Status)
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RoleLab:
		if filter.LabID == nil {
			return nil, shared.ValidationError("lab_id is required")
		}
		l, err := s.labs.FindByID(ctx, *filter.LabID)
		if err != nil {
			return nil, err
		}
		if !l.IsManagedBy(actor.ID) {
			return nil, shared.AuthorizationError("not allowed to list work orders of lab %d", l.ID)
		}
	case identity.RoleTechnician:
		if filter.AssignedTo != nil {
			if *filter.AssignedTo != actor.ID {
				return nil, shared.AuthorizationError("technicians can only list their own assignments")
			}
		} else {
			open := workorder.StatusOpen
			filter.Status = &open
		}
	default:
		return nil, shared.AuthorizationError("role %q cannot list work orders", actor.Role)
	}

	items, total, err := s.workOrders.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	return &ListResult{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// Claim assigns an open work order to the calling technician.
func (s *Service) Claim(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error) {
	return s.transition(ctx, actor, id, "claim", func(wo *workorder.WorkOrder) error {
		tech, err := s.technicians.FindByProfileID(ctx, actor.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return wo.Claim(actor, tech)
	})
}

// Release hands a claimed work order back to the open pool.
func (s *Service) Release(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error) {
	return s.transition(ctx, actor, id, "release", func(wo *workorder.WorkOrder) error {
		return wo.Release(actor)
	})
}

// Complete marks a claimed work order done.
func (s *Service) Complete(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error) {
	return s.transition(ctx, actor, id, "complete", func(wo *workorder.WorkOrder) error {
		return wo.Complete(actor)
	})
}

// Cancel withdraws a work order that is not yet completed.
func (s *Service) Cancel(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error) {
	return s.transition(ctx, actor, id, "cancel", func(wo *workorder.WorkOrder) error {
		l, err := s.labs.FindByID(ctx, wo.LabID)
		if err != nil {
			return err
		}
		return wo.Cancel(actor, l)
	})
}

// transition loads the work order, applies fn and persists the new status
// guarded by the status fn started from. The history entry is written after
// the guarded update succeeds.
func (s *Service) transition(ctx context.Context, actor workorder.Actor, id int64, op string, fn func(*workorder.WorkOrder) error) (wo *workorder.WorkOrder, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "workorder", op,
		telemetry.SpanAttrWorkOrderID, id,
		telemetry.SpanAttrActorRole, actor.Role.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	wo, err = s.workOrders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := wo.Status
	if err := fn(wo); err != nil {
		s.logger.Info("Work order transition refused",
			zap.Int64("work_order_id", id),
			zap.String("op", op),
			zap.String("role", actor.Role.String()),
			zap.String("status", from.String()),
			zap.Error(err))
		return nil, err
	}
	if err := s.workOrders.Update(ctx, wo, from); err != nil {
		return nil, concurrencyError(err, id)
	}

	s.appendHistory(ctx, workorder.NewStatusChange(wo.ID, actor.ID, from, wo.Status))
	s.logger.Info("Work order status changed",
		zap.Int64("work_order_id", wo.ID),
		zap.String("from", from.String()),
		zap.String("to", wo.Status.String()),
		zap.String("actor_id", actor.ID.String()))
	return wo, nil
}

// Edit replaces the descriptive fields of an open work order.
func (s *Service) Edit(ctx context.Context, actor workorder.Actor, id int64, d workorder.Details) (*workorder.WorkOrder, error) {
	wo, err := s.workOrders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.labs.FindByID(ctx, wo.LabID)
	if err != nil {
		return nil, err
	}
	if err := wo.Edit(actor, l, d); err != nil {
		return nil, err
	}
	if err := s.workOrders.Update(ctx, wo, workorder.StatusOpen); err != nil {
		return nil, concurrencyError(err, id)
	}
	return wo, nil
}

// AddComment posts a comment on the history thread. The lab manager, the
// assignee and admins may comment.
func (s *Service) AddComment(ctx context.Context, actor workorder.Actor, id int64, body string) (*workorder.Update, error) {
	wo, err := s.workOrders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !wo.IsAssignedTo(actor.ID) {
		managed, err := s.managesLab(ctx, actor.ID, wo.LabID)
		if err != nil {
			return nil, err
		}
		if !managed {
			return nil, shared.AuthorizationError("not allowed to comment on work order %d", wo.ID)
		}
	}
	u, err := workorder.NewComment(wo.ID, actor.ID, body)
	if err != nil {
		return nil, err
	}
	if err := s.updates.Append(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	return u, nil
}

// ListUpdates returns the history thread of a work order, oldest first.
func (s *Service) ListUpdates(ctx context.Context, actor workorder.Actor, id int64) ([]*workorder.Update, error) {
	wo, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.updates.ListByWorkOrder(ctx, wo.ID)
}

// RequestServicePayment records the unbilled service invoice for a completed
// work order. Only the assigned technician may request payment, once.
func (s *Service) RequestServicePayment(ctx context.Context, actor workorder.Actor, id int64, amount decimal.Decimal) (*invoice.Invoice, error) {
	wo, err := s.workOrders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wo.IsAssignedTo(actor.ID) {
		return nil, shared.AuthorizationError("only the assigned technician can request payment for work order %d", wo.ID)
	}
	if wo.Status != workorder.StatusCompleted {
		return nil, shared.PreconditionFailed("work order %d must be completed, status is %s", wo.ID, wo.Status)
	}
	inv, err := invoice.NewUnbilled(wo.ID, wo.LabID, actor.ID, amount, invoice.TypeService)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.CreateUnbilled(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("Service invoice requested",
		zap.Int64("work_order_id", wo.ID),
		zap.Int64("invoice_id", inv.ID),
		zap.String("amount", inv.TotalAmount.String()))
	return inv, nil
}

func (s *Service) checkVisible(ctx context.Context, actor workorder.Actor, wo *workorder.WorkOrder) error {
	switch {
	case actor.IsAdmin(), wo.IsAssignedTo(actor.ID):
		return nil
	case actor.Role == identity.RoleTechnician && wo.Status == workorder.StatusOpen:
		return nil
	}
	managed, err := s.managesLab(ctx, actor.ID, wo.LabID)
	if err != nil {
		return err
	}
	if !managed {
		return shared.AuthorizationError("not allowed to view work order %d", wo.ID)
	}
	return nil
}

func (s *Service) managesLab(ctx context.Context, userID uuid.UUID, labID int64) (bool, error) {
	l, err := s.labs.FindByID(ctx, labID)
	if err != nil {
		return false, err
	}
	return l.IsManagedBy(userID), nil
}

func (s *Service) appendHistory(ctx context.Context, u *workorder.Update) {
	if err := s.updates.Append(ctx, u); err != nil {
		s.logger.Error("Failed to record work order history",
			zap.Int64("work_order_id", u.WorkOrderID),
			zap.Error(err))
	}
}

// concurrencyError maps a lost optimistic update to CONCURRENCY_CONFLICT.
func concurrencyError(err error, id int64) error {
	if errors.Is(err, workorder.ErrConcurrentModification) {
		return fmt.Errorf("work order %d: %w: %w", id, shared.ErrConcurrencyConflict, err)
	}
	return err
}
