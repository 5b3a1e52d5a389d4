// Package payment orchestrates the billing sagas: sending AR invoices to the
// billing provider, provisioning provider customers and vendors, and paying
// technicians for completed work orders.
//
// Every saga runs lookup, validate, provision, remote create and local update
// in that order. The ledger is only written after the provider call it
// depends on has returned.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/domain/billing"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/telemetry"
)

const (
	defaultDueDays = 30
	defaultLockTTL = 30 * time.Second

	defaultNotifyTimeout     = 15 * time.Second
	defaultMaxPendingNotices = 64
)

// Config holds the invoice defaults applied by the sagas.
type Config struct {
	InitialFee decimal.Decimal
	DueDays    int
	LockTTL    time.Duration
	// NotifyTimeout bounds one invoice notice delivery.
	NotifyTimeout time.Duration
	// MaxPendingNotices caps notices in flight; extra notices are dropped.
	MaxPendingNotices int
}

// ServiceConfig holds the dependencies of Service
type ServiceConfig struct {
	Gateway     billing.Gateway
	WorkOrders  workorder.Repository
	Invoices    invoice.Repository
	Labs        lab.Repository
	Profiles    identity.ProfileRepository
	Technicians identity.TechnicianRepository
	Locker      shared.Locker
	Notifier    Notifier
	Metrics     *telemetry.BillingMetrics
	Config      Config
	Logger      *zap.Logger
}

// Service runs the payment sagas.
type Service struct {
	gateway     billing.Gateway
	workOrders  workorder.Repository
	invoices    invoice.Repository
	labs        lab.Repository
	profiles    identity.ProfileRepository
	technicians identity.TechnicianRepository
	locker      shared.Locker
	notifier    Notifier
	metrics     *telemetry.BillingMetrics
	cfg         Config
	now         func() time.Time
	logger      *zap.Logger

	noticeSlots chan struct{}
	notices     sync.WaitGroup
}

// NewService creates a new payment Service
func NewService(c ServiceConfig) *Service {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := c.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	cfg := c.Config
	if cfg.DueDays <= 0 {
		cfg.DueDays = defaultDueDays
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.MaxPendingNotices <= 0 {
		cfg.MaxPendingNotices = defaultMaxPendingNotices
	}
	return &Service{
		gateway:     c.Gateway,
		workOrders:  c.WorkOrders,
		invoices:    c.Invoices,
		labs:        c.Labs,
		profiles:    c.Profiles,
		technicians: c.Technicians,
		locker:      c.Locker,
		notifier:    notifier,
		metrics:     c.Metrics,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
		noticeSlots: make(chan struct{}, cfg.MaxPendingNotices),
	}
}

// InvoiceResult describes an invoice that was sent to the provider.
type InvoiceResult struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ARInvoiceID   string          `json:"ar_invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       time.Time       `json:"due_date"`
}

// VendorPayment describes a vendor bill created for a technician.
type VendorPayment struct {
	WorkOrderID  int64           `json:"work_order_id"`
	VendorBillID string          `json:"vendor_bill_id"`
	VendorID     string          `json:"vendor_id"`
	TechnicianID uuid.UUID       `json:"technician_id"`
	Technician   string          `json:"technician"`
	Amount       decimal.Decimal `json:"amount"`
}

// billingParty is the loaded chain a customer invoice needs.
type billingParty struct {
	workOrder *workorder.WorkOrder
	lab       *lab.Lab
	manager   *identity.Profile
}

func (s *Service) loadParty(ctx context.Context, workOrderID int64) (*billingParty, error) {
	wo, err := s.workOrders.FindByID(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	l, err := s.labs.FindByID(ctx, wo.LabID)
	if err != nil {
		return nil, err
	}
	manager, err := s.profiles.FindByID(ctx, l.ManagerID)
	if err != nil {
		return nil, err
	}
	if !manager.HasEmail() {
		return nil, shared.PreconditionFailed("lab manager of lab %d has no email on file", l.ID)
	}
	return &billingParty{workOrder: wo, lab: l, manager: manager}, nil
}

// CreateInitialFeeInvoice records the flat initial fee of a work order and
// sends it to the provider. An unbilled initial-fee invoice left behind by a
// failed earlier attempt is resent instead of duplicated.
func (s *Service) CreateInitialFeeInvoice(ctx context.Context, workOrderID int64) (result *InvoiceResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "create_initial_fee_invoice",
		telemetry.SpanAttrWorkOrderID, workOrderID,
		telemetry.SpanAttrInvoiceType, string(invoice.TypeInitialFee),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if workOrderID <= 0 {
		return nil, shared.ValidationError("workOrderId must be a positive integer")
	}
	party, err := s.loadParty(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	inv, err := s.invoices.FindByWorkOrderAndType(ctx, workOrderID, invoice.TypeInitialFee)
	switch {
	case err == nil:
		if inv.IsSent() {
			return nil, shared.PreconditionFailed("initial fee invoice %d for work order %d already sent", inv.ID, workOrderID)
		}
		s.logger.Info("Resending unbilled initial fee invoice",
			zap.Int64("invoice_id", inv.ID),
			zap.Int64("work_order_id", workOrderID))
	case errors.Is(err, shared.ErrNotFound):
		inv, err = invoice.NewUnbilled(workOrderID, party.lab.ID, party.workOrder.CreatedBy, s.cfg.InitialFee, invoice.TypeInitialFee)
		if err != nil {
			return nil, err
		}
		if err = s.invoices.CreateUnbilled(ctx, inv); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.send(ctx, inv, party, nil)
}

// CreateARInvoiceForInvoice sends an existing unbilled invoice to the
// provider. The actor must be an admin or the manager of the owning lab.
func (s *Service) CreateARInvoiceForInvoice(ctx context.Context, actor workorder.Actor, invoiceID int64) (result *InvoiceResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "create_ar_invoice",
		telemetry.SpanAttrInvoiceID, invoiceID,
		telemetry.SpanAttrActorRole, actor.Role.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if invoiceID <= 0 {
		return nil, shared.ValidationError("invoiceId must be a positive integer")
	}
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsSent() {
		return nil, shared.PreconditionFailed("invoice %d already sent, status is %s", inv.ID, inv.PaymentStatus)
	}
	if !inv.TotalAmount.IsPositive() {
		return nil, shared.ValidationError("total_amount of invoice %d must be positive", inv.ID)
	}
	party, err := s.loadParty(ctx, inv.WorkOrderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !party.lab.IsManagedBy(actor.ID) {
		return nil, shared.AuthorizationError("only the lab manager or an admin can approve invoice %d", inv.ID)
	}

	fee, err := s.itemizedInitialFee(ctx, inv)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, inv, party, fee)
}

// itemizedInitialFee returns the fee to itemize on a service invoice when
// the work order was never billed a separate initial-fee invoice.
func (s *Service) itemizedInitialFee(ctx context.Context, inv *invoice.Invoice) (*decimal.Decimal, error) {
	if inv.Type != invoice.TypeService || !s.cfg.InitialFee.IsPositive() {
		return nil, nil
	}
	_, err := s.invoices.FindByWorkOrderAndType(ctx, inv.WorkOrderID, invoice.TypeInitialFee)
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		fee := s.cfg.InitialFee
		return &fee, nil
	}
	return nil, err
}

// send provisions the customer, creates the AR invoice and only then moves
// the ledger row to awaiting_payment.
func (s *Service) send(ctx context.Context, inv *invoice.Invoice, party *billingParty, initialFee *decimal.Decimal) (*InvoiceResult, error) {
	customerID, err := s.EnsureCustomer(ctx, party.lab, party.manager)
	if err != nil {
		return nil, err
	}

	invoiceDate := s.now()
	dueDate := invoiceDate.AddDate(0, 0, s.cfg.DueDays)
	req := &billing.CreateARInvoiceRequest{
		CustomerID:    customerID,
		InvoiceNumber: inv.Number(),
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Description:   describe(inv, party.workOrder),
		Amount:        inv.TotalAmount,
		CustomerEmail: party.manager.Email,
		CustomerName:  party.lab.Name,
		InitialFee:    initialFee,
	}

	start := time.Now()
	externalID, err := s.gateway.CreateARInvoice(ctx, req)
	s.metrics.ProviderCall(ctx, "create_ar_invoice", time.Since(start), err)
	if err != nil {
		s.logger.Error("Failed to create AR invoice",
			zap.Int64("invoice_id", inv.ID),
			zap.String("invoice_number", req.InvoiceNumber),
			zap.Error(err))
		return nil, gatewayError(err, "create AR invoice %s", req.InvoiceNumber)
	}

	if err := s.invoices.MarkAwaitingPayment(ctx, inv.ID, externalID); err != nil {
		s.logger.Error("AR invoice created but ledger update failed",
			zap.Int64("invoice_id", inv.ID),
			zap.String("ar_invoice_id", externalID),
			zap.Error(err))
		return nil, err
	}
	s.metrics.ARInvoiceCreated(ctx, string(inv.Type))
	s.logger.Info("Invoice sent to billing provider",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("work_order_id", inv.WorkOrderID),
		zap.String("invoice_type", string(inv.Type)),
		zap.String("ar_invoice_id", externalID))

	result := &InvoiceResult{
		InvoiceID:     inv.ID,
		InvoiceNumber: req.InvoiceNumber,
		ARInvoiceID:   externalID,
		Amount:        inv.TotalAmount,
		DueDate:       dueDate,
	}
	s.notify(ctx, result, inv, party)
	return result, nil
}

// notify hands the notice to a background delivery bounded by
// NotifyTimeout. The request never waits on the notifier.
func (s *Service) notify(ctx context.Context, result *InvoiceResult, inv *invoice.Invoice, party *billingParty) {
	notice := InvoiceNotice{
		InvoiceID:     result.InvoiceID,
		WorkOrderID:   inv.WorkOrderID,
		InvoiceNumber: result.InvoiceNumber,
		ExternalID:    result.ARInvoiceID,
		Amount:        result.Amount,
		DueDate:       result.DueDate,
		To:            party.manager.Email,
		RecipientName: party.manager.DisplayName(),
	}

	select {
	case s.noticeSlots <- struct{}{}:
	default:
		s.logger.Warn("Dropped invoice notice, too many pending",
			zap.Int64("invoice_id", inv.ID),
			zap.Int("max_pending", cap(s.noticeSlots)))
		return
	}

	detached := context.WithoutCancel(ctx)
	s.notices.Add(1)
	go func() {
		defer func() {
			<-s.noticeSlots
			s.notices.Done()
		}()
		ctx, cancel := context.WithTimeout(detached, s.cfg.NotifyTimeout)
		defer cancel()
		if err := s.notifier.InvoiceCreated(ctx, notice); err != nil {
			s.logger.Warn("Failed to send invoice notice",
				zap.Int64("invoice_id", notice.InvoiceID),
				zap.String("to", notice.To),
				zap.Error(err))
		}
	}()
}

// WaitNotices blocks until in-flight invoice notices finish or ctx ends.
func (s *Service) WaitNotices(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notices.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func describe(inv *invoice.Invoice, wo *workorder.WorkOrder) string {
	if inv.Type == invoice.TypeInitialFee {
		return fmt.Sprintf("Initial fee for work order #%d", wo.ID)
	}
	return fmt.Sprintf("Service for work order #%d: %s", wo.ID, wo.Title)
}

// PayVendorForWorkOrder creates a vendor bill paying the assigned technician
// the service invoice amount of a completed work order. A work order is paid
// at most once.
func (s *Service) PayVendorForWorkOrder(ctx context.Context, actor workorder.Actor, workOrderID int64) (result *VendorPayment, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_vendor",
		telemetry.SpanAttrWorkOrderID, workOrderID,
		telemetry.SpanAttrActorRole, actor.Role.String(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if workOrderID <= 0 {
		return nil, shared.ValidationError("workOrderId must be a positive integer")
	}
	wo, err := s.workOrders.FindByID(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	l, err := s.labs.FindByID(ctx, wo.LabID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !l.IsManagedBy(actor.ID) {
		return nil, shared.AuthorizationError("only the lab manager or an admin can pay for work order %d", wo.ID)
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("billing:vendor-bill:work-order:%d", wo.ID), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire vendor payment lock: %w", err)
	}
	defer release()

	// Re-read under the lock so a concurrent payment is seen.
	if wo, err = s.workOrders.FindByID(ctx, workOrderID); err != nil {
		return nil, err
	}
	if !wo.IsPayable() {
		return nil, shared.PreconditionFailed("work order %d must be completed with an assigned technician, status is %s", wo.ID, wo.Status)
	}
	if wo.BillVendorBillID != nil {
		return nil, shared.PreconditionFailed("technician for work order %d was already paid", wo.ID)
	}
	serviceInvoice, err := s.invoices.FindByWorkOrderAndType(ctx, wo.ID, invoice.TypeService)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.PreconditionFailed("work order %d has no service invoice", wo.ID)
	}
	if err != nil {
		return nil, err
	}

	tech, err := s.technicians.FindByProfileID(ctx, *wo.AssignedTo)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindByID(ctx, tech.ProfileID)
	if err != nil {
		return nil, err
	}
	vendorID, err := s.EnsureVendor(ctx, tech, profile)
	if err != nil {
		return nil, err
	}

	billDate := s.now()
	req := &billing.CreateVendorBillRequest{
		VendorID:    vendorID,
		BillNumber:  fmt.Sprintf("WO%d-VB", wo.ID),
		BillDate:    billDate,
		DueDate:     billDate.AddDate(0, 0, s.cfg.DueDays),
		Description: fmt.Sprintf("Service for work order #%d: %s", wo.ID, wo.Title),
		Amount:      serviceInvoice.TotalAmount,
	}
	start := time.Now()
	billID, err := s.gateway.CreateVendorBill(ctx, req)
	s.metrics.ProviderCall(ctx, "create_vendor_bill", time.Since(start), err)
	if err != nil {
		return nil, gatewayError(err, "create vendor bill %s", req.BillNumber)
	}

	stored, err := s.workOrders.SetVendorBillIDIfAbsent(ctx, wo.ID, billID)
	if err != nil {
		s.logger.Error("Vendor bill created but work order update failed",
			zap.Int64("work_order_id", wo.ID),
			zap.String("bill_id", billID),
			zap.Error(err))
		return nil, err
	}
	if !stored {
		s.logger.Error("Vendor bill created for an already paid work order",
			zap.Int64("work_order_id", wo.ID),
			zap.String("orphan_bill_id", billID))
		return nil, shared.PreconditionFailed("technician for work order %d was already paid", wo.ID)
	}
	s.metrics.VendorBillCreated(ctx)
	s.logger.Info("Technician paid for work order",
		zap.Int64("work_order_id", wo.ID),
		zap.String("vendor_id", vendorID),
		zap.String("bill_id", billID),
		zap.String("amount", req.Amount.String()))

	return &VendorPayment{
		WorkOrderID:  wo.ID,
		VendorBillID: billID,
		VendorID:     vendorID,
		TechnicianID: tech.ProfileID,
		Technician:   profile.DisplayName(),
		Amount:       req.Amount,
	}, nil
}

// MarkInvoicePaid records a payment received outside the provider webhook.
// Admin only. It reports whether this call changed the invoice.
func (s *Service) MarkInvoicePaid(ctx context.Context, actor workorder.Actor, invoiceID int64) (*invoice.Invoice, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, shared.AuthorizationError("only an admin can mark invoice %d paid", invoiceID)
	}
	if invoiceID <= 0 {
		return nil, false, shared.ValidationError("invoice id must be a positive integer")
	}
	changed, err := s.invoices.MarkPaid(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("Invoice marked paid by admin",
		zap.Int64("invoice_id", invoiceID),
		zap.String("admin_id", actor.ID.String()),
		zap.Bool("changed", changed))
	return inv, changed, nil
}

// ListInvoices returns the invoices of a work order visible to actor.
func (s *Service) ListInvoices(ctx context.Context, actor workorder.Actor, workOrderID int64) ([]*invoice.Invoice, error) {
	wo, err := s.workOrders.FindByID(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !wo.IsAssignedTo(actor.ID) {
		l, err := s.labs.FindByID(ctx, wo.LabID)
		if err != nil {
			return nil, err
		}
		if !l.IsManagedBy(actor.ID) {
			return nil, shared.AuthorizationError("not allowed to view invoices of work order %d", wo.ID)
		}
	}
	return s.invoices.ListByWorkOrder(ctx, wo.ID)
}

// gatewayError keeps domain errors from the adapter and maps request
// validation failures to VALIDATION_ERROR. Anything else is a provider fault.
func gatewayError(err error, format string, args ...any) error {
	if shared.CodeOf(err) != "" {
		return err
	}
	for _, v := range []error{
		billing.ErrInvalidCustomerID, billing.ErrInvalidVendorID, billing.ErrInvalidNumber,
		billing.ErrInvalidAmount, billing.ErrInvalidDueDate, billing.ErrMissingCustomerName,
	} {
		if errors.Is(err, v) {
			return shared.ValidationError("%s: %v", fmt.Sprintf(format, args...), err)
		}
	}
	return shared.ProviderError(err, format, args...)
}
