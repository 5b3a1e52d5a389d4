package invoice

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents where an invoice is in its billing lifecycle
type PaymentStatus string

const (
	PaymentStatusUnbilled        PaymentStatus = "unbilled"         // Recorded locally, not yet sent
	PaymentStatusAwaitingPayment PaymentStatus = "awaiting_payment" // AR invoice exists at the provider
	PaymentStatusPaid            PaymentStatus = "paid"             // Provider reported payment
)

// rank orders statuses so transitions can only move forward.
func (s PaymentStatus) rank() int {
	switch s {
	case PaymentStatusUnbilled:
		return 0
	case PaymentStatusAwaitingPayment:
		return 1
	case PaymentStatusPaid:
		return 2
	}
	return -1
}

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	return s.rank() >= 0
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether target is a forward step from s.
// paid is reachable from unbilled only through the operator override path.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	return s.IsValid() && target.IsValid() && target.rank() > s.rank()
}

// Type distinguishes the billable events of a work order
type Type string

const (
	TypeInitialFee Type = "initial_fee"
	TypeService    Type = "service"
)

// IsValid checks if the type is a valid Type
func (t Type) IsValid() bool {
	return t == TypeInitialFee || t == TypeService
}

// Invoice is one billable event tied to a work order.
type Invoice struct {
	ID              int64
	WorkOrderID     int64
	LabID           int64
	CreatedBy       uuid.UUID
	Type            Type
	TotalAmount     decimal.Decimal
	PaymentStatus   PaymentStatus
	BillARInvoiceID *string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUnbilled creates an invoice in the unbilled state.
func NewUnbilled(workOrderID, labID int64, createdBy uuid.UUID, amount decimal.Decimal, t Type) (*Invoice, error) {
	if workOrderID <= 0 {
		return nil, shared.ValidationError("work_order_id is required")
	}
	if labID <= 0 {
		return nil, shared.ValidationError("lab_id is required")
	}
	if !t.IsValid() {
		return nil, shared.ValidationError("invoice_type %q is not valid", t)
	}
	if !amount.IsPositive() {
		return nil, shared.ValidationError("total_amount must be positive")
	}
	now := time.Now()
	return &Invoice{
		WorkOrderID:   workOrderID,
		LabID:         labID,
		CreatedBy:     createdBy,
		Type:          t,
		TotalAmount:   amount.Round(2),
		PaymentStatus: PaymentStatusUnbilled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkAwaitingPayment records the provider invoice id after the AR invoice
// was created remotely.
func (i *Invoice) MarkAwaitingPayment(externalID string) error {
	if externalID == "" {
		return shared.ValidationError("bill_ar_invoice_id is required")
	}
	if i.PaymentStatus != PaymentStatusUnbilled {
		return shared.PreconditionFailed("invoice %d already sent, status is %s", i.ID, i.PaymentStatus)
	}
	i.BillARInvoiceID = &externalID
	i.PaymentStatus = PaymentStatusAwaitingPayment
	i.UpdatedAt = time.Now()
	return nil
}

// MarkPaid moves the invoice to paid. Repeating it is a no-op, which keeps
// webhook redelivery safe; paid_at is only ever set once.
func (i *Invoice) MarkPaid(at time.Time) {
	if i.PaymentStatus == PaymentStatusPaid {
		return
	}
	i.PaymentStatus = PaymentStatusPaid
	i.PaidAt = &at
	i.UpdatedAt = at
}

// IsSent reports whether the invoice has been pushed to the provider.
func (i *Invoice) IsSent() bool {
	return i.PaymentStatus != PaymentStatusUnbilled
}

// Number returns the invoice number sent to the provider. It is stable per
// invoice row so a retried send is recognisable upstream.
func (i *Invoice) Number() string {
	prefix := "SV"
	if i.Type == TypeInitialFee {
		prefix = "IF"
	}
	return "WO" + strconv.FormatInt(i.WorkOrderID, 10) + "-" + prefix + "-" + strconv.FormatInt(i.ID, 10)
}
