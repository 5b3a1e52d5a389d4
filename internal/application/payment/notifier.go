package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceNotice is what the lab manager is told about a new AR invoice.
type InvoiceNotice struct {
	InvoiceID     int64
	WorkOrderID   int64
	InvoiceNumber string
	ExternalID    string
	Amount        decimal.Decimal
	DueDate       time.Time
	To            string
	RecipientName string
}

// Notifier delivers invoice notices. Delivery is best-effort: a failure is
// logged and never undoes the invoice.
type Notifier interface {
	InvoiceCreated(ctx context.Context, notice InvoiceNotice) error
}

type nopNotifier struct{}

func (nopNotifier) InvoiceCreated(context.Context, InvoiceNotice) error { return nil }
