package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway errors
var (
	ErrInvalidCustomerID   = errors.New("billing: invalid customer ID")
	ErrInvalidVendorID     = errors.New("billing: invalid vendor ID")
	ErrInvalidNumber       = errors.New("billing: invalid document number")
	ErrInvalidAmount       = errors.New("billing: invalid amount")
	ErrInvalidDueDate      = errors.New("billing: due date before document date")
	ErrMissingCustomerName = errors.New("billing: customer name is required")
)

// LineItem is one priced line on an AR invoice or vendor bill.
type LineItem struct {
	Description string
	Amount      decimal.Decimal
}

// CreateARInvoiceRequest describes a customer-facing invoice.
type CreateARInvoiceRequest struct {
	// CustomerID is the provider customer id of the lab
	CustomerID string
	// InvoiceNumber is our stable invoice number
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	Description   string
	// Amount is the invoice total
	Amount        decimal.Decimal
	CustomerEmail string
	CustomerName  string
	// InitialFee, when positive and below Amount, is itemized on its own line
	InitialFee *decimal.Decimal
}

// Validate validates the AR invoice request
func (r *CreateARInvoiceRequest) Validate() error {
	if r.CustomerID == "" {
		return ErrInvalidCustomerID
	}
	if r.InvoiceNumber == "" {
		return ErrInvalidNumber
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.DueDate.Before(r.InvoiceDate) {
		return ErrInvalidDueDate
	}
	if r.CustomerName == "" {
		return ErrMissingCustomerName
	}
	return nil
}

// LineItems splits the total into provider line items. A positive initial fee
// strictly below the total yields two lines (fee + remainder); anything else
// yields one line for the full amount.
func (r *CreateARInvoiceRequest) LineItems() []LineItem {
	if r.InitialFee != nil && r.InitialFee.IsPositive() && r.InitialFee.LessThan(r.Amount) {
		return []LineItem{
			{Description: "Initial fee", Amount: *r.InitialFee},
			{Description: r.Description, Amount: r.Amount.Sub(*r.InitialFee)},
		}
	}
	return []LineItem{{Description: r.Description, Amount: r.Amount}}
}

// CreateVendorBillRequest describes a payable bill owed to a technician.
type CreateVendorBillRequest struct {
	VendorID    string
	BillNumber  string
	BillDate    time.Time
	DueDate     time.Time
	Description string
	Amount      decimal.Decimal
}

// Validate validates the vendor bill request
func (r *CreateVendorBillRequest) Validate() error {
	if r.VendorID == "" {
		return ErrInvalidVendorID
	}
	if r.BillNumber == "" {
		return ErrInvalidNumber
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.DueDate.Before(r.BillDate) {
		return ErrInvalidDueDate
	}
	return nil
}

// Gateway is the port to the billing provider. Implementations manage the
// provider session themselves; callers never see session tokens.
type Gateway interface {
	// EnsureSession returns a usable session token, logging in if needed
	EnsureSession(ctx context.Context) (string, error)

	// CreateCustomer provisions a provider customer and returns its id
	CreateCustomer(ctx context.Context, name, email string) (string, error)

	// CreateVendor provisions a provider vendor and returns its id
	CreateVendor(ctx context.Context, name, email string) (string, error)

	// CreateARInvoice creates a customer invoice and returns its provider id
	CreateARInvoice(ctx context.Context, req *CreateARInvoiceRequest) (string, error)

	// CreateVendorBill creates a payable bill and returns its provider id
	CreateVendorBill(ctx context.Context, req *CreateVendorBillRequest) (string, error)
}
