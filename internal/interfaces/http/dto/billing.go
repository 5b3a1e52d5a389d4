package dto

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/domain/invoice"
)

// NumericID accepts a JSON number or a numeric string. Internal callers send
// ids either way.
type NumericID int64

// UnmarshalJSON implements json.Unmarshaler
func (id *NumericID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	kind := "number"
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		kind = "string"
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// The decoder fills in the offending field name.
		return &json.UnmarshalTypeError{Value: kind, Type: reflect.TypeOf(*id)}
	}
	*id = NumericID(v)
	return nil
}

// Int64 returns the id as int64
func (id NumericID) Int64() int64 { return int64(id) }

// CreateARInvoiceRequest asks for an existing invoice to be sent to billing.
type CreateARInvoiceRequest struct {
	InvoiceID NumericID `json:"invoiceId" binding:"required,gt=0"`
}

// CreateARInvoiceResponse is the body of a successful AR invoice creation.
type CreateARInvoiceResponse struct {
	Success       bool   `json:"success"`
	ARInvoiceID   string `json:"arInvoiceId"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
}

// CreateInitialFeeRequest asks for the initial fee of a work order to be billed.
type CreateInitialFeeRequest struct {
	WorkOrderID NumericID `json:"workOrderId" binding:"required,gt=0"`
}

// CreateInitialFeeResponse is the body of a successful initial fee invoice.
type CreateInitialFeeResponse struct {
	InvoiceID   int64  `json:"invoiceId"`
	ARInvoiceID string `json:"arInvoiceId,omitempty"`
	Message     string `json:"message"`
}

// PayVendorRequest asks for the technician of a work order to be paid.
type PayVendorRequest struct {
	WorkOrderID NumericID `json:"workOrderId" binding:"required,gt=0"`
}

// PayVendorResponse is the body of a successful vendor payment.
type PayVendorResponse struct {
	Success      bool            `json:"success"`
	WorkOrderID  int64           `json:"workOrderId"`
	Technician   string          `json:"technician"`
	VendorBillID string          `json:"vendorBillId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// NewPayVendorResponse converts a vendor payment result
func NewPayVendorResponse(p *payment.VendorPayment) PayVendorResponse {
	return PayVendorResponse{
		Success:      true,
		WorkOrderID:  p.WorkOrderID,
		Technician:   p.Technician,
		VendorBillID: p.VendorBillID,
		Amount:       p.Amount,
	}
}

// WebhookAck is the body returned for every acknowledged delivery.
type WebhookAck struct {
	OK bool `json:"ok"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	WorkOrderID   int64           `json:"work_order_id"`
	LabID         int64           `json:"lab_id"`
	Type          string          `json:"invoice_type"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	ARInvoiceID   *string         `json:"bill_ar_invoice_id"`
	PaidAt        *time.Time      `json:"paid_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewInvoiceResponse converts a ledger entry
func NewInvoiceResponse(inv *invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            inv.ID,
		Number:        inv.Number(),
		WorkOrderID:   inv.WorkOrderID,
		LabID:         inv.LabID,
		Type:          string(inv.Type),
		TotalAmount:   inv.TotalAmount,
		PaymentStatus: inv.PaymentStatus.String(),
		ARInvoiceID:   inv.BillARInvoiceID,
		PaidAt:        inv.PaidAt,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

// NewInvoiceListResponse converts ledger entries
func NewInvoiceListResponse(items []*invoice.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, NewInvoiceResponse(inv))
	}
	return out
}

// MarkPaidResponse reports an operator override of the payment status.
type MarkPaidResponse struct {
	Invoice InvoiceResponse `json:"invoice"`
	Changed bool            `json:"changed"`
}
