package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/interfaces/http/dto"
)

// PaymentService is the billing orchestration used by BillingHandler.
type PaymentService interface {
	CreateARInvoiceForInvoice(ctx context.Context, actor workorder.Actor, invoiceID int64) (*payment.InvoiceResult, error)
	CreateInitialFeeInvoice(ctx context.Context, workOrderID int64) (*payment.InvoiceResult, error)
	PayVendorForWorkOrder(ctx context.Context, actor workorder.Actor, workOrderID int64) (*payment.VendorPayment, error)
	MarkInvoicePaid(ctx context.Context, actor workorder.Actor, invoiceID int64) (*invoice.Invoice, bool, error)
	ListInvoices(ctx context.Context, actor workorder.Actor, workOrderID int64) ([]*invoice.Invoice, error)
}

// BillingHandler exposes the payment orchestration endpoints.
type BillingHandler struct {
	BaseHandler
	payments PaymentService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(payments PaymentService) *BillingHandler {
	return &BillingHandler{payments: payments}
}

// CreateARInvoice godoc
// @ID           createBillingARInvoice
// @Summary      Send an invoice to the billing provider
// @Description  Creates the receivable for an existing ledger invoice. The lab manager or an admin may approve it. An invoice already sent answers 400.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateARInvoiceRequest true "Invoice to send"
// @Success      200 {object} dto.CreateARInvoiceResponse
// @Failure      400 {object} dto.ErrorResponse
// @Failure      401 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /billing/ar-invoices [post]
func (h *BillingHandler) CreateARInvoice(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.CreateARInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.payments.CreateARInvoiceForInvoice(c.Request.Context(), a, req.InvoiceID.Int64())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CreateARInvoiceResponse{
		Success:       true,
		ARInvoiceID:   result.ARInvoiceID,
		InvoiceNumber: result.InvoiceNumber,
	})
}

// CreateInitialFeeInvoice godoc
// @ID           createBillingInitialFeeInvoice
// @Summary      Bill the initial fee of a work order
// @Description  Records the initial fee in the ledger and sends it to the billing provider. The lab is provisioned as a customer on first use.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateInitialFeeRequest true "Work order to bill"
// @Success      200 {object} dto.CreateInitialFeeResponse
// @Failure      400 {object} dto.ErrorResponse
// @Failure      401 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /billing/initial-fee-invoices [post]
func (h *BillingHandler) CreateInitialFeeInvoice(c *gin.Context) {
	if _, err := actor(c); err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.CreateInitialFeeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.payments.CreateInitialFeeInvoice(c.Request.Context(), req.WorkOrderID.Int64())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CreateInitialFeeResponse{
		InvoiceID:   result.InvoiceID,
		ARInvoiceID: result.ARInvoiceID,
		Message:     "Initial fee invoice " + result.InvoiceNumber + " created",
	})
}

// PayVendor godoc
// @ID           createBillingVendorPayment
// @Summary      Pay the technician of a completed work order
// @Description  Creates a vendor bill for the assigned technician, provisioning the vendor on first use. The lab manager or an admin may pay.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body dto.PayVendorRequest true "Work order to settle"
// @Success      200 {object} dto.PayVendorResponse
// @Failure      400 {object} dto.ErrorResponse
// @Failure      401 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /billing/vendor-payments [post]
func (h *BillingHandler) PayVendor(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.PayVendorRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.payments.PayVendorForWorkOrder(c.Request.Context(), a, req.WorkOrderID.Int64())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPayVendorResponse(result))
}

// MarkInvoicePaid godoc
// @ID           markInvoicePaid
// @Summary      Mark an invoice paid
// @Description  Records a payment received outside the provider webhook. Admin only. Repeating the call is harmless.
// @Tags         invoices
// @Produce      json
// @Param        id path int true "Invoice ID"
// @Success      200 {object} dto.Response{data=dto.MarkPaidResponse}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /invoices/{id}/mark-paid [post]
func (h *BillingHandler) MarkInvoicePaid(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	inv, changed, err := h.payments.MarkInvoicePaid(c.Request.Context(), a, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.MarkPaidResponse{Invoice: dto.NewInvoiceResponse(inv), Changed: changed})
}

// ListWorkOrderInvoices godoc
// @ID           listWorkOrderInvoices
// @Summary      List the invoices of a work order
// @Tags         invoices
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=[]dto.InvoiceResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/invoices [get]
func (h *BillingHandler) ListWorkOrderInvoices(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items, err := h.payments.ListInvoices(c.Request.Context(), a, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewInvoiceListResponse(items))
}
