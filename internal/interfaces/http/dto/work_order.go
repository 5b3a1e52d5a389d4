package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appworkorder "github.com/labfix/backend/internal/application/workorder"
	"github.com/labfix/backend/internal/domain/workorder"
)

// WorkOrderDetails holds the editable fields shared by create and edit.
type WorkOrderDetails struct {
	Title         string     `json:"title" binding:"required,max=200"`
	Description   string     `json:"description" binding:"max=5000"`
	Equipment     string     `json:"equipment" binding:"max=200"`
	Urgency       string     `json:"urgency" binding:"omitempty,oneof=low normal high critical"`
	CategoryID    *int64     `json:"category_id" binding:"omitempty,gt=0"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

// ToDomain converts the request fields to domain details
func (d WorkOrderDetails) ToDomain() workorder.Details {
	return workorder.Details{
		Title:         d.Title,
		Description:   d.Description,
		Equipment:     d.Equipment,
		Urgency:       workorder.Urgency(d.Urgency),
		CategoryID:    d.CategoryID,
		ScheduledDate: d.ScheduledDate,
	}
}

// CreateWorkOrderRequest posts a work order for a lab
type CreateWorkOrderRequest struct {
	LabID int64 `json:"lab_id" binding:"required,gt=0"`
	WorkOrderDetails
}

// ListWorkOrdersRequest holds the list query parameters
type ListWorkOrdersRequest struct {
	ListRequest
	LabID      *int64  `form:"lab_id" binding:"omitempty,gt=0"`
	Status     *string `form:"status" binding:"omitempty,oneof=open claimed completed canceled"`
	AssignedTo *string `form:"assigned_to" binding:"omitempty,uuid"`
	SortBy     string  `form:"sort_by" binding:"omitempty,max=32"`
	SortOrder  string  `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// ToFilter converts the query to a repository filter
func (r ListWorkOrdersRequest) ToFilter() workorder.Filter {
	f := workorder.Filter{
		LabID:    r.LabID,
		Page:     r.Page,
		PageSize: r.PageSize,
		OrderBy:  r.SortBy,
		OrderDir: r.SortOrder,
	}
	if r.Status != nil {
		s := workorder.Status(*r.Status)
		f.Status = &s
	}
	if r.AssignedTo != nil {
		if id, err := uuid.Parse(*r.AssignedTo); err == nil {
			f.AssignedTo = &id
		}
	}
	return f
}

// AddCommentRequest appends a comment to the history thread
type AddCommentRequest struct {
	Body string `json:"body" binding:"required,max=5000"`
}

// ServiceInvoiceRequest records the amount the assignee asks to be paid
type ServiceInvoiceRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required,positive_decimal"`
}

// WorkOrderResponse represents a work order in API responses
type WorkOrderResponse struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Equipment        string     `json:"equipment"`
	Urgency          string     `json:"urgency"`
	CategoryID       *int64     `json:"category_id"`
	LabID            int64      `json:"lab_id"`
	CreatedBy        uuid.UUID  `json:"created_by"`
	AssignedTo       *uuid.UUID `json:"assigned_to"`
	Status           string     `json:"status"`
	ScheduledDate    *time.Time `json:"scheduled_date"`
	BillVendorBillID *string    `json:"bill_vendor_bill_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewWorkOrderResponse converts a work order
func NewWorkOrderResponse(wo *workorder.WorkOrder) WorkOrderResponse {
	return WorkOrderResponse{
		ID:               wo.ID,
		Title:            wo.Title,
		Description:      wo.Description,
		Equipment:        wo.Equipment,
		Urgency:          string(wo.Urgency),
		CategoryID:       wo.CategoryID,
		LabID:            wo.LabID,
		CreatedBy:        wo.CreatedBy,
		AssignedTo:       wo.AssignedTo,
		Status:           wo.Status.String(),
		ScheduledDate:    wo.ScheduledDate,
		BillVendorBillID: wo.BillVendorBillID,
		CreatedAt:        wo.CreatedAt,
		UpdatedAt:        wo.UpdatedAt,
	}
}

// NewWorkOrderListResponse converts a page of work orders
func NewWorkOrderListResponse(items []*workorder.WorkOrder) []WorkOrderResponse {
	out := make([]WorkOrderResponse, 0, len(items))
	for _, wo := range items {
		out = append(out, NewWorkOrderResponse(wo))
	}
	return out
}

// InitialFeeSummary reports the outcome of billing the initial fee at creation
type InitialFeeSummary struct {
	InvoiceID   int64           `json:"invoice_id,omitempty"`
	ARInvoiceID string          `json:"ar_invoice_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// CreateWorkOrderResponse is the body returned after posting a work order
type CreateWorkOrderResponse struct {
	WorkOrder  WorkOrderResponse  `json:"work_order"`
	InitialFee *InitialFeeSummary `json:"initial_fee,omitempty"`
}

// NewCreateWorkOrderResponse converts a creation result
func NewCreateWorkOrderResponse(r *appworkorder.CreateResult) CreateWorkOrderResponse {
	resp := CreateWorkOrderResponse{WorkOrder: NewWorkOrderResponse(r.WorkOrder)}
	switch {
	case r.InitialFee != nil:
		due := r.InitialFee.DueDate
		resp.InitialFee = &InitialFeeSummary{
			InvoiceID:   r.InitialFee.InvoiceID,
			ARInvoiceID: r.InitialFee.ARInvoiceID,
			Amount:      r.InitialFee.Amount,
			DueDate:     &due,
		}
	case r.InitialFeeError != "":
		resp.InitialFee = &InitialFeeSummary{Error: r.InitialFeeError}
	}
	return resp
}

// UpdateResponse represents a history entry in API responses
type UpdateResponse struct {
	ID          int64     `json:"id"`
	WorkOrderID int64     `json:"work_order_id"`
	AuthorID    uuid.UUID `json:"author_id"`
	Kind        string    `json:"kind"`
	Body        string    `json:"body,omitempty"`
	FromStatus  *string   `json:"from_status,omitempty"`
	ToStatus    *string   `json:"to_status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewUpdateResponse converts a history entry
func NewUpdateResponse(u *workorder.Update) UpdateResponse {
	resp := UpdateResponse{
		ID:          u.ID,
		WorkOrderID: u.WorkOrderID,
		AuthorID:    u.AuthorID,
		Kind:        string(u.Kind),
		Body:        u.Body,
		CreatedAt:   u.CreatedAt,
	}
	if u.FromStatus != nil {
		s := u.FromStatus.String()
		resp.FromStatus = &s
	}
	if u.ToStatus != nil {
		s := u.ToStatus.String()
		resp.ToStatus = &s
	}
	return resp
}

// NewUpdateListResponse converts the history thread
func NewUpdateListResponse(items []*workorder.Update) []UpdateResponse {
	out := make([]UpdateResponse, 0, len(items))
	for _, u := range items {
		out = append(out, NewUpdateResponse(u))
	}
	return out
}
