package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	appworkorder "github.com/labfix/backend/internal/application/workorder"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/interfaces/http/dto"
)

// WorkOrderService is the work-order use cases used by WorkOrderHandler.
type WorkOrderService interface {
	Create(ctx context.Context, actor workorder.Actor, labID int64, d workorder.Details) (*appworkorder.CreateResult, error)
	Get(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error)
	List(ctx context.Context, actor workorder.Actor, filter workorder.Filter) (*appworkorder.ListResult, error)
	Edit(ctx context.Context, actor workorder.Actor, id int64, d workorder.Details) (*workorder.WorkOrder, error)
	Claim(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error)
	Release(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error)
	Complete(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error)
	Cancel(ctx context.Context, actor workorder.Actor, id int64) (*workorder.WorkOrder, error)
	AddComment(ctx context.Context, actor workorder.Actor, id int64, body string) (*workorder.Update, error)
	ListUpdates(ctx context.Context, actor workorder.Actor, id int64) ([]*workorder.Update, error)
	RequestServicePayment(ctx context.Context, actor workorder.Actor, id int64, amount decimal.Decimal) (*invoice.Invoice, error)
}

// WorkOrderHandler handles work order endpoints
type WorkOrderHandler struct {
	BaseHandler
	workOrders WorkOrderService
}

// NewWorkOrderHandler creates a new WorkOrderHandler
func NewWorkOrderHandler(workOrders WorkOrderService) *WorkOrderHandler {
	return &WorkOrderHandler{workOrders: workOrders}
}

// Create godoc
// @ID           createWorkOrder
// @Summary      Post a work order
// @Description  Creates an open work order for a lab managed by the caller and bills the initial fee. A billing failure is reported in initial_fee_error; the work order is kept.
// @Tags         work-orders
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateWorkOrderRequest true "Work order"
// @Success      201 {object} dto.Response{data=dto.CreateWorkOrderResponse}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders [post]
func (h *WorkOrderHandler) Create(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.CreateWorkOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.workOrders.Create(c.Request.Context(), a, req.LabID, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewCreateWorkOrderResponse(result))
}

// List godoc
// @ID           listWorkOrders
// @Summary      List work orders
// @Description  Lab staff must pass lab_id. Technicians see the open pool unless they filter on their own assignments.
// @Tags         work-orders
// @Produce      json
// @Param        lab_id      query int    false "Lab ID"
// @Param        status      query string false "open, claimed, completed or canceled"
// @Param        assigned_to query string false "Technician profile ID"
// @Param        page        query int    false "Page number" default(1)
// @Param        page_size   query int    false "Page size" default(20) maximum(100)
// @Param        sort_by     query string false "Sort field" default(created_at)
// @Param        sort_order  query string false "asc or desc" default(desc)
// @Success      200 {object} dto.Response{data=[]dto.WorkOrderResponse,meta=dto.Meta}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders [get]
func (h *WorkOrderHandler) List(c *gin.Context) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.ListWorkOrdersRequest
	if !h.bindQuery(c, &req) {
		return
	}

	result, err := h.workOrders.List(c.Request.Context(), a, req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewWorkOrderListResponse(result.Items), result.Total, result.Page, result.PageSize)
}

// Get godoc
// @ID           getWorkOrder
// @Summary      Get a work order
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id} [get]
func (h *WorkOrderHandler) Get(c *gin.Context) {
	h.respond(c, h.workOrders.Get)
}

// Edit godoc
// @ID           editWorkOrder
// @Summary      Edit an open work order
// @Tags         work-orders
// @Accept       json
// @Produce      json
// @Param        id      path int                  true "Work order ID"
// @Param        request body dto.WorkOrderDetails true "New details"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id} [patch]
func (h *WorkOrderHandler) Edit(c *gin.Context) {
	a, id, ok := h.target(c)
	if !ok {
		return
	}
	var req dto.WorkOrderDetails
	if !h.bindJSON(c, &req) {
		return
	}

	wo, err := h.workOrders.Edit(c.Request.Context(), a, id, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewWorkOrderResponse(wo))
}

// Claim godoc
// @ID           claimWorkOrder
// @Summary      Claim an open work order
// @Description  Verified technicians only. A lost race answers 409.
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/claim [post]
func (h *WorkOrderHandler) Claim(c *gin.Context) {
	h.respond(c, h.workOrders.Claim)
}

// Release godoc
// @ID           releaseWorkOrder
// @Summary      Return a claimed work order to the open pool
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/release [post]
func (h *WorkOrderHandler) Release(c *gin.Context) {
	h.respond(c, h.workOrders.Release)
}

// Complete godoc
// @ID           completeWorkOrder
// @Summary      Mark a claimed work order completed
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/complete [post]
func (h *WorkOrderHandler) Complete(c *gin.Context) {
	h.respond(c, h.workOrders.Complete)
}

// Cancel godoc
// @ID           cancelWorkOrder
// @Summary      Cancel a work order
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=dto.WorkOrderResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/cancel [post]
func (h *WorkOrderHandler) Cancel(c *gin.Context) {
	h.respond(c, h.workOrders.Cancel)
}

// ListUpdates godoc
// @ID           listWorkOrderUpdates
// @Summary      Get the history thread of a work order
// @Tags         work-orders
// @Produce      json
// @Param        id path int true "Work order ID"
// @Success      200 {object} dto.Response{data=[]dto.UpdateResponse}
// @Failure      403 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/updates [get]
func (h *WorkOrderHandler) ListUpdates(c *gin.Context) {
	a, id, ok := h.target(c)
	if !ok {
		return
	}
	items, err := h.workOrders.ListUpdates(c.Request.Context(), a, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewUpdateListResponse(items))
}

// AddComment godoc
// @ID           addWorkOrderComment
// @Summary      Comment on a work order
// @Tags         work-orders
// @Accept       json
// @Produce      json
// @Param        id      path int                   true "Work order ID"
// @Param        request body dto.AddCommentRequest true "Comment"
// @Success      201 {object} dto.Response{data=dto.UpdateResponse}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/updates [post]
func (h *WorkOrderHandler) AddComment(c *gin.Context) {
	a, id, ok := h.target(c)
	if !ok {
		return
	}
	var req dto.AddCommentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	u, err := h.workOrders.AddComment(c.Request.Context(), a, id, req.Body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewUpdateResponse(u))
}

// RequestServicePayment godoc
// @ID           requestWorkOrderServicePayment
// @Summary      Request payment for a completed work order
// @Description  Records an unbilled service invoice. Only the assigned technician may call this, once per work order.
// @Tags         work-orders
// @Accept       json
// @Produce      json
// @Param        id      path int                       true "Work order ID"
// @Param        request body dto.ServiceInvoiceRequest true "Amount"
// @Success      201 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      400 {object} dto.ErrorResponse
// @Failure      403 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /work-orders/{id}/service-invoice [post]
func (h *WorkOrderHandler) RequestServicePayment(c *gin.Context) {
	a, id, ok := h.target(c)
	if !ok {
		return
	}
	var req dto.ServiceInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	inv, err := h.workOrders.RequestServicePayment(c.Request.Context(), a, id, req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewInvoiceResponse(inv))
}

// target resolves the caller and the :id of the work order.
func (h *WorkOrderHandler) target(c *gin.Context) (workorder.Actor, int64, bool) {
	a, err := actor(c)
	if err != nil {
		h.HandleError(c, err)
		return workorder.Actor{}, 0, false
	}
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return workorder.Actor{}, 0, false
	}
	return a, id, true
}

// respond runs a single-work-order operation and writes the result.
func (h *WorkOrderHandler) respond(c *gin.Context, op func(context.Context, workorder.Actor, int64) (*workorder.WorkOrder, error)) {
	a, id, ok := h.target(c)
	if !ok {
		return
	}
	wo, err := op(c.Request.Context(), a, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewWorkOrderResponse(wo))
}
