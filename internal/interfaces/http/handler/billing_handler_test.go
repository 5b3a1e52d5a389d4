package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/interfaces/http/dto"
	"github.com/labfix/backend/tests/testutil"
)

const (
	initialFeePath = "/api/v1/billing/initial-fee-invoices"
	arInvoicePath  = "/api/v1/billing/ar-invoices"
	vendorPayPath  = "/api/v1/billing/vendor-payments"
)

func TestBillingHandler_CreateInitialFeeInvoice(t *testing.T) {
	t.Run("bills work order 42", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		a.SeedWorkOrder(t, 42)

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 42})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := testutil.JSONBody(t, w)
		assert.Greater(t, body["invoiceId"], float64(0))
		assert.True(t, strings.HasPrefix(body["arInvoiceId"].(string), "00e"), "mock AR ids carry the invoice prefix")
		assert.Contains(t, body["message"], "created")

		inv, err := a.Invoices.FindByWorkOrderAndType(context.Background(), 42, invoice.TypeInitialFee)
		require.NoError(t, err)
		assert.Equal(t, invoice.PaymentStatusAwaitingPayment, inv.PaymentStatus)
		assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(50)))
	})

	t.Run("accepts a numeric string id", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		a.SeedWorkOrder(t, 43)

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, []byte(`{"workOrderId":"43"}`))

		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("second call is rejected once sent", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		a.SeedWorkOrder(t, 44)
		require.Equal(t, http.StatusOK, a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 44}).Code)

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 44})

		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodePreconditionFailed)
	})

	t.Run("requires a bearer token", func(t *testing.T) {
		a := newAPI(t, apiOptions{})

		w := a.do(t, workorder.Actor{}, http.MethodPost, initialFeePath, map[string]any{"workOrderId": 42})

		testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, dto.ErrCodeUnauthorized)
	})

	t.Run("unknown work order", func(t *testing.T) {
		a := newAPI(t, apiOptions{})

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 999})

		testutil.AssertErrorResponse(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	})

	t.Run("provider failure answers 500 and keeps the unbilled invoice", func(t *testing.T) {
		a := newAPI(t, apiOptions{providerURL: failingProvider(t)})
		a.SeedWorkOrder(t, 45)

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 45})

		testutil.AssertErrorResponse(t, w, http.StatusInternalServerError, dto.ErrCodeProvider)
		assert.Contains(t, testutil.JSONBody(t, w)["error"], "upstream exploded")

		inv, err := a.Invoices.FindByWorkOrderAndType(context.Background(), 45, invoice.TypeInitialFee)
		require.NoError(t, err)
		assert.Equal(t, invoice.PaymentStatusUnbilled, inv.PaymentStatus)
	})

	t.Run("provider detail is hidden when configured", func(t *testing.T) {
		a := newAPI(t, apiOptions{providerURL: failingProvider(t), hideProviderDetail: true})
		a.SeedWorkOrder(t, 46)

		w := a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 46})

		testutil.AssertErrorResponse(t, w, http.StatusInternalServerError, dto.ErrCodeProvider)
		assert.Equal(t, providerErrorMessage, testutil.JSONBody(t, w)["error"])
	})
}

func TestBillingHandler_RequestValidation(t *testing.T) {
	a := newAPI(t, apiOptions{})

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{name: "missing body", body: nil, message: "request body is required"},
		{name: "malformed JSON", body: []byte(`{"workOrderId":`), message: "request body is not valid JSON"},
		{name: "non numeric id", body: []byte(`{"workOrderId":"abc"}`), message: "workOrderId must be a numeric id"},
		{name: "zero id", body: map[string]any{"workOrderId": 0}, message: "workOrderId"},
		{name: "missing id", body: map[string]any{}, message: "workOrderId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, a.ManagerActor(), http.MethodPost, vendorPayPath, tt.body)

			testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
			assert.Contains(t, testutil.JSONBody(t, w)["error"], tt.message)
		})
	}
}

func TestBillingHandler_CreateARInvoice(t *testing.T) {
	newServiceInvoice := func(t *testing.T, a *api, amount int64) *invoice.Invoice {
		t.Helper()
		wo := a.SeedWorkOrder(t, 0)
		inv, err := invoice.NewUnbilled(wo.ID, a.Lab.ID, uuid.New(), decimal.NewFromInt(amount), invoice.TypeService)
		require.NoError(t, err)
		require.NoError(t, a.Invoices.CreateUnbilled(context.Background(), inv))
		return inv
	}

	t.Run("manager approves a service invoice", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		inv := newServiceInvoice(t, a, 300)

		w := a.do(t, a.ManagerActor(), http.MethodPost, arInvoicePath, map[string]any{"invoiceId": inv.ID})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := testutil.JSONBody(t, w)
		assert.Equal(t, true, body["success"])
		arID := body["arInvoiceId"].(string)
		assert.True(t, strings.HasPrefix(arID, "00e"))

		stored, err := a.Invoices.FindByID(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.PaymentStatusAwaitingPayment, stored.PaymentStatus)
		require.NotNil(t, stored.BillARInvoiceID)
		assert.Equal(t, arID, *stored.BillARInvoiceID)
	})

	t.Run("other lab manager is forbidden", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		inv := newServiceInvoice(t, a, 300)
		stranger := workorder.Actor{ID: uuid.New(), Role: identity.RoleLab}

		w := a.do(t, stranger, http.MethodPost, arInvoicePath, map[string]any{"invoiceId": inv.ID})

		testutil.AssertErrorResponse(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		a := newAPI(t, apiOptions{})

		w := a.do(t, testutil.AdminActor(), http.MethodPost, arInvoicePath, map[string]any{"invoiceId": 12345})

		testutil.AssertErrorResponse(t, w, http.StatusNotFound, dto.ErrCodeNotFound)
	})

	t.Run("already sent invoice", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		inv := newServiceInvoice(t, a, 300)
		require.NoError(t, a.Invoices.MarkAwaitingPayment(context.Background(), inv.ID, "00e01SENT"))

		w := a.do(t, testutil.AdminActor(), http.MethodPost, arInvoicePath, map[string]any{"invoiceId": inv.ID})

		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodePreconditionFailed)
	})
}

func TestBillingHandler_PayVendor(t *testing.T) {
	setup := func(t *testing.T, a *api) *workorder.WorkOrder {
		t.Helper()
		profile, tech := a.SeedTechnician(t, "Ana Tech", testutil.Bool(true))
		wo := a.SeedCompletedWorkOrder(t, tech)
		inv, err := invoice.NewUnbilled(wo.ID, a.Lab.ID, profile.ID, decimal.NewFromInt(420), invoice.TypeService)
		require.NoError(t, err)
		require.NoError(t, a.Invoices.CreateUnbilled(context.Background(), inv))
		return wo
	}

	t.Run("pays the assigned technician once", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		wo := setup(t, a)

		w := a.do(t, a.ManagerActor(), http.MethodPost, vendorPayPath, map[string]any{"workOrderId": wo.ID})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := testutil.JSONBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(wo.ID), body["workOrderId"])
		assert.Equal(t, "Ana Tech", body["technician"])
		assert.True(t, strings.HasPrefix(body["vendorBillId"].(string), "0bi"))

		again := a.do(t, a.ManagerActor(), http.MethodPost, vendorPayPath, map[string]any{"workOrderId": wo.ID})
		testutil.AssertErrorResponse(t, again, http.StatusBadRequest, dto.ErrCodePreconditionFailed)
	})

	t.Run("technician cannot pay themselves", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		wo := setup(t, a)

		w := a.do(t, workorder.Actor{ID: *wo.AssignedTo, Role: identity.RoleTechnician}, http.MethodPost, vendorPayPath, map[string]any{"workOrderId": wo.ID})

		testutil.AssertErrorResponse(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
	})

	t.Run("open work order is not payable", func(t *testing.T) {
		a := newAPI(t, apiOptions{})
		wo := a.SeedWorkOrder(t, 0)

		w := a.do(t, testutil.AdminActor(), http.MethodPost, vendorPayPath, map[string]any{"workOrderId": wo.ID})

		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodePreconditionFailed)
	})
}

func TestBillingHandler_MarkInvoicePaid(t *testing.T) {
	a := newAPI(t, apiOptions{})
	wo := a.SeedWorkOrder(t, 0)
	inv, err := invoice.NewUnbilled(wo.ID, a.Lab.ID, uuid.New(), decimal.NewFromInt(80), invoice.TypeService)
	require.NoError(t, err)
	require.NoError(t, a.Invoices.CreateUnbilled(context.Background(), inv))
	path := "/api/v1/invoices/" + itoa(inv.ID) + "/mark-paid"

	t.Run("manager is forbidden", func(t *testing.T) {
		w := a.do(t, a.ManagerActor(), http.MethodPost, path, nil)
		testutil.AssertErrorResponse(t, w, http.StatusForbidden, dto.ErrCodeForbidden)
	})

	t.Run("admin marks paid then repeats harmlessly", func(t *testing.T) {
		admin := testutil.AdminActor()

		w := a.do(t, admin, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		d := data(t, w)
		assert.Equal(t, true, d["changed"])
		assert.Equal(t, "paid", d["invoice"].(map[string]any)["payment_status"])

		w = a.do(t, admin, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, data(t, w)["changed"])
	})

	t.Run("bad id", func(t *testing.T) {
		w := a.do(t, testutil.AdminActor(), http.MethodPost, "/api/v1/invoices/abc/mark-paid", nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
	})
}

func TestBillingHandler_ListWorkOrderInvoices(t *testing.T) {
	a := newAPI(t, apiOptions{})
	a.SeedWorkOrder(t, 42)
	require.Equal(t, http.StatusOK, a.do(t, a.ManagerActor(), http.MethodPost, initialFeePath, map[string]any{"workOrderId": 42}).Code)

	w := a.do(t, a.ManagerActor(), http.MethodGet, "/api/v1/work-orders/42/invoices", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items, ok := testutil.JSONBody(t, w)["data"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "initial_fee", first["invoice_type"])
	assert.Equal(t, "awaiting_payment", first["payment_status"])

	stranger := workorder.Actor{ID: uuid.New(), Role: identity.RoleLab}
	testutil.AssertErrorResponse(t, a.do(t, stranger, http.MethodGet, "/api/v1/work-orders/42/invoices", nil), http.StatusForbidden, dto.ErrCodeForbidden)
}
