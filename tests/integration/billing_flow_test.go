//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/application/webhook"
	appworkorder "github.com/labfix/backend/internal/application/workorder"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/infrastructure/auth"
	"github.com/labfix/backend/internal/infrastructure/billing"
	"github.com/labfix/backend/internal/infrastructure/cache"
	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/infrastructure/persistence"
	"github.com/labfix/backend/internal/interfaces/http/dto"
	"github.com/labfix/backend/internal/interfaces/http/handler"
	"github.com/labfix/backend/internal/interfaces/http/middleware"
	"github.com/labfix/backend/internal/interfaces/http/router"
	"github.com/labfix/backend/tests/testutil"
)

const webhookSecret = "whsec_integration"

// server is the full HTTP stack over PostgreSQL with the billing client in
// mock mode.
type server struct {
	db          *TestDB
	engine      *gin.Engine
	jwt         *auth.JWTService
	verifier    *webhook.Verifier
	labs        *persistence.GormLabRepository
	profiles    *persistence.GormProfileRepository
	technicians *persistence.GormTechnicianRepository
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := NewSharedTestDB(t)
	db.CleanTables()

	workOrderRepo := persistence.NewGormWorkOrderRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	s := &server{
		db:          db,
		jwt:         auth.NewJWTService(config.JWTConfig{Secret: "integration-secret-key-at-least-32-chars"}),
		verifier:    webhook.NewVerifier(webhookSecret),
		labs:        persistence.NewGormLabRepository(db.DB),
		profiles:    persistence.NewGormProfileRepository(db.DB),
		technicians: persistence.NewGormTechnicianRepository(db.DB),
	}

	gateway, err := billing.NewClient(billing.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	store := cache.NewInMemoryIdempotencyStore(0)
	t.Cleanup(func() { _ = store.Close() })

	payments := payment.NewService(payment.ServiceConfig{
		Gateway:     gateway,
		WorkOrders:  workOrderRepo,
		Invoices:    invoiceRepo,
		Labs:        s.labs,
		Profiles:    s.profiles,
		Technicians: s.technicians,
		Locker:      cache.NewInMemoryLocker(),
		Config:      payment.Config{InitialFee: decimal.NewFromInt(50), DueDays: 30, LockTTL: 5 * time.Second},
	})
	workOrders := appworkorder.NewService(appworkorder.ServiceConfig{
		WorkOrders:  workOrderRepo,
		Updates:     persistence.NewGormWorkOrderUpdateRepository(db.DB),
		Labs:        s.labs,
		Technicians: s.technicians,
		Invoices:    invoiceRepo,
		Invoicer:    payments,
	})
	webhooks := webhook.NewService(webhook.ServiceConfig{
		Verifier:   s.verifier,
		Invoices:   invoiceRepo,
		Deliveries: store,
		DedupeTTL:  time.Hour,
	})

	s.engine, err = router.NewEngine(router.Options{
		ServiceName: "labfix-integration",
		JWT:         s.jwt,
	}, router.Handlers{
		System:     handler.NewSystemHandler("labfix", "integration"),
		WorkOrders: handler.NewWorkOrderHandler(workOrders),
		Billing:    handler.NewBillingHandler(payments),
		Webhook:    handler.NewBillingWebhookHandler(webhooks, "", 0),
	})
	require.NoError(t, err)
	return s
}

func (s *server) seedProfile(t *testing.T, role identity.Role, name, email string) *identity.Profile {
	t.Helper()
	p, err := identity.NewProfile(uuid.New(), role, name, email)
	require.NoError(t, err)
	require.NoError(t, s.profiles.Save(context.Background(), p))
	return p
}

func (s *server) seedLab(t *testing.T, manager *identity.Profile) *lab.Lab {
	t.Helper()
	l, err := lab.NewLab("Marine Proteomics", manager.ID, lab.Address{Line1: "1 Dock Rd", City: "Woods Hole", State: "MA"})
	require.NoError(t, err)
	require.NoError(t, s.labs.Save(context.Background(), l))
	return l
}

func (s *server) seedTechnician(t *testing.T, name string) *identity.Profile {
	t.Helper()
	p := s.seedProfile(t, identity.RoleTechnician, name, strings.ToLower(strings.ReplaceAll(name, " ", "."))+"@tech.test")
	verified := true
	require.NoError(t, s.technicians.Save(context.Background(), &identity.Technician{ProfileID: p.ID, Verified: &verified}))
	return p
}

func (s *server) call(t *testing.T, as *identity.Profile, method, path string, body any) map[string]any {
	t.Helper()
	w := s.do(t, as, method, path, body)
	require.Less(t, w.Code, 300, "%s %s: %s", method, path, w.Body.String())
	return testutil.JSONBody(t, w)
}

func (s *server) do(t *testing.T, as *identity.Profile, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	headers := map[string]string{}
	if as != nil {
		token, err := s.jwt.GenerateToken(as.ID, as.Role, time.Hour)
		require.NoError(t, err)
		headers[middleware.AuthHeaderKey] = middleware.BearerPrefix + token
	}
	return testutil.Do(t, s.engine, testutil.Request{Method: method, Path: "/api/v1" + path, Body: body, Headers: headers})
}

func (s *server) deliver(t *testing.T, payload string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.Do(t, s.engine, testutil.Request{
		Method:  http.MethodPost,
		Path:    router.WebhookPath,
		Body:    []byte(payload),
		Headers: map[string]string{"X-Bill-Signature": signature},
	})
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func invoicesOf(t *testing.T, s *server, as *identity.Profile, workOrderID int64) []any {
	t.Helper()
	body := s.call(t, as, http.MethodGet, "/work-orders/"+strconv.FormatInt(workOrderID, 10)+"/invoices", nil)
	items, ok := body["data"].([]any)
	require.True(t, ok)
	return items
}

func TestBillingLifecycle(t *testing.T) {
	s := newServer(t)
	manager := s.seedProfile(t, identity.RoleLab, "Dana Manager", "dana@lab.test")
	l := s.seedLab(t, manager)
	tech := s.seedTechnician(t, "Sam Tech")
	admin := s.seedProfile(t, identity.RoleAdmin, "Ops Admin", "ops@labfix.test")

	// Posting a work order bills its initial fee.
	created := data(t, s.call(t, manager, http.MethodPost, "/work-orders", map[string]any{
		"lab_id":  l.ID,
		"title":   "Mass spectrometer vacuum fault",
		"urgency": "high",
	}))
	wo := created["work_order"].(map[string]any)
	woID := int64(wo["id"].(float64))
	assert.Equal(t, "open", wo["status"])
	fee := created["initial_fee"].(map[string]any)
	arID, _ := fee["ar_invoice_id"].(string)
	require.True(t, strings.HasPrefix(arID, "00e"), "unexpected AR id %q", arID)

	stored, err := s.labs.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BillCustomerID)
	customerID := *stored.BillCustomerID
	assert.True(t, strings.HasPrefix(customerID, lab.CustomerIDPrefix))

	items := invoicesOf(t, s, manager, woID)
	require.Len(t, items, 1)
	assert.Equal(t, "awaiting_payment", items[0].(map[string]any)["payment_status"])

	// The provider reports payment; a redelivery changes nothing.
	paid := `{"eventType":"invoice.paid","data":{"invoiceId":"` + arID + `","status":"PAID"}}`
	w := s.deliver(t, paid, s.verifier.Sign([]byte(paid)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	items = invoicesOf(t, s, manager, woID)
	first := items[0].(map[string]any)
	assert.Equal(t, "paid", first["payment_status"])
	paidAt := first["paid_at"]
	require.NotNil(t, paidAt)

	w = s.deliver(t, paid, s.verifier.Sign([]byte(paid)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, paidAt, invoicesOf(t, s, manager, woID)[0].(map[string]any)["paid_at"])

	// Forged deliveries never reach the ledger.
	w = s.deliver(t, paid, strings.Repeat("0", 64))
	testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, dto.ErrCodeUnauthorized)

	// The technician claims, completes and bills the service.
	path := "/work-orders/" + strconv.FormatInt(woID, 10)
	s.call(t, tech, http.MethodPost, path+"/claim", nil)
	done := data(t, s.call(t, tech, http.MethodPost, path+"/complete", nil))
	assert.Equal(t, "completed", done["status"])

	service := data(t, s.call(t, tech, http.MethodPost, path+"/service-invoice", map[string]any{"amount": "320.00"}))
	serviceID := int64(service["id"].(float64))
	assert.Equal(t, "unbilled", service["payment_status"])

	sent := s.call(t, manager, http.MethodPost, "/billing/ar-invoices", map[string]any{"invoiceId": serviceID})
	assert.Equal(t, true, sent["success"])
	assert.True(t, strings.HasPrefix(sent["arInvoiceId"].(string), "00e"))

	// Sending it again is refused.
	w = s.do(t, manager, http.MethodPost, "/billing/ar-invoices", map[string]any{"invoiceId": serviceID})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodePreconditionFailed)

	// The lab customer was reused for the second invoice.
	stored, err = s.labs.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, customerID, *stored.BillCustomerID)

	// Vendor payment happens once.
	w = s.do(t, tech, http.MethodPost, "/billing/vendor-payments", map[string]any{"workOrderId": woID})
	testutil.AssertErrorResponse(t, w, http.StatusForbidden, dto.ErrCodeForbidden)

	vendor := s.call(t, admin, http.MethodPost, "/billing/vendor-payments", map[string]any{"workOrderId": strconv.FormatInt(woID, 10)})
	assert.Equal(t, true, vendor["success"])
	assert.Equal(t, "Sam Tech", vendor["technician"])
	assert.True(t, strings.HasPrefix(vendor["vendorBillId"].(string), "0bi"))

	w = s.do(t, manager, http.MethodPost, "/billing/vendor-payments", map[string]any{"workOrderId": woID})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodePreconditionFailed)

	techRow, err := s.technicians.FindByProfileID(context.Background(), tech.ID)
	require.NoError(t, err)
	require.NotNil(t, techRow.BillVendorID)
	assert.True(t, strings.HasPrefix(*techRow.BillVendorID, identity.VendorIDPrefix))

	// The history thread recorded every transition.
	thread := s.call(t, manager, http.MethodGet, path+"/updates", nil)["data"].([]any)
	assert.Len(t, thread, 2)
}

func TestConcurrentInitialFeeProvisioning(t *testing.T) {
	s := newServer(t)
	manager := s.seedProfile(t, identity.RoleLab, "Dana Manager", "dana@lab.test")
	l := s.seedLab(t, manager)

	token, err := s.jwt.GenerateToken(manager.ID, manager.Role, time.Hour)
	require.NoError(t, err)
	headers := map[string]string{middleware.AuthHeaderKey: middleware.BearerPrefix + token}

	const orders = 5
	var wg sync.WaitGroup
	codes := make([]int, orders)
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/work-orders", strings.NewReader(
				`{"lab_id":`+strconv.FormatInt(l.ID, 10)+`,"title":"Incubator CO2 drift `+strconv.Itoa(i)+`"}`))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			s.engine.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusCreated, code)
	}

	// Every initial fee was billed to the one customer the lab ended up with.
	stored, err := s.labs.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BillCustomerID)

	var distinct int64
	require.NoError(t, s.db.DB.Raw(`SELECT COUNT(DISTINCT bill_ar_invoice_id) FROM invoices WHERE lab_id = ?`, l.ID).Scan(&distinct).Error)
	assert.Equal(t, int64(orders), distinct)
}

func TestWebhookForUnknownInvoiceIsAcknowledged(t *testing.T) {
	s := newServer(t)

	body := `{"invoiceId":"00eNOPE","status":"paid"}`
	w := s.deliver(t, body, s.verifier.Sign([]byte(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
