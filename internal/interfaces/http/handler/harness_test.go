package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/application/webhook"
	appworkorder "github.com/labfix/backend/internal/application/workorder"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/auth"
	"github.com/labfix/backend/internal/infrastructure/billing"
	"github.com/labfix/backend/internal/infrastructure/cache"
	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/interfaces/http/middleware"
	"github.com/labfix/backend/tests/testutil"
)

const testWebhookSecret = "whsec_handler_test"

// api is a marketplace served over the real services, with the billing
// client answering in mock mode unless a provider URL is given.
type api struct {
	*testutil.Marketplace
	engine   *gin.Engine
	jwt      *auth.JWTService
	verifier *webhook.Verifier
}

type apiOptions struct {
	providerURL        string
	hideProviderDetail bool
	webhookSecret      *string
}

func newAPI(t *testing.T, opts apiOptions) *api {
	t.Helper()
	middleware.SetupValidator()
	m := testutil.NewMarketplace(t, "mgr@x.com")

	cfg := billing.DefaultConfig()
	if opts.providerURL != "" {
		cfg = &billing.Config{
			BaseURL:        opts.providerURL,
			Username:       "u",
			Password:       "p",
			OrganizationID: "org",
			DevKey:         "dev-key",
			Timeout:        2 * time.Second,
		}
	}
	gateway, err := billing.NewClient(cfg, zap.NewNop())
	require.NoError(t, err)

	payments := payment.NewService(payment.ServiceConfig{
		Gateway:     gateway,
		WorkOrders:  m.WorkOrders,
		Invoices:    m.Invoices,
		Labs:        m.Labs,
		Profiles:    m.Profiles,
		Technicians: m.Technicians,
		Locker:      cache.NewInMemoryLocker(),
		Config:      payment.Config{InitialFee: decimal.NewFromInt(50), DueDays: 30, LockTTL: time.Second},
	})
	workOrders := appworkorder.NewService(appworkorder.ServiceConfig{
		WorkOrders:  m.WorkOrders,
		Updates:     m.Updates,
		Labs:        m.Labs,
		Technicians: m.Technicians,
		Invoices:    m.Invoices,
		Invoicer:    payments,
	})

	secret := testWebhookSecret
	if opts.webhookSecret != nil {
		secret = *opts.webhookSecret
	}
	verifier := webhook.NewVerifier(secret)
	store := cache.NewInMemoryIdempotencyStore(0)
	t.Cleanup(func() { _ = store.Close() })
	webhooks := webhook.NewService(webhook.ServiceConfig{
		Verifier:   verifier,
		Invoices:   m.Invoices,
		Deliveries: store,
		DedupeTTL:  time.Hour,
	})

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "labfix-identity",
	})

	billingHandler := NewBillingHandler(payments)
	billingHandler.HideProviderDetail = opts.hideProviderDetail
	webhookHandler := NewBillingWebhookHandler(webhooks, "", 256)
	workOrderHandler := NewWorkOrderHandler(workOrders)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/api/v1/billing/webhook", webhookHandler.HandleWebhook)

	v1 := r.Group("/api/v1", middleware.JWTAuthMiddleware(jwtService))
	v1.POST("/billing/ar-invoices", billingHandler.CreateARInvoice)
	v1.POST("/billing/initial-fee-invoices", billingHandler.CreateInitialFeeInvoice)
	v1.POST("/billing/vendor-payments", billingHandler.PayVendor)
	v1.POST("/invoices/:id/mark-paid", billingHandler.MarkInvoicePaid)

	wo := v1.Group("/work-orders")
	wo.POST("", workOrderHandler.Create)
	wo.GET("", workOrderHandler.List)
	wo.GET("/:id", workOrderHandler.Get)
	wo.PATCH("/:id", workOrderHandler.Edit)
	wo.POST("/:id/claim", workOrderHandler.Claim)
	wo.POST("/:id/release", workOrderHandler.Release)
	wo.POST("/:id/complete", workOrderHandler.Complete)
	wo.POST("/:id/cancel", workOrderHandler.Cancel)
	wo.GET("/:id/updates", workOrderHandler.ListUpdates)
	wo.POST("/:id/updates", workOrderHandler.AddComment)
	wo.POST("/:id/service-invoice", workOrderHandler.RequestServicePayment)
	wo.GET("/:id/invoices", billingHandler.ListWorkOrderInvoices)

	return &api{Marketplace: m, engine: r, jwt: jwtService, verifier: verifier}
}

// do serves a request as actor. A zero actor sends no credential.
func (a *api) do(t *testing.T, as workorder.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	headers := map[string]string{}
	if as.Role != "" {
		token, err := a.jwt.GenerateToken(as.ID, as.Role, time.Hour)
		require.NoError(t, err)
		headers[middleware.AuthHeaderKey] = middleware.BearerPrefix + token
	}
	return testutil.Do(t, a.engine, testutil.Request{Method: method, Path: path, Body: body, Headers: headers})
}

// failingProvider logs in and answers every other call with HTTP 500.
func failingProvider(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v3/login" {
			_, _ = w.Write([]byte(`{"sessionId":"sess-1"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`[{"code":"BDC_1001","message":"upstream exploded with secret detail"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func data(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := testutil.JSONBody(t, w)
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %s", w.Body.String())
	return d
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
