package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	_ "github.com/labfix/backend/docs"
	"github.com/labfix/backend/internal/infrastructure/auth"
	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/infrastructure/logger"
	"github.com/labfix/backend/internal/interfaces/http/handler"
	"github.com/labfix/backend/internal/interfaces/http/middleware"
)

// WebhookPath is the unauthenticated billing webhook route.
const WebhookPath = "/api/v1/billing/webhook"

const defaultMaxBodySize = 1 << 20

// Handlers are the HTTP handlers mounted by NewEngine.
type Handlers struct {
	System     *handler.SystemHandler
	WorkOrders *handler.WorkOrderHandler
	Billing    *handler.BillingHandler
	Webhook    *handler.BillingWebhookHandler
}

// Options configure the engine middleware.
type Options struct {
	HTTP        config.HTTPConfig
	ServiceName string
	Production  bool
	Logger      *zap.Logger
	JWT         *auth.JWTService

	// TracerProvider enables request spans when set.
	TracerProvider trace.TracerProvider
	// Meter enables request metrics when set.
	Meter metric.Meter
	// RateLimiter guards the billing routes when set.
	RateLimiter *middleware.RateLimiter
	// Docs controls the Swagger UI under /swagger.
	Docs middleware.SwaggerConfig
}

// NewEngine builds the gin engine with the full middleware chain and every
// route of the service.
func NewEngine(opts Options, h Handlers) (*gin.Engine, error) {
	if opts.JWT == nil {
		return nil, fmt.Errorf("router: JWT service is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("router: trusted proxies: %w", err)
	}

	httpMetrics, err := middleware.HTTPMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("router: http metrics: %w", err)
	}

	maxBody := opts.HTTP.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	security := middleware.DefaultSecurityConfig()
	security.HSTSEnabled = opts.Production

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName:    opts.ServiceName,
			Enabled:        opts.TracerProvider != nil,
			TracerProvider: opts.TracerProvider,
		}),
		middleware.SpanEnricher(),
		httpMetrics,
		middleware.CORSWithConfig(middleware.CORSConfigFrom(opts.HTTP)),
		middleware.SecureWithConfig(security),
		middleware.BodyLimit(maxBody),
		middleware.RequestTimeout(opts.HTTP.RequestTimeout),
	)

	var limited []gin.HandlerFunc
	if opts.RateLimiter != nil {
		limited = append(limited, middleware.RateLimit(opts.RateLimiter))
	}

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/ready", h.System.Ready)
	}
	engine.GET("/swagger/*any", middleware.SwaggerProtection(opts.Docs), ginSwagger.WrapHandler(swaggerFiles.Handler))
	if h.Webhook != nil {
		engine.POST(WebhookPath, append(limited, h.Webhook.HandleWebhook)...)
	}

	jwtConfig := middleware.DefaultJWTConfig(opts.JWT)
	jwtConfig.Logger = log
	r := NewRouter(engine, WithAPIVersion("v1")).
		Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	if h.Billing != nil {
		r.Register(billingRoutes(h.Billing, limited))
		r.Register(invoiceRoutes(h.Billing))
	}
	if h.WorkOrders != nil {
		r.Register(workOrderRoutes(h.WorkOrders, h.Billing))
	}
	if h.System != nil {
		r.Register(NewDomainGroup("system", "/system").GET("/info", h.System.GetSystemInfo))
	}
	r.Setup()

	return engine, nil
}

func billingRoutes(h *handler.BillingHandler, limited []gin.HandlerFunc) *DomainGroup {
	return NewDomainGroup("billing", "/billing").
		Use(limited...).
		POST("/ar-invoices", h.CreateARInvoice).
		POST("/initial-fee-invoices", h.CreateInitialFeeInvoice).
		POST("/vendor-payments", h.PayVendor)
}

func invoiceRoutes(h *handler.BillingHandler) *DomainGroup {
	return NewDomainGroup("invoices", "/invoices").
		POST("/:id/mark-paid", h.MarkInvoicePaid)
}

func workOrderRoutes(h *handler.WorkOrderHandler, billing *handler.BillingHandler) *DomainGroup {
	g := NewDomainGroup("work-orders", "/work-orders").
		POST("", h.Create).
		GET("", h.List).
		GET("/:id", h.Get).
		PATCH("/:id", h.Edit).
		POST("/:id/claim", h.Claim).
		POST("/:id/release", h.Release).
		POST("/:id/complete", h.Complete).
		POST("/:id/cancel", h.Cancel).
		GET("/:id/updates", h.ListUpdates).
		POST("/:id/updates", h.AddComment).
		POST("/:id/service-invoice", h.RequestServicePayment)
	if billing != nil {
		g.GET("/:id/invoices", billing.ListWorkOrderInvoices)
	}
	return g
}
