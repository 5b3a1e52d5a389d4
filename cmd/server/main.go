package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/application/webhook"
	appworkorder "github.com/labfix/backend/internal/application/workorder"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/infrastructure/auth"
	"github.com/labfix/backend/internal/infrastructure/billing"
	"github.com/labfix/backend/internal/infrastructure/cache"
	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/infrastructure/logger"
	"github.com/labfix/backend/internal/infrastructure/notification"
	"github.com/labfix/backend/internal/infrastructure/persistence"
	"github.com/labfix/backend/internal/infrastructure/storage"
	"github.com/labfix/backend/internal/infrastructure/telemetry"
	"github.com/labfix/backend/internal/interfaces/http/handler"
	"github.com/labfix/backend/internal/interfaces/http/middleware"
	"github.com/labfix/backend/internal/interfaces/http/router"
)

//	@title			LabFix Marketplace API
//	@version		1.0
//	@description	Work orders, invoices and billing provider orchestration for the LabFix maintenance marketplace.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token issued by the identity provider. Format: "Bearer {token}"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	log.Info("Starting LabFix backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = meterProvider.Shutdown(context.Background())
		_ = tracerProvider.Shutdown(context.Background())
	}()
	meter := meterProvider.Meter("labfix-backend")

	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQuery)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry), log).Register(db.DB); err != nil {
		return err
	}
	log.Info("Database connected successfully")

	workOrderRepo := persistence.NewGormWorkOrderRepository(db.DB)
	updateRepo := persistence.NewGormWorkOrderUpdateRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	labRepo := persistence.NewGormLabRepository(db.DB)
	profileRepo := persistence.NewGormProfileRepository(db.DB)
	technicianRepo := persistence.NewGormTechnicianRepository(db.DB)

	checks := []handler.DependencyCheck{{
		Name: "database",
		Ping: func(context.Context) error { return db.Ping() },
	}}

	var (
		locker     shared.Locker
		deliveries shared.IdempotencyStore
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		locker = cache.NewRedisLocker(redisClient, log)
		deliveries = cache.NewRedisIdempotencyStore(redisClient, "labfix:webhook:")
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return pingRedis(ctx, redisClient) },
		})
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		log.Warn("Redis disabled, provisioning locks and webhook dedupe are per process")
		locker = cache.NewInMemoryLocker()
		deliveries = cache.NewInMemoryIdempotencyStore(time.Minute)
	}
	defer func() { _ = deliveries.Close() }()

	billingMetrics, err := telemetry.NewBillingMetrics(meter)
	if err != nil {
		return err
	}

	gateway, err := billing.NewClient(&billing.Config{
		BaseURL:        cfg.Billing.BaseURL,
		Username:       cfg.Billing.Username,
		Password:       cfg.Billing.Password,
		OrganizationID: cfg.Billing.OrganizationID,
		DevKey:         cfg.Billing.DevKey,
		MockMode:       cfg.Billing.MockMode,
		Timeout:        cfg.Billing.Timeout,
	}, log.Named("billing"))
	if err != nil {
		return err
	}
	if cfg.Billing.MockMode {
		log.Warn("Billing provider in mock mode, no invoices leave this process")
	}

	notifier, err := notification.New(cfg.Mail, log.Named("notification"))
	if err != nil {
		return err
	}

	var archive webhook.Archive
	if cfg.Webhook.ArchiveEnabled {
		s3Archive, err := storage.NewS3PayloadArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return err
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			return err
		}
		archive = s3Archive
		log.Info("Webhook payload archive enabled", zap.String("bucket", s3Archive.Bucket()))
	}

	payments := payment.NewService(payment.ServiceConfig{
		Gateway:     gateway,
		WorkOrders:  workOrderRepo,
		Invoices:    invoiceRepo,
		Labs:        labRepo,
		Profiles:    profileRepo,
		Technicians: technicianRepo,
		Locker:      locker,
		Notifier:    notifier,
		Metrics:     billingMetrics,
		Config: payment.Config{
			InitialFee: cfg.Billing.InitialFee,
			DueDays:    cfg.Billing.DueDays,
			LockTTL:    cfg.Billing.LockTTL,

			NotifyTimeout:     cfg.Mail.Timeout,
			MaxPendingNotices: cfg.Mail.MaxPending,
		},
		Logger: log,
	})
	workOrders := appworkorder.NewService(appworkorder.ServiceConfig{
		WorkOrders:  workOrderRepo,
		Updates:     updateRepo,
		Labs:        labRepo,
		Technicians: technicianRepo,
		Invoices:    invoiceRepo,
		Invoicer:    payments,
		Logger:      log,
	})
	webhooks := webhook.NewService(webhook.ServiceConfig{
		Verifier:   webhook.NewVerifier(cfg.Webhook.Secret),
		Invoices:   invoiceRepo,
		Deliveries: deliveries,
		DedupeTTL:  cfg.Webhook.DedupeTTL,
		Archive:    archive,
		Metrics:    billingMetrics,
		Logger:     log,
	})
	if cfg.Webhook.Secret == "" {
		log.Warn("webhook.secret is empty, every billing webhook will be refused")
	}

	billingHandler := handler.NewBillingHandler(payments)
	billingHandler.HideProviderDetail = cfg.App.IsProduction()

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
	}

	opts := router.Options{
		HTTP:        cfg.HTTP,
		ServiceName: cfg.Telemetry.ServiceName,
		Production:  cfg.App.IsProduction(),
		Logger:      log,
		JWT:         auth.NewJWTService(cfg.JWT),
		Meter:       meter,
		RateLimiter: limiter,
		Docs: middleware.SwaggerConfig{
			Enabled:    cfg.HTTP.DocsEnabled,
			AllowedIPs: cfg.HTTP.DocsAllowedIPs,
		},
	}
	if tracerProvider.IsEnabled() {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	engine, err := router.NewEngine(opts, router.Handlers{
		System:     handler.NewSystemHandler(cfg.App.Name, version, checks...),
		WorkOrders: handler.NewWorkOrderHandler(workOrders),
		Billing:    billingHandler,
		Webhook:    handler.NewBillingWebhookHandler(webhooks, cfg.Webhook.SignatureHeader, cfg.Webhook.MaxBodyBytes),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := payments.WaitNotices(shutdownCtx); err != nil {
		log.Warn("Invoice notices still pending at shutdown", zap.Error(err))
	}
	log.Info("Server exited")
	return nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
