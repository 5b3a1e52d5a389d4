package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/infrastructure/telemetry"
)

const defaultDedupeTTL = 72 * time.Hour

// Archive stores raw verified payloads for audit.
type Archive interface {
	Archive(ctx context.Context, body []byte) (string, error)
}

// ServiceConfig holds the dependencies of Service. Deliveries and Archive
// are optional.
type ServiceConfig struct {
	Verifier   *Verifier
	Invoices   invoice.Repository
	Deliveries shared.IdempotencyStore
	DedupeTTL  time.Duration
	Archive    Archive
	Metrics    *telemetry.BillingMetrics
	Logger     *zap.Logger
}

// Service applies verified payment notifications to the invoice ledger.
type Service struct {
	verifier   *Verifier
	invoices   invoice.Repository
	deliveries shared.IdempotencyStore
	dedupeTTL  time.Duration
	archive    Archive
	metrics    *telemetry.BillingMetrics
	logger     *zap.Logger
}

// NewService creates a new webhook Service
func NewService(c ServiceConfig) *Service {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := c.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Service{
		verifier:   c.Verifier,
		invoices:   c.Invoices,
		deliveries: c.Deliveries,
		dedupeTTL:  ttl,
		archive:    c.Archive,
		metrics:    c.Metrics,
		logger:     logger,
	}
}

// Result describes how a delivery was acknowledged.
type Result struct {
	Outcome    telemetry.WebhookOutcome
	ExternalID string
	InvoiceID  int64
}

// DeliveryKey identifies a delivery by the digest of its raw body.
func DeliveryKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Handle verifies, parses and applies one delivery. Every returned error
// means the delivery was not acknowledged.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (result *Result, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "handle")
	defer func() {
		if result != nil {
			s.metrics.WebhookDelivery(ctx, result.Outcome)
			telemetry.SetAttributes(span, "webhook.outcome", string(result.Outcome))
		}
		telemetry.RecordError(span, err)
		span.End()
	}()

	if err := s.verifier.Verify(body, signature); err != nil {
		s.metrics.WebhookDelivery(ctx, telemetry.WebhookRejected)
		if errors.Is(err, ErrSecretNotConfigured) {
			s.logger.Error("Webhook secret is not configured")
		} else {
			s.logger.Warn("Rejected webhook with invalid signature", zap.Int("body_bytes", len(body)))
		}
		return nil, err
	}

	key := DeliveryKey(body)
	if s.deliveries != nil {
		seen, err := s.deliveries.IsProcessed(ctx, key)
		if err != nil {
			s.logger.Warn("Delivery dedupe lookup failed, processing anyway", zap.Error(err))
		} else if seen {
			s.logger.Info("Duplicate webhook delivery acknowledged", zap.String("delivery_key", key))
			return &Result{Outcome: telemetry.WebhookDuplicate}, nil
		}
	}

	s.archivePayload(ctx, body)

	n, err := ParsePayload(body)
	if err != nil {
		s.metrics.WebhookDelivery(ctx, telemetry.WebhookRejected)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrExternalID, n.InvoiceID,
		telemetry.SpanAttrWebhookEvent, n.Kind(),
	)

	result, err = s.apply(ctx, n)
	if err != nil {
		s.metrics.WebhookDelivery(ctx, telemetry.WebhookProcessError)
		s.logger.Error("Failed to apply webhook",
			zap.String("ar_invoice_id", n.InvoiceID),
			zap.String("event", n.Kind()),
			zap.Error(err))
		return nil, err
	}

	// Unknown ids are not remembered: the invoice row may not carry its
	// external id yet, and a redelivery must then be applied.
	if s.deliveries != nil && result.Outcome != telemetry.WebhookUnknown {
		if _, err := s.deliveries.MarkProcessed(ctx, key, s.dedupeTTL); err != nil {
			s.logger.Warn("Failed to record webhook delivery", zap.String("delivery_key", key), zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, n *Notification) (*Result, error) {
	result := &Result{ExternalID: n.InvoiceID}

	inv, err := s.invoices.FindByExternalID(ctx, n.InvoiceID)
	if errors.Is(err, shared.ErrNotFound) {
		s.logger.Warn("Webhook for unknown invoice acknowledged",
			zap.String("ar_invoice_id", n.InvoiceID),
			zap.String("event", n.Kind()))
		result.Outcome = telemetry.WebhookUnknown
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.InvoiceID = inv.ID

	if !n.IsPaid() {
		s.logger.Info("Webhook event ignored",
			zap.Int64("invoice_id", inv.ID),
			zap.String("event", n.Event),
			zap.String("status", n.Status))
		result.Outcome = telemetry.WebhookIgnored
		return result, nil
	}

	changed, err := s.invoices.MarkPaid(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		result.Outcome = telemetry.WebhookPaid
		s.logger.Info("Invoice paid",
			zap.Int64("invoice_id", inv.ID),
			zap.Int64("work_order_id", inv.WorkOrderID),
			zap.String("ar_invoice_id", n.InvoiceID))
	} else {
		result.Outcome = telemetry.WebhookAlreadyPaid
		s.logger.Info("Invoice already paid",
			zap.Int64("invoice_id", inv.ID),
			zap.String("ar_invoice_id", n.InvoiceID))
	}
	return result, nil
}

func (s *Service) archivePayload(ctx context.Context, body []byte) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Archive(ctx, body)
	if err != nil {
		s.logger.Warn("Failed to archive webhook payload", zap.Error(err))
		return
	}
	s.logger.Debug("Archived webhook payload", zap.String("object_key", key))
}
