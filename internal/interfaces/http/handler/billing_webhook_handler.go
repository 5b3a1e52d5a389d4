package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/webhook"
	"github.com/labfix/backend/internal/infrastructure/logger"
	"github.com/labfix/backend/internal/interfaces/http/dto"
)

const (
	defaultSignatureHeader = "X-Bill-Signature"
	defaultWebhookMaxBytes = 1 << 20
)

// WebhookProcessor verifies and applies raw provider deliveries.
type WebhookProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) (*webhook.Result, error)
}

// BillingWebhookHandler receives payment notifications from the billing
// provider. It is mounted without JWT authentication; the HMAC signature
// over the raw body is the only credential.
type BillingWebhookHandler struct {
	BaseHandler
	processor       WebhookProcessor
	signatureHeader string
	maxBodyBytes    int64
}

// NewBillingWebhookHandler creates a new BillingWebhookHandler. Empty or
// zero settings fall back to X-Bill-Signature and 1 MiB.
func NewBillingWebhookHandler(processor WebhookProcessor, signatureHeader string, maxBodyBytes int64) *BillingWebhookHandler {
	if signatureHeader == "" {
		signatureHeader = defaultSignatureHeader
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultWebhookMaxBytes
	}
	return &BillingWebhookHandler{
		processor:       processor,
		signatureHeader: signatureHeader,
		maxBodyBytes:    maxBodyBytes,
	}
}

// HandleWebhook godoc
// @ID           handleBillingWebhook
// @Summary      Receive a billing provider notification
// @Description  Verifies the HMAC-SHA256 signature of the raw body and reconciles paid invoices. Deliveries for unknown invoices and non-payment events are acknowledged.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        X-Bill-Signature header string true "hex HMAC-SHA256 of the body"
// @Success      200 {object} dto.WebhookAck
// @Failure      400 {object} dto.ErrorResponse
// @Failure      401 {object} dto.ErrorResponse
// @Failure      413 {object} dto.ErrorResponse
// @Failure      500 {object} dto.ErrorResponse
// @Router       /billing/webhook [post]
func (h *BillingWebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.HandleError(c, err)
			return
		}
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "failed to read request body")
		return
	}

	result, err := h.processor.Handle(c.Request.Context(), body, c.GetHeader(h.signatureHeader))
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "invalid signature")
		return
	case errors.Is(err, webhook.ErrSecretNotConfigured):
		logger.Enrich(c.Request.Context(), logger.GetGinLogger(c)).Error("Billing webhook received without a signing secret")
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeMisconfigured, "webhook is not configured")
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}

	logger.Enrich(c.Request.Context(), logger.GetGinLogger(c)).Info("Billing webhook acknowledged",
		zap.String("outcome", string(result.Outcome)),
		zap.String("ar_invoice_id", result.ExternalID),
		zap.Int64("invoice_id", result.InvoiceID))
	c.JSON(http.StatusOK, dto.WebhookAck{OK: true})
}
