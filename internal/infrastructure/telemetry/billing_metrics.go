package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/labfix/backend/internal/domain/shared"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// WebhookOutcome labels what the reconciliation gate did with a delivery.
type WebhookOutcome string

const (
	WebhookRejected     WebhookOutcome = "rejected"     // bad signature or payload
	WebhookUnknown      WebhookOutcome = "unknown"      // no matching invoice
	WebhookIgnored      WebhookOutcome = "ignored"      // not a payment event
	WebhookPaid         WebhookOutcome = "paid"         // invoice moved to paid
	WebhookAlreadyPaid  WebhookOutcome = "already_paid" // invoice was paid before
	WebhookDuplicate    WebhookOutcome = "duplicate"    // delivery seen before
	WebhookProcessError WebhookOutcome = "error"        // ledger write failed
)

// BillingMetrics counts billing activity. A nil *BillingMetrics is valid and
// records nothing.
type BillingMetrics struct {
	arInvoices       *Counter
	vendorBills      *Counter
	webhooks         *Counter
	providerErrors   *Counter
	providerDuration *Histogram
}

// NewBillingMetrics registers the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		bm  BillingMetrics
		err error
	)
	if bm.arInvoices, err = NewCounter(meter, "labfix_ar_invoices_created_total",
		"AR invoices created at the billing provider", "{invoices}"); err != nil {
		return nil, err
	}
	if bm.vendorBills, err = NewCounter(meter, "labfix_vendor_bills_created_total",
		"Vendor bills created at the billing provider", "{bills}"); err != nil {
		return nil, err
	}
	if bm.webhooks, err = NewCounter(meter, "labfix_billing_webhooks_total",
		"Billing webhook deliveries by outcome", "{deliveries}"); err != nil {
		return nil, err
	}
	if bm.providerErrors, err = NewCounter(meter, "labfix_billing_provider_errors_total",
		"Failed billing provider operations", "{errors}"); err != nil {
		return nil, err
	}
	if bm.providerDuration, err = NewHistogram(meter, "labfix_billing_provider_duration_seconds",
		"Billing provider operation latency", "s", ProviderDurationBuckets...); err != nil {
		return nil, err
	}
	return &bm, nil
}

// ARInvoiceCreated counts one AR invoice of invoiceType.
func (bm *BillingMetrics) ARInvoiceCreated(ctx context.Context, invoiceType string) {
	if bm == nil {
		return
	}
	bm.arInvoices.Inc(ctx, AttrInvoiceType.String(invoiceType))
}

// VendorBillCreated counts one vendor bill.
func (bm *BillingMetrics) VendorBillCreated(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.vendorBills.Inc(ctx)
}

// WebhookDelivery counts one webhook delivery by outcome.
func (bm *BillingMetrics) WebhookDelivery(ctx context.Context, outcome WebhookOutcome) {
	if bm == nil {
		return
	}
	bm.webhooks.Inc(ctx, AttrOutcome.String(string(outcome)))
}

// ProviderCall records the latency of one provider operation and counts it as
// an error when err is non-nil.
func (bm *BillingMetrics) ProviderCall(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if bm == nil {
		return
	}
	bm.providerDuration.RecordDuration(ctx, elapsed, AttrOperation.String(operation))
	if err != nil {
		code := shared.CodeOf(err)
		if code == "" {
			code = "UNKNOWN"
		}
		bm.providerErrors.Inc(ctx, AttrOperation.String(operation), AttrErrorCode.String(code))
	}
}
