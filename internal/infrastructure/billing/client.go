// Package billing implements the billing.Gateway port against the external
// accounts-receivable/payable provider's v3 JSON API.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/billing"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	loginPath     = "/v3/login"
	customersPath = "/v3/customers"
	vendorsPath   = "/v3/vendors"
	invoicesPath  = "/v3/invoices"
	billsPath     = "/v3/bills"

	dateLayout         = "2006-01-02"
	maxProviderPayload = 1 << 20
	tracerName         = "github.com/labfix/backend/internal/infrastructure/billing"
)

// Compile-time check
var _ billing.Gateway = (*Client)(nil)

// Client implements billing.Gateway over HTTP
type Client struct {
	config     *Config
	httpClient *http.Client
	session    *SessionHolder
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. to point at a test server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionHolder injects a session holder, e.g. one seeded by a test.
func WithSessionHolder(h *SessionHolder) Option {
	return func(c *Client) { c.session = h }
}

// NewClient creates a billing provider client. In mock mode requests are
// answered by an in-process transport and login is synthesized.
func NewClient(config *Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	if config.MockMode {
		c.httpClient.Transport = newMockTransport()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session == nil {
		c.session = NewSessionHolder(c.login, config.timeout())
	}
	return c, nil
}

// EnsureSession returns the cached session token, logging in if none is held.
func (c *Client) EnsureSession(ctx context.Context) (string, error) {
	return c.session.Token(ctx)
}

// login performs the credential exchange. Mock mode never leaves the process.
func (c *Client) login(ctx context.Context) (string, error) {
	if c.config.MockMode {
		token := "mock-session-" + uuid.NewString()
		c.logger.Debug("Synthesized mock billing session")
		return token, nil
	}

	payload := map[string]string{
		"username":       c.config.Username,
		"password":       c.config.Password,
		"organizationId": c.config.OrganizationID,
		"devKey":         c.config.DevKey,
	}
	status, body, err := c.post(ctx, loginPath, payload, "")
	if err != nil {
		return "", shared.AuthenticationError("billing provider login failed: %v", err)
	}
	if status >= http.StatusBadRequest {
		return "", shared.AuthenticationError("billing provider login failed: HTTP %d %s", status, errorMessage(body))
	}
	token, err := parseSessionID(body)
	if err != nil {
		return "", shared.AuthenticationError("billing provider login failed: %v", err)
	}
	c.logger.Info("Billing provider session established")
	return token, nil
}

// CreateCustomer provisions a customer record for a lab
func (c *Client) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if name == "" {
		return "", billing.ErrMissingCustomerName
	}
	payload := map[string]any{
		"name":  name,
		"email": email,
	}
	id, err := c.create(ctx, "create_customer", customersPath, payload)
	if err != nil {
		return "", err
	}
	c.logger.Info("Created billing customer", zap.String("customer_id", id))
	return id, nil
}

// CreateVendor provisions a vendor record for a technician
func (c *Client) CreateVendor(ctx context.Context, name, email string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("billing: vendor name is required")
	}
	payload := map[string]any{
		"name":  name,
		"email": email,
	}
	id, err := c.create(ctx, "create_vendor", vendorsPath, payload)
	if err != nil {
		return "", err
	}
	c.logger.Info("Created billing vendor", zap.String("vendor_id", id))
	return id, nil
}

// CreateARInvoice creates a customer-facing invoice and asks the provider to
// email it to the customer
func (c *Client) CreateARInvoice(ctx context.Context, req *billing.CreateARInvoiceRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	items := req.LineItems()
	lines := make([]arLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, arLineItem{
			Description: item.Description,
			Quantity:    1,
			Price:       money(item.Amount),
		})
	}
	payload := arInvoicePayload{
		Customer:         customerRef{ID: req.CustomerID},
		InvoiceNumber:    req.InvoiceNumber,
		InvoiceDate:      req.InvoiceDate.Format(dateLayout),
		DueDate:          req.DueDate.Format(dateLayout),
		Description:      req.Description,
		InvoiceLineItems: lines,
		CustomerEmail:    req.CustomerEmail,
		CustomerName:     req.CustomerName,
		ProcessingOptions: processingOptions{
			SendEmail: true,
		},
	}

	id, err := c.create(ctx, "create_ar_invoice", invoicesPath, payload)
	if err != nil {
		return "", err
	}
	c.logger.Info("Created AR invoice",
		zap.String("ar_invoice_id", id),
		zap.String("invoice_number", req.InvoiceNumber),
		zap.Int("line_items", len(lines)),
	)
	return id, nil
}

// CreateVendorBill creates a payable bill owed to a vendor
func (c *Client) CreateVendorBill(ctx context.Context, req *billing.CreateVendorBillRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	payload := vendorBillPayload{
		VendorID: req.VendorID,
		Invoice: billInvoiceRef{
			InvoiceNumber: req.BillNumber,
			InvoiceDate:   req.BillDate.Format(dateLayout),
		},
		DueDate:     req.DueDate.Format(dateLayout),
		Description: req.Description,
		BillLineItems: []billLineItem{{
			Amount:      money(req.Amount),
			Description: req.Description,
		}},
	}
	id, err := c.create(ctx, "create_vendor_bill", billsPath, payload)
	if err != nil {
		return "", err
	}
	c.logger.Info("Created vendor bill",
		zap.String("bill_id", id),
		zap.String("vendor_id", req.VendorID),
		zap.String("bill_number", req.BillNumber),
	)
	return id, nil
}

// create sends one authenticated create call and returns the new object's id.
func (c *Client) create(ctx context.Context, op, path string, payload any) (id string, err error) {
	ctx, span := c.tracer.Start(ctx, "billing."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("billing.object_id", id))
		}
		span.End()
	}()

	body, err := c.call(ctx, path, payload)
	if err != nil {
		return "", err
	}
	id, err = parseCreatedID(body)
	if err != nil {
		return "", shared.ProviderError(err, "billing provider %s", op)
	}
	return id, nil
}

// call performs an authenticated POST. A 401 invalidates the session, logs in
// again and retries this single call once.
func (c *Client) call(ctx context.Context, path string, payload any) ([]byte, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, asAuthError(err)
	}

	status, body, err := c.post(ctx, path, payload, token)
	if err != nil {
		return nil, shared.ProviderError(err, "billing provider request %s", path)
	}

	if status == http.StatusUnauthorized {
		c.logger.Warn("Billing session rejected, re-authenticating",
			zap.String("path", path),
		)
		token, err = c.session.Refresh(ctx, token)
		if err != nil {
			return nil, asAuthError(err)
		}
		status, body, err = c.post(ctx, path, payload, token)
		if err != nil {
			return nil, shared.ProviderError(err, "billing provider request %s", path)
		}
		if status == http.StatusUnauthorized {
			c.session.Invalidate(token)
			return nil, shared.AuthenticationError("billing provider rejected a fresh session for %s", path)
		}
	}

	if status >= http.StatusBadRequest {
		c.logger.Error("Billing provider request failed",
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("detail", errorMessage(body)),
		)
		return nil, shared.ProviderError(nil, "billing provider %s returned HTTP %d: %s", path, status, errorMessage(body))
	}
	return body, nil
}

// post sends one JSON request and returns the status and body. Transport
// failures are returned as err; HTTP errors are left to the caller.
func (c *Client) post(ctx context.Context, path string, payload any, sessionID string) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("billing: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.endpoint(path), bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("billing: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.DevKey != "" {
		req.Header.Set("devKey", c.config.DevKey)
	}
	if sessionID != "" {
		req.Header.Set("sessionId", sessionID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("billing: provider unavailable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderPayload))
	if err != nil {
		return 0, nil, fmt.Errorf("billing: failed to read response: %w", err)
	}

	c.logger.Debug("Billing provider call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.StatusCode, respBody, nil
}

// asAuthError keeps authentication errors as they are and classifies any
// other session failure as one.
func asAuthError(err error) error {
	if errors.Is(err, shared.ErrUnauthorized) {
		return err
	}
	return shared.AuthenticationError("billing provider session unavailable: %v", err)
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Wire payloads

type customerRef struct {
	ID string `json:"id"`
}

type processingOptions struct {
	SendEmail bool `json:"sendEmail"`
}

type arLineItem struct {
	Description string      `json:"description"`
	Quantity    int         `json:"quantity"`
	Price       json.Number `json:"price"`
}

type arInvoicePayload struct {
	Customer          customerRef       `json:"customer"`
	InvoiceNumber     string            `json:"invoiceNumber"`
	InvoiceDate       string            `json:"invoiceDate"`
	DueDate           string            `json:"dueDate"`
	Description       string            `json:"description,omitempty"`
	InvoiceLineItems  []arLineItem      `json:"invoiceLineItems"`
	CustomerEmail     string            `json:"customerEmail,omitempty"`
	CustomerName      string            `json:"customerName,omitempty"`
	ProcessingOptions processingOptions `json:"processingOptions"`
}

type billInvoiceRef struct {
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
}

type billLineItem struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description,omitempty"`
}

type vendorBillPayload struct {
	VendorID      string         `json:"vendorId"`
	Invoice       billInvoiceRef `json:"invoice"`
	DueDate       string         `json:"dueDate"`
	Description   string         `json:"description,omitempty"`
	BillLineItems []billLineItem `json:"billLineItems"`
}
