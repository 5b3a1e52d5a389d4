package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/labfix/backend/internal/domain/shared"
)

// Events that report a settled invoice.
const (
	EventInvoicePaid      = "invoice.paid"
	EventPaymentCompleted = "payment.completed"
)

// Notification is the canonical form of every payload shape the provider
// has sent.
type Notification struct {
	InvoiceID string // provider AR invoice id
	Event     string
	Status    string
}

// IsPaid reports whether the notification settles the invoice.
func (n Notification) IsPaid() bool {
	switch strings.ToLower(n.Event) {
	case EventInvoicePaid, EventPaymentCompleted:
		return true
	}
	return strings.EqualFold(n.Status, "paid")
}

// Kind returns the event, falling back to the status, for logs and spans.
func (n Notification) Kind() string {
	if n.Event != "" {
		return n.Event
	}
	return n.Status
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type envelope struct {
	InvoiceID looseString `json:"invoiceId"`
	ID        looseString `json:"id"`
	Status    looseString `json:"status"`
}

type rawPayload struct {
	envelope
	Data      *envelope   `json:"data"`
	EventType looseString `json:"eventType"`
	Type      looseString `json:"type"`
}

// ParsePayload decodes one of the accepted shapes:
//
//	{"data": {"invoiceId": "...", "status": "..."}, "eventType": "..."}
//	{"invoiceId": "...", "status": "...", "type": "..."}
//	{"id": "...", "eventType": "..."}
//
// The nested envelope wins over top-level fields, and invoiceId wins over id.
func ParsePayload(body []byte) (*Notification, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, shared.ValidationError("webhook payload is not valid JSON")
	}

	n := &Notification{
		Event: firstNonEmpty(raw.EventType, raw.Type),
	}
	if raw.Data != nil {
		n.InvoiceID = firstNonEmpty(raw.Data.InvoiceID, raw.Data.ID)
		n.Status = string(raw.Data.Status)
	}
	if n.InvoiceID == "" {
		n.InvoiceID = firstNonEmpty(raw.InvoiceID, raw.ID)
	}
	if n.Status == "" {
		n.Status = string(raw.Status)
	}
	if n.InvoiceID == "" {
		return nil, shared.ValidationError("webhook payload has no invoice id")
	}
	return n, nil
}

func firstNonEmpty(values ...looseString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}
