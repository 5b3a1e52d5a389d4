// Package notification delivers invoice notices to lab managers.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/infrastructure/config"
)

// ErrInvalidRecipient is returned for an empty or header-breaking address.
var ErrInvalidRecipient = errors.New("notification: invalid recipient")

const defaultTimeout = 15 * time.Second

// sendFunc delivers one message. Tests swap it to capture messages.
type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPNotifier emails invoice notices through an SMTP relay.
type SMTPNotifier struct {
	host    string
	from    string
	timeout time.Duration
	opts    []mail.Option
	send    sendFunc
	now     func() time.Time
}

// NewSMTPNotifier creates a notifier from mail settings. PLAIN auth is used
// when a username is configured, and STARTTLS when the relay offers it.
func NewSMTPNotifier(cfg config.MailConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("notification: mail host and from address are required")
	}
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("notification: mail.from: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	n := &SMTPNotifier{
		host:    cfg.Host,
		from:    cfg.From,
		timeout: timeout,
		opts:    opts,
		now:     time.Now,
	}
	n.send = n.dialAndSend
	return n, nil
}

// InvoiceCreated sends the notice. Delivery ends when ctx does or when the
// configured timeout passes, whichever is first.
func (n *SMTPNotifier) InvoiceCreated(ctx context.Context, notice payment.InvoiceNotice) error {
	msg, err := n.compose(notice)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// A relay that accepts the connection but never speaks is cut off here.
	errc := make(chan error, 1)
	go func() { errc <- n.send(ctx, msg) }()
	select {
	case err = <-errc:
		if err != nil && ctx.Err() != nil {
			err = errors.Join(ctx.Err(), err)
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("notification: send invoice %s: %w", notice.InvoiceNumber, err)
	}
	return nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.host, n.opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (n *SMTPNotifier) compose(notice payment.InvoiceNotice) (*mail.Msg, error) {
	if notice.To == "" || strings.ContainsAny(notice.To, "\r\n") {
		return nil, ErrInvalidRecipient
	}

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("notification: from address: %w", err)
	}
	if err := msg.AddToFormat(headerSafe(notice.RecipientName), notice.To); err != nil {
		if err := msg.To(notice.To); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
	}
	msg.Subject(headerSafe(subject(notice)))
	msg.SetDateWithValue(n.now())
	msg.SetMessageID()

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\r\n\r\n", notice.RecipientName)
	fmt.Fprintf(&b, "Invoice %s for work order #%d has been issued.\r\n", notice.InvoiceNumber, notice.WorkOrderID)
	fmt.Fprintf(&b, "Amount due: %s\r\n", notice.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Due date: %s\r\n", notice.DueDate.Format("2006-01-02"))
	b.WriteString("\r\nA payment link has been sent separately by our billing provider.\r\n")
	msg.SetBodyString(mail.TypeTextPlain, b.String())
	return msg, nil
}

func subject(notice payment.InvoiceNotice) string {
	return fmt.Sprintf("Invoice %s for work order #%d", notice.InvoiceNumber, notice.WorkOrderID)
}

// headerSafe strips CR and LF so a value cannot inject extra headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogNotifier writes notices to the log. Used when mail is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// InvoiceCreated logs the notice
func (n *LogNotifier) InvoiceCreated(_ context.Context, notice payment.InvoiceNotice) error {
	n.logger.Info("Invoice notice",
		zap.String("to", notice.To),
		zap.String("invoice_number", notice.InvoiceNumber),
		zap.Int64("work_order_id", notice.WorkOrderID),
		zap.String("amount", notice.Amount.StringFixed(2)),
		zap.Time("due_date", notice.DueDate),
	)
	return nil
}

// New picks the SMTP notifier when mail is enabled and the log notifier
// otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) (payment.Notifier, error) {
	if !cfg.Enabled {
		return NewLogNotifier(logger), nil
	}
	return NewSMTPNotifier(cfg)
}

var (
	_ payment.Notifier = (*SMTPNotifier)(nil)
	_ payment.Notifier = (*LogNotifier)(nil)
)
