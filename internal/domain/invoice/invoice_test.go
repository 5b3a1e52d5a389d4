package invoice

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoice(t *testing.T) *Invoice {
	inv, err := NewUnbilled(42, 7, uuid.New(), decimal.NewFromInt(50), TypeInitialFee)
	require.NoError(t, err)
	inv.ID = 7
	return inv
}

func TestNewUnbilled(t *testing.T) {
	t.Run("starts unbilled", func(t *testing.T) {
		inv := newTestInvoice(t)
		assert.Equal(t, PaymentStatusUnbilled, inv.PaymentStatus)
		assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("50.00")))
		assert.Nil(t, inv.BillARInvoiceID)
		assert.Nil(t, inv.PaidAt)
	})

	tests := []struct {
		name   string
		amount decimal.Decimal
		typ    Type
	}{
		{"zero amount", decimal.Zero, TypeService},
		{"negative amount", decimal.NewFromInt(-5), TypeService},
		{"unknown type", decimal.NewFromInt(5), Type("late_fee")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUnbilled(42, 7, uuid.New(), tt.amount, tt.typ)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		allowed  bool
	}{
		{PaymentStatusUnbilled, PaymentStatusAwaitingPayment, true},
		{PaymentStatusAwaitingPayment, PaymentStatusPaid, true},
		{PaymentStatusUnbilled, PaymentStatusPaid, true},
		{PaymentStatusPaid, PaymentStatusAwaitingPayment, false},
		{PaymentStatusPaid, PaymentStatusUnbilled, false},
		{PaymentStatusAwaitingPayment, PaymentStatusUnbilled, false},
		{PaymentStatusPaid, PaymentStatusPaid, false},
		{PaymentStatus("void"), PaymentStatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInvoice_MarkAwaitingPayment(t *testing.T) {
	inv := newTestInvoice(t)

	assert.ErrorIs(t, inv.MarkAwaitingPayment(""), shared.ErrInvalidInput)

	require.NoError(t, inv.MarkAwaitingPayment("00e01AR99"))
	assert.Equal(t, PaymentStatusAwaitingPayment, inv.PaymentStatus)
	assert.Equal(t, "00e01AR99", *inv.BillARInvoiceID)

	err := inv.MarkAwaitingPayment("00e01OTHER")
	assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	assert.Equal(t, "00e01AR99", *inv.BillARInvoiceID)
}

func TestInvoice_MarkPaidIsIdempotent(t *testing.T) {
	inv := newTestInvoice(t)
	require.NoError(t, inv.MarkAwaitingPayment("AR-99"))

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inv.MarkPaid(first)
	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, first, *inv.PaidAt)

	inv.MarkPaid(first.Add(time.Hour))
	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
	assert.Equal(t, first, *inv.PaidAt)

	assert.ErrorIs(t, inv.MarkAwaitingPayment("AR-100"), shared.ErrPreconditionFailed)
	assert.Equal(t, PaymentStatusPaid, inv.PaymentStatus)
}

func TestInvoice_Number(t *testing.T) {
	inv := newTestInvoice(t)
	assert.Equal(t, "WO42-IF-7", inv.Number())

	inv.Type = TypeService
	assert.Equal(t, "WO42-SV-7", inv.Number())
}
