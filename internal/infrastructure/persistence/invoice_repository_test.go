package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnbilled(t *testing.T, workOrderID, labID int64, typ invoice.Type, amount string) *invoice.Invoice {
	t.Helper()
	inv, err := invoice.NewUnbilled(workOrderID, labID, uuid.New(), decimal.RequireFromString(amount), typ)
	require.NoError(t, err)
	return inv
}

func TestInvoiceRepository_CreateUnbilled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	l := seedLab(t, db)
	wo := seedWorkOrder(t, db, l)

	t.Run("assigns id and reads back", func(t *testing.T) {
		inv := newUnbilled(t, wo.ID, l.ID, invoice.TypeInitialFee, "50.00")
		require.NoError(t, repo.CreateUnbilled(ctx, inv))
		assert.NotZero(t, inv.ID)

		found, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.PaymentStatusUnbilled, found.PaymentStatus)
		assert.True(t, found.TotalAmount.Equal(decimal.NewFromInt(50)))
		assert.Nil(t, found.BillARInvoiceID)
	})

	t.Run("rejects a second invoice of the same type", func(t *testing.T) {
		dup := newUnbilled(t, wo.ID, l.ID, invoice.TypeInitialFee, "50.00")
		err := repo.CreateUnbilled(ctx, dup)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	})

	t.Run("allows a different type on the same work order", func(t *testing.T) {
		svc := newUnbilled(t, wo.ID, l.ID, invoice.TypeService, "180.25")
		require.NoError(t, repo.CreateUnbilled(ctx, svc))

		list, err := repo.ListByWorkOrder(ctx, wo.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, invoice.TypeInitialFee, list[0].Type)
		assert.Equal(t, invoice.TypeService, list[1].Type)

		found, err := repo.FindByWorkOrderAndType(ctx, wo.ID, invoice.TypeService)
		require.NoError(t, err)
		assert.Equal(t, svc.ID, found.ID)
	})

	t.Run("rejects non-unbilled input", func(t *testing.T) {
		inv := newUnbilled(t, wo.ID, l.ID, invoice.TypeService, "1")
		inv.PaymentStatus = invoice.PaymentStatusPaid
		err := repo.CreateUnbilled(ctx, inv)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestInvoiceRepository_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByExternalID(ctx, "00eMISSING")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByWorkOrderAndType(ctx, 1, invoice.TypeService)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.MarkPaid(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = repo.MarkAwaitingPayment(ctx, 999, "00eX")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceRepository_MarkAwaitingPayment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	l := seedLab(t, db)
	wo := seedWorkOrder(t, db, l)

	inv := newUnbilled(t, wo.ID, l.ID, invoice.TypeService, "200")
	require.NoError(t, repo.CreateUnbilled(ctx, inv))

	require.NoError(t, repo.MarkAwaitingPayment(ctx, inv.ID, "00eAR99"))

	found, err := repo.FindByExternalID(ctx, "00eAR99")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, found.ID)
	assert.Equal(t, invoice.PaymentStatusAwaitingPayment, found.PaymentStatus)

	t.Run("second send is a precondition failure", func(t *testing.T) {
		err := repo.MarkAwaitingPayment(ctx, inv.ID, "00eAR100")
		assert.ErrorIs(t, err, shared.ErrPreconditionFailed)

		found, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "00eAR99", *found.BillARInvoiceID)
	})

	t.Run("external id is unique across invoices", func(t *testing.T) {
		other := newUnbilled(t, seedWorkOrder(t, db, l).ID, l.ID, invoice.TypeService, "10")
		require.NoError(t, repo.CreateUnbilled(ctx, other))
		err := repo.MarkAwaitingPayment(ctx, other.ID, "00eAR99")
		assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	})

	t.Run("empty external id is invalid", func(t *testing.T) {
		err := repo.MarkAwaitingPayment(ctx, inv.ID, "")
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestInvoiceRepository_MarkPaid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	l := seedLab(t, db)
	wo := seedWorkOrder(t, db, l)

	t.Run("paid is terminal and idempotent", func(t *testing.T) {
		inv := newUnbilled(t, wo.ID, l.ID, invoice.TypeInitialFee, "50")
		require.NoError(t, repo.CreateUnbilled(ctx, inv))
		require.NoError(t, repo.MarkAwaitingPayment(ctx, inv.ID, "00eIF1"))

		changed, err := repo.MarkPaid(ctx, inv.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		first, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, first.PaidAt)

		changed, err = repo.MarkPaid(ctx, inv.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		second, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, invoice.PaymentStatusPaid, second.PaymentStatus)
		assert.True(t, first.PaidAt.Equal(*second.PaidAt))

		err = repo.MarkAwaitingPayment(ctx, inv.ID, "00eIF2")
		assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	})

	t.Run("concurrent deliveries transition exactly once", func(t *testing.T) {
		inv := newUnbilled(t, wo.ID, l.ID, invoice.TypeService, "75")
		require.NoError(t, repo.CreateUnbilled(ctx, inv))
		require.NoError(t, repo.MarkAwaitingPayment(ctx, inv.ID, "00eSV1"))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				changed, err := repo.MarkPaid(ctx, inv.ID)
				assert.NoError(t, err)
				if changed {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
