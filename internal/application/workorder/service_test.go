package workorder

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/application/payment"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/invoice"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/tests/testutil"
)

type MockInvoicer struct {
	mock.Mock
}

func (m *MockInvoicer) CreateInitialFeeInvoice(ctx context.Context, workOrderID int64) (*payment.InvoiceResult, error) {
	args := m.Called(ctx, workOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InvoiceResult), args.Error(1)
}

type fixture struct {
	*testutil.Marketplace
	service *Service
}

func newFixture(t *testing.T, invoicer InitialFeeInvoicer) *fixture {
	t.Helper()
	m := testutil.NewMarketplace(t, "mgr@x.com")
	return &fixture{
		Marketplace: m,
		service: NewService(ServiceConfig{
			WorkOrders:  m.WorkOrders,
			Updates:     m.Updates,
			Labs:        m.Labs,
			Technicians: m.Technicians,
			Invoices:    m.Invoices,
			Invoicer:    invoicer,
			Logger:      zap.NewNop(),
		}),
	}
}

func techActor(tech *identity.Technician) workorder.Actor {
	return workorder.Actor{ID: tech.ProfileID, Role: identity.RoleTechnician}
}

func TestCreate(t *testing.T) {
	details := workorder.Details{Title: "  Autoclave door seal  ", Equipment: "Autoclave"}

	t.Run("bills the initial fee", func(t *testing.T) {
		invoicer := &MockInvoicer{}
		f := newFixture(t, invoicer)
		invoicer.On("CreateInitialFeeInvoice", mock.Anything, mock.AnythingOfType("int64")).
			Return(&payment.InvoiceResult{InvoiceID: 1, ARInvoiceID: "00e01AR"}, nil).Once()

		result, err := f.service.Create(context.Background(), f.ManagerActor(), f.Lab.ID, details)
		require.NoError(t, err)
		assert.Equal(t, "Autoclave door seal", result.WorkOrder.Title)
		assert.Equal(t, workorder.StatusOpen, result.WorkOrder.Status)
		assert.Equal(t, workorder.UrgencyNormal, result.WorkOrder.Urgency)
		require.NotNil(t, result.InitialFee)
		assert.Equal(t, "00e01AR", result.InitialFee.ARInvoiceID)
		invoicer.AssertExpectations(t)
	})

	t.Run("keeps the work order when billing fails", func(t *testing.T) {
		invoicer := &MockInvoicer{}
		f := newFixture(t, invoicer)
		invoicer.On("CreateInitialFeeInvoice", mock.Anything, mock.Anything).
			Return(nil, shared.ProviderError(errors.New("503"), "create AR invoice")).Once()

		result, err := f.service.Create(context.Background(), f.ManagerActor(), f.Lab.ID, details)
		require.NoError(t, err)
		assert.Nil(t, result.InitialFee)
		assert.Contains(t, result.InitialFeeError, "503")

		stored, err := f.WorkOrders.FindByID(context.Background(), result.WorkOrder.ID)
		require.NoError(t, err)
		assert.Equal(t, workorder.StatusOpen, stored.Status)
	})

	t.Run("only the lab manager", func(t *testing.T) {
		f := newFixture(t, nil)
		_, tech := f.SeedTechnician(t, "bo", testutil.Bool(true))

		_, err := f.service.Create(context.Background(), techActor(tech), f.Lab.ID, details)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("validates input", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.service.Create(context.Background(), f.ManagerActor(), f.Lab.ID, workorder.Details{Title: " "})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = f.service.Create(context.Background(), f.ManagerActor(), 0, details)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = f.service.Create(context.Background(), f.ManagerActor(), 999, details)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestLifecycle_TechnicianBClaimsCompletesCannotReopen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, techB := f.SeedTechnician(t, "b", testutil.Bool(true))
	wo := f.SeedWorkOrder(t, 0)
	b := techActor(techB)

	claimed, err := f.service.Claim(ctx, b, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.StatusClaimed, claimed.Status)
	require.NotNil(t, claimed.AssignedTo)
	assert.Equal(t, techB.ProfileID, *claimed.AssignedTo)

	completed, err := f.service.Complete(ctx, b, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.StatusCompleted, completed.Status)

	_, err = f.service.Release(ctx, b, wo.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, workorder.ErrTerminalState)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	// No actor can move a completed work order.
	_, err = f.service.Cancel(ctx, f.ManagerActor(), wo.ID)
	assert.ErrorIs(t, err, workorder.ErrTerminalState)
	_, err = f.service.Claim(ctx, b, wo.ID)
	assert.ErrorIs(t, err, workorder.ErrTerminalState)

	stored, err := f.WorkOrders.FindByID(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.StatusCompleted, stored.Status)

	updates, err := f.service.ListUpdates(ctx, f.ManagerActor(), wo.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, workorder.UpdateKindStatusChange, updates[0].Kind)
	assert.Equal(t, workorder.StatusClaimed, *updates[0].ToStatus)
	assert.Equal(t, workorder.StatusCompleted, *updates[1].ToStatus)
}

func TestClaim_VerificationGuard(t *testing.T) {
	tests := []struct {
		name     string
		verified *bool
		want     error
	}{
		{"pending", nil, workorder.ErrTechnicianPending},
		{"rejected", testutil.Bool(false), workorder.ErrTechnicianRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, tech := f.SeedTechnician(t, "c", tt.verified)
			wo := f.SeedWorkOrder(t, 0)

			_, err := f.service.Claim(context.Background(), techActor(tech), wo.ID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ft *workorder.ForbiddenTransition
			require.ErrorAs(t, err, &ft)
			assert.Equal(t, workorder.StatusOpen, ft.From)
			assert.Equal(t, workorder.StatusClaimed, ft.To)
		})
	}

	t.Run("lab staff cannot claim", func(t *testing.T) {
		f := newFixture(t, nil)
		wo := f.SeedWorkOrder(t, 0)

		_, err := f.service.Claim(context.Background(), f.ManagerActor(), wo.ID)
		assert.ErrorIs(t, err, workorder.ErrNotTechnician)
	})
}

// staleRepository serves a snapshot taken before another writer moved the
// work order.
type staleRepository struct {
	workorder.Repository
	snapshot *workorder.WorkOrder
}

func (r *staleRepository) FindByID(context.Context, int64) (*workorder.WorkOrder, error) {
	cp := *r.snapshot
	return &cp, nil
}

func TestClaim_ConcurrentClaimLoses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, first := f.SeedTechnician(t, "first", testutil.Bool(true))
	_, second := f.SeedTechnician(t, "second", testutil.Bool(true))
	wo := f.SeedWorkOrder(t, 0)
	snapshot := *wo

	_, err := f.service.Claim(ctx, techActor(first), wo.ID)
	require.NoError(t, err)

	f.service.workOrders = &staleRepository{Repository: f.WorkOrders, snapshot: &snapshot}
	_, err = f.service.Claim(ctx, techActor(second), wo.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.ErrorIs(t, err, workorder.ErrConcurrentModification)

	stored, err := f.WorkOrders.FindByID(ctx, wo.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAssignedTo(first.ProfileID))
}

func TestReleaseAndCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, tech := f.SeedTechnician(t, "d", testutil.Bool(true))
	_, other := f.SeedTechnician(t, "e", testutil.Bool(true))
	wo := f.SeedWorkOrder(t, 0)

	_, err := f.service.Claim(ctx, techActor(tech), wo.ID)
	require.NoError(t, err)

	_, err = f.service.Release(ctx, techActor(other), wo.ID)
	assert.ErrorIs(t, err, workorder.ErrNotAssignee)
	_, err = f.service.Complete(ctx, techActor(other), wo.ID)
	assert.ErrorIs(t, err, workorder.ErrNotAssignee)

	released, err := f.service.Release(ctx, techActor(tech), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.StatusOpen, released.Status)
	assert.Nil(t, released.AssignedTo)

	_, err = f.service.Cancel(ctx, techActor(tech), wo.ID)
	assert.ErrorIs(t, err, workorder.ErrNotLabManager)

	canceled, err := f.service.Cancel(ctx, f.ManagerActor(), wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.StatusCanceled, canceled.Status)
}

func TestEdit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wo := f.SeedWorkOrder(t, 0)

	edited, err := f.service.Edit(ctx, f.ManagerActor(), wo.ID, workorder.Details{Title: "New title", Urgency: workorder.UrgencyCritical})
	require.NoError(t, err)
	assert.Equal(t, "New title", edited.Title)

	stored, err := f.WorkOrders.FindByID(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, workorder.UrgencyCritical, stored.Urgency)

	_, err = f.service.Edit(ctx, testutil.AdminActor(), wo.ID, workorder.Details{Title: "x"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, tech := f.SeedTechnician(t, "g", testutil.Bool(true))
	_, err = f.service.Claim(ctx, techActor(tech), wo.ID)
	require.NoError(t, err)
	_, err = f.service.Edit(ctx, f.ManagerActor(), wo.ID, workorder.Details{Title: "late"})
	assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestGetAndList_Visibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, tech := f.SeedTechnician(t, "h", testutil.Bool(true))
	open := f.SeedWorkOrder(t, 0)
	mine := f.SeedWorkOrder(t, 0)
	_, err := f.service.Claim(ctx, techActor(tech), mine.ID)
	require.NoError(t, err)

	_, err = f.service.Get(ctx, techActor(tech), open.ID)
	assert.NoError(t, err)

	outsider := f.SeedProfile(t, identity.RoleLab, "Other Lab", "other@lab.test")
	_, err = f.service.Get(ctx, workorder.Actor{ID: outsider.ID, Role: identity.RoleLab}, open.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	pool, err := f.service.List(ctx, techActor(tech), workorder.Filter{})
	require.NoError(t, err)
	require.Len(t, pool.Items, 1)
	assert.Equal(t, open.ID, pool.Items[0].ID)

	assigned, err := f.service.List(ctx, techActor(tech), workorder.Filter{AssignedTo: &tech.ProfileID})
	require.NoError(t, err)
	require.Len(t, assigned.Items, 1)
	assert.Equal(t, mine.ID, assigned.Items[0].ID)

	labID := f.Lab.ID
	all, err := f.service.List(ctx, f.ManagerActor(), workorder.Filter{LabID: &labID, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	assert.Equal(t, maxPageSize, all.PageSize)

	_, err = f.service.List(ctx, f.ManagerActor(), workorder.Filter{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	bad := workorder.Status("paused")
	_, err = f.service.List(ctx, testutil.AdminActor(), workorder.Filter{Status: &bad})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAddComment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, tech := f.SeedTechnician(t, "i", testutil.Bool(true))
	wo := f.SeedWorkOrder(t, 0)

	c, err := f.service.AddComment(ctx, f.ManagerActor(), wo.ID, "Rotor makes a grinding noise")
	require.NoError(t, err)
	assert.Equal(t, workorder.UpdateKindComment, c.Kind)

	_, err = f.service.AddComment(ctx, techActor(tech), wo.ID, "Can I see it Tuesday?")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.service.AddComment(ctx, f.ManagerActor(), wo.ID, "   ")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	updates, err := f.service.ListUpdates(ctx, testutil.AdminActor(), wo.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 1)
}

func TestRequestServicePayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, tech := f.SeedTechnician(t, "j", testutil.Bool(true))
	wo := f.SeedCompletedWorkOrder(t, tech)

	inv, err := f.service.RequestServicePayment(ctx, techActor(tech), wo.ID, decimal.RequireFromString("249.999"))
	require.NoError(t, err)
	assert.Equal(t, invoice.TypeService, inv.Type)
	assert.Equal(t, invoice.PaymentStatusUnbilled, inv.PaymentStatus)
	assert.Equal(t, "250.00", inv.TotalAmount.StringFixed(2))

	_, err = f.service.RequestServicePayment(ctx, techActor(tech), wo.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, shared.ErrPreconditionFailed)

	_, err = f.service.RequestServicePayment(ctx, f.ManagerActor(), wo.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, shared.ErrForbidden)

	open := f.SeedWorkOrder(t, 0)
	_, err = f.service.Claim(ctx, techActor(tech), open.ID)
	require.NoError(t, err)
	_, err = f.service.RequestServicePayment(ctx, techActor(tech), open.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, shared.ErrPreconditionFailed)
	_, err = f.service.RequestServicePayment(ctx, techActor(tech), wo.ID, decimal.Zero)
	assert.Error(t, err)
}
