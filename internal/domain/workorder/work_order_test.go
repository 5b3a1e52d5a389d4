package workorder

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helpers
func boolPtr(b bool) *bool { return &b }

func newTestLab(t *testing.T) *lab.Lab {
	l, err := lab.NewLab("Chem Lab", uuid.New(), lab.Address{City: "Boston"})
	require.NoError(t, err)
	l.ID = 7
	return l
}

func newTestWorkOrder(t *testing.T, l *lab.Lab) *WorkOrder {
	wo, err := New(Actor{ID: l.ManagerID, Role: identity.RoleLab}, l, Details{Title: "Centrifuge rattles"})
	require.NoError(t, err)
	wo.ID = 42
	return wo
}

func verifiedTech(verified *bool) (Actor, *identity.Technician) {
	id := uuid.New()
	return Actor{ID: id, Role: identity.RoleTechnician}, &identity.Technician{ProfileID: id, Verified: verified}
}

// ============================================
// Status Tests
// ============================================

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusOpen, StatusClaimed, true},
		{StatusOpen, StatusCanceled, true},
		{StatusOpen, StatusCompleted, false},
		{StatusClaimed, StatusOpen, true},
		{StatusClaimed, StatusCompleted, true},
		{StatusClaimed, StatusCanceled, true},
		{StatusCompleted, StatusOpen, false},
		{StatusCompleted, StatusClaimed, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusOpen.IsValid())
	assert.True(t, StatusCanceled.IsValid())
	assert.False(t, Status("reopened").IsValid())
	assert.False(t, Status("").IsValid())
}

// ============================================
// Creation Tests
// ============================================

func TestNew(t *testing.T) {
	l := newTestLab(t)

	t.Run("defaults urgency to normal", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		assert.Equal(t, StatusOpen, wo.Status)
		assert.Equal(t, UrgencyNormal, wo.Urgency)
		assert.Equal(t, l.ID, wo.LabID)
		assert.Nil(t, wo.AssignedTo)
	})

	t.Run("rejects missing title", func(t *testing.T) {
		_, err := New(Actor{ID: l.ManagerID, Role: identity.RoleLab}, l, Details{Title: "  "})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects unknown urgency", func(t *testing.T) {
		_, err := New(Actor{ID: l.ManagerID, Role: identity.RoleLab}, l, Details{Title: "x", Urgency: "asap"})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects non manager", func(t *testing.T) {
		_, err := New(Actor{ID: uuid.New(), Role: identity.RoleLab}, l, Details{Title: "x"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

// ============================================
// Transition Tests
// ============================================

func TestWorkOrder_Claim(t *testing.T) {
	l := newTestLab(t)

	t.Run("verified technician claims", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, tech := verifiedTech(boolPtr(true))

		require.NoError(t, wo.Claim(actor, tech))
		assert.Equal(t, StatusClaimed, wo.Status)
		require.NotNil(t, wo.AssignedTo)
		assert.Equal(t, actor.ID, *wo.AssignedTo)
	})

	t.Run("pending technician is refused", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, tech := verifiedTech(nil)

		err := wo.Claim(actor, tech)
		assert.ErrorIs(t, err, ErrTechnicianPending)
		assert.NotErrorIs(t, err, ErrTechnicianRejected)
		assert.ErrorIs(t, err, shared.ErrForbidden)
		assert.Equal(t, StatusOpen, wo.Status)
		assert.Nil(t, wo.AssignedTo)
	})

	t.Run("rejected technician is refused", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, tech := verifiedTech(boolPtr(false))

		err := wo.Claim(actor, tech)
		assert.ErrorIs(t, err, ErrTechnicianRejected)
		assert.NotErrorIs(t, err, ErrTechnicianPending)

		var ft *ForbiddenTransition
		require.True(t, errors.As(err, &ft))
		assert.Equal(t, identity.RoleTechnician, ft.Role)
		assert.Equal(t, StatusOpen, ft.From)
		assert.Equal(t, StatusClaimed, ft.To)
	})

	t.Run("non technician is refused", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		err := wo.Claim(Actor{ID: l.ManagerID, Role: identity.RoleLab}, nil)
		assert.ErrorIs(t, err, ErrNotTechnician)
	})

	t.Run("already claimed cannot be claimed again", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		first, firstTech := verifiedTech(boolPtr(true))
		require.NoError(t, wo.Claim(first, firstTech))

		second, secondTech := verifiedTech(boolPtr(true))
		err := wo.Claim(second, secondTech)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, first.ID, *wo.AssignedTo)
	})
}

func TestWorkOrder_Release(t *testing.T) {
	l := newTestLab(t)
	wo := newTestWorkOrder(t, l)
	actor, tech := verifiedTech(boolPtr(true))
	require.NoError(t, wo.Claim(actor, tech))

	other, _ := verifiedTech(boolPtr(true))
	assert.ErrorIs(t, wo.Release(other), ErrNotAssignee)

	require.NoError(t, wo.Release(actor))
	assert.Equal(t, StatusOpen, wo.Status)
	assert.Nil(t, wo.AssignedTo)
}

func TestWorkOrder_Complete(t *testing.T) {
	l := newTestLab(t)

	t.Run("only from claimed", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, _ := verifiedTech(boolPtr(true))
		assert.ErrorIs(t, wo.Complete(actor), ErrInvalidTransition)
	})

	t.Run("only by assignee", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, tech := verifiedTech(boolPtr(true))
		require.NoError(t, wo.Claim(actor, tech))

		other, _ := verifiedTech(boolPtr(true))
		assert.ErrorIs(t, wo.Complete(other), ErrNotAssignee)
		assert.Equal(t, StatusClaimed, wo.Status)
	})
}

// Technician B claims, completes, then cannot reopen or otherwise mutate.
func TestWorkOrder_TerminalAfterCompletion(t *testing.T) {
	l := newTestLab(t)
	wo := newTestWorkOrder(t, l)
	b, techB := verifiedTech(boolPtr(true))

	require.NoError(t, wo.Claim(b, techB))
	assert.Equal(t, StatusClaimed, wo.Status)
	assert.Equal(t, b.ID, *wo.AssignedTo)

	require.NoError(t, wo.Complete(b))
	assert.Equal(t, StatusCompleted, wo.Status)
	assert.True(t, wo.IsPayable())

	assert.ErrorIs(t, wo.Release(b), ErrTerminalState)
	assert.ErrorIs(t, wo.Complete(b), ErrTerminalState)
	assert.ErrorIs(t, wo.Claim(b, techB), ErrTerminalState)
	assert.ErrorIs(t, wo.Cancel(Actor{ID: l.ManagerID, Role: identity.RoleLab}, l), ErrTerminalState)
	assert.ErrorIs(t, wo.Cancel(Actor{ID: uuid.New(), Role: identity.RoleAdmin}, l), ErrTerminalState)

	assert.Equal(t, StatusCompleted, wo.Status)
	assert.Equal(t, b.ID, *wo.AssignedTo)
}

func TestWorkOrder_Cancel(t *testing.T) {
	l := newTestLab(t)
	manager := Actor{ID: l.ManagerID, Role: identity.RoleLab}

	t.Run("manager cancels open", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		require.NoError(t, wo.Cancel(manager, l))
		assert.Equal(t, StatusCanceled, wo.Status)
	})

	t.Run("manager cancels claimed and clears assignee", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, tech := verifiedTech(boolPtr(true))
		require.NoError(t, wo.Claim(actor, tech))

		require.NoError(t, wo.Cancel(manager, l))
		assert.Equal(t, StatusCanceled, wo.Status)
		assert.Nil(t, wo.AssignedTo)
	})

	t.Run("other users cannot cancel", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		actor, _ := verifiedTech(boolPtr(true))
		assert.ErrorIs(t, wo.Cancel(actor, l), ErrNotLabManager)
		assert.ErrorIs(t, wo.Cancel(Actor{ID: uuid.New(), Role: identity.RoleLab}, l), ErrNotLabManager)
	})

	t.Run("canceled is terminal", func(t *testing.T) {
		wo := newTestWorkOrder(t, l)
		require.NoError(t, wo.Cancel(manager, l))
		actor, tech := verifiedTech(boolPtr(true))
		assert.ErrorIs(t, wo.Claim(actor, tech), ErrTerminalState)
	})
}

func TestWorkOrder_Edit(t *testing.T) {
	l := newTestLab(t)
	manager := Actor{ID: l.ManagerID, Role: identity.RoleLab}
	wo := newTestWorkOrder(t, l)

	require.NoError(t, wo.Edit(manager, l, Details{Title: "Centrifuge still rattles", Urgency: UrgencyHigh}))
	assert.Equal(t, "Centrifuge still rattles", wo.Title)
	assert.Equal(t, UrgencyHigh, wo.Urgency)

	actor, tech := verifiedTech(boolPtr(true))
	require.NoError(t, wo.Claim(actor, tech))
	assert.ErrorIs(t, wo.Edit(manager, l, Details{Title: "x"}), shared.ErrPreconditionFailed)
}

func TestAssigneeInvariant(t *testing.T) {
	l := newTestLab(t)
	manager := Actor{ID: l.ManagerID, Role: identity.RoleLab}
	actor, tech := verifiedTech(boolPtr(true))

	wo := newTestWorkOrder(t, l)
	check := func() {
		assert.Equal(t, wo.Status.RequiresAssignee(), wo.AssignedTo != nil, "status %s", wo.Status)
	}
	check()
	require.NoError(t, wo.Claim(actor, tech))
	check()
	require.NoError(t, wo.Release(actor))
	check()
	require.NoError(t, wo.Claim(actor, tech))
	check()
	require.NoError(t, wo.Cancel(manager, l))
	check()
}

func TestNewComment(t *testing.T) {
	u, err := NewComment(42, uuid.New(), "  replaced the belt ")
	require.NoError(t, err)
	assert.Equal(t, "replaced the belt", u.Body)
	assert.Equal(t, UpdateKindComment, u.Kind)

	_, err = NewComment(42, uuid.New(), "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNewStatusChange(t *testing.T) {
	u := NewStatusChange(42, uuid.New(), StatusOpen, StatusClaimed)
	assert.Equal(t, UpdateKindStatusChange, u.Kind)
	require.NotNil(t, u.FromStatus)
	require.NotNil(t, u.ToStatus)
	assert.Equal(t, StatusOpen, *u.FromStatus)
	assert.Equal(t, StatusClaimed, *u.ToStatus)
}
