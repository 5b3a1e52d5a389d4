package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/persistence"
)

// Marketplace is a seeded lab with its manager, plus the repositories over
// the same database.
type Marketplace struct {
	DB          *gorm.DB
	Lab         *lab.Lab
	Manager     *identity.Profile
	Labs        *persistence.GormLabRepository
	Profiles    *persistence.GormProfileRepository
	Technicians *persistence.GormTechnicianRepository
	WorkOrders  *persistence.GormWorkOrderRepository
	Updates     *persistence.GormWorkOrderUpdateRepository
	Invoices    *persistence.GormInvoiceRepository
}

// NewMarketplace seeds a lab whose manager has email managerEmail.
// An empty email seeds a manager without one.
func NewMarketplace(t *testing.T, managerEmail string) *Marketplace {
	t.Helper()
	db := NewSQLiteDB(t)
	m := &Marketplace{
		DB:          db,
		Labs:        persistence.NewGormLabRepository(db),
		Profiles:    persistence.NewGormProfileRepository(db),
		Technicians: persistence.NewGormTechnicianRepository(db),
		WorkOrders:  persistence.NewGormWorkOrderRepository(db),
		Updates:     persistence.NewGormWorkOrderUpdateRepository(db),
		Invoices:    persistence.NewGormInvoiceRepository(db),
	}
	m.Manager = m.SeedProfile(t, identity.RoleLab, "Dana Manager", managerEmail)

	l, err := lab.NewLab("Ocean Genomics", m.Manager.ID, lab.Address{City: "Woods Hole", State: "MA"})
	require.NoError(t, err)
	require.NoError(t, m.Labs.Save(context.Background(), l))
	m.Lab = l
	return m
}

// ManagerActor returns the lab manager as an actor.
func (m *Marketplace) ManagerActor() workorder.Actor {
	return workorder.Actor{ID: m.Manager.ID, Role: identity.RoleLab}
}

// AdminActor returns a fresh admin actor.
func AdminActor() workorder.Actor {
	return workorder.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
}

// SeedProfile stores a profile with a random id.
func (m *Marketplace) SeedProfile(t *testing.T, role identity.Role, name, email string) *identity.Profile {
	t.Helper()
	p, err := identity.NewProfile(uuid.New(), role, name, email)
	require.NoError(t, err)
	require.NoError(t, m.Profiles.Save(context.Background(), p))
	return p
}

// SeedTechnician stores a technician profile with the given verification
// flag: true verified, false rejected, nil pending.
func (m *Marketplace) SeedTechnician(t *testing.T, name string, verified *bool) (*identity.Profile, *identity.Technician) {
	t.Helper()
	p := m.SeedProfile(t, identity.RoleTechnician, name, name+"@tech.test")
	tech := &identity.Technician{ProfileID: p.ID, Verified: verified}
	require.NoError(t, m.Technicians.Save(context.Background(), tech))
	return p, tech
}

// SeedWorkOrder stores an open work order for the lab. A positive id is
// used as the primary key.
func (m *Marketplace) SeedWorkOrder(t *testing.T, id int64) *workorder.WorkOrder {
	t.Helper()
	wo, err := workorder.New(m.ManagerActor(), m.Lab, workorder.Details{
		Title:   "Centrifuge rotor imbalance",
		Urgency: workorder.UrgencyHigh,
	})
	require.NoError(t, err)
	if id > 0 {
		wo.ID = id
	}
	require.NoError(t, m.WorkOrders.Create(context.Background(), wo))
	return wo
}

// SeedCompletedWorkOrder stores a work order claimed and completed by tech.
func (m *Marketplace) SeedCompletedWorkOrder(t *testing.T, tech *identity.Technician) *workorder.WorkOrder {
	t.Helper()
	ctx := context.Background()
	wo := m.SeedWorkOrder(t, 0)
	actor := workorder.Actor{ID: tech.ProfileID, Role: identity.RoleTechnician}

	require.NoError(t, wo.Claim(actor, tech))
	require.NoError(t, m.WorkOrders.Update(ctx, wo, workorder.StatusOpen))
	require.NoError(t, wo.Complete(actor))
	require.NoError(t, m.WorkOrders.Update(ctx, wo, workorder.StatusClaimed))
	return wo
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
