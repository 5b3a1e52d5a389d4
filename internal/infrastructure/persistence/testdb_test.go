package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
	"github.com/labfix/backend/internal/domain/workorder"
	"github.com/labfix/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an in-memory SQLite database with every table migrated.
// The pool is pinned to one connection because each :memory: connection is
// its own database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedLab(t *testing.T, db *gorm.DB) *lab.Lab {
	t.Helper()
	l, err := lab.NewLab("Ocean Genomics", uuid.New(), lab.Address{City: "Woods Hole", State: "MA"})
	require.NoError(t, err)
	require.NoError(t, NewGormLabRepository(db).Save(context.Background(), l))
	return l
}

func seedTechnician(t *testing.T, db *gorm.DB) *identity.Technician {
	t.Helper()
	verified := true
	tech := &identity.Technician{ProfileID: uuid.New(), Verified: &verified}
	require.NoError(t, NewGormTechnicianRepository(db).Save(context.Background(), tech))
	return tech
}

func seedWorkOrder(t *testing.T, db *gorm.DB, l *lab.Lab) *workorder.WorkOrder {
	t.Helper()
	wo, err := workorder.New(
		workorder.Actor{ID: l.ManagerID, Role: identity.RoleLab},
		l,
		workorder.Details{Title: "Centrifuge rotor imbalance", Urgency: workorder.UrgencyHigh},
	)
	require.NoError(t, err)
	require.NoError(t, NewGormWorkOrderRepository(db).Create(context.Background(), wo))
	return wo
}
