//go:build integration

// Package integration runs the HTTP API against a real PostgreSQL database
// started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm/logger"

	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/infrastructure/migration"
	"github.com/labfix/backend/internal/infrastructure/persistence"
	"github.com/labfix/backend/migrations"
)

var (
	// Shared container for all tests in the package
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated database connection for one test.
type TestDB struct {
	*persistence.Database
	DSN string
	t   *testing.T
}

// NewSharedTestDB returns a connection to the package's PostgreSQL
// container, starting and migrating it on first use. Tests call CleanTables
// when they need an empty ledger.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()
	if sharedContainer == nil {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("labfix_integration"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		runMigrations(t, dsn)
		sharedContainer = container
		sharedContainerDSN = dsn
	}

	gormLog := logger.Default.LogMode(logger.Silent)
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormLog = logger.Default.LogMode(logger.Info)
	}
	db, err := persistence.Open(gormpostgres.Open(sharedContainerDSN), &config.DatabaseConfig{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}, gormLog)
	require.NoError(t, err, "Failed to connect to database")

	tdb := &TestDB{Database: db, DSN: sharedContainerDSN, t: t}
	t.Cleanup(func() { _ = db.Close() })
	return tdb
}

// CleanTables truncates every marketplace table.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tdb.t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// runMigrations applies the embedded schema.
func runMigrations(t *testing.T, dsn string) {
	t.Helper()

	db, err := persistence.Open(gormpostgres.Open(dsn), &config.DatabaseConfig{MaxOpenConns: 1}, logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}
