package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "labfix-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "labfix", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.True(t, cfg.Billing.MockMode)
		assert.True(t, cfg.Billing.InitialFee.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, 30, cfg.Billing.DueDays)
		assert.Equal(t, "X-Bill-Signature", cfg.Webhook.SignatureHeader)
		assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
		assert.Equal(t, 72*time.Hour, cfg.Webhook.DedupeTTL)
		assert.Equal(t, 15*time.Second, cfg.Mail.Timeout)
		assert.Equal(t, 64, cfg.Mail.MaxPending)
	})

	t.Run("loads values from environment variables with LABFIX prefix", func(t *testing.T) {
		t.Setenv("LABFIX_APP_NAME", "test-app")
		t.Setenv("LABFIX_APP_PORT", "9000")
		t.Setenv("LABFIX_DATABASE_HOST", "testdb.local")
		t.Setenv("LABFIX_DATABASE_PORT", "5433")
		t.Setenv("LABFIX_DATABASE_PASSWORD", "testpass")
		t.Setenv("LABFIX_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("LABFIX_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("LABFIX_REDIS_ENABLED", "true")
		t.Setenv("LABFIX_BILLING_INITIAL_FEE", "75.50")
		t.Setenv("LABFIX_BILLING_DUE_DAYS", "14")
		t.Setenv("LABFIX_BILLING_MOCK_MODE", "false")
		t.Setenv("LABFIX_WEBHOOK_SECRET", "whsec")
		t.Setenv("LABFIX_WEBHOOK_SIGNATURE_HEADER", "X-Signature")
		t.Setenv("LABFIX_MAIL_TIMEOUT", "3s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "75.5", cfg.Billing.InitialFee.String())
		assert.Equal(t, 3*time.Second, cfg.Mail.Timeout)
		assert.Equal(t, 14, cfg.Billing.DueDays)
		assert.False(t, cfg.Billing.MockMode)
		assert.Equal(t, "whsec", cfg.Webhook.Secret)
		assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	})

	t.Run("rejects malformed initial fee", func(t *testing.T) {
		t.Setenv("LABFIX_BILLING_INITIAL_FEE", "fifty")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.initial_fee")
	})

	t.Run("rejects negative initial fee", func(t *testing.T) {
		t.Setenv("LABFIX_BILLING_INITIAL_FEE", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be negative")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("LABFIX_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("LABFIX_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("requires mail host when mail is enabled", func(t *testing.T) {
		t.Setenv("LABFIX_MAIL_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mail.host")
	})

	t.Run("requires bucket when archiving webhooks", func(t *testing.T) {
		t.Setenv("LABFIX_WEBHOOK_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})

	t.Run("rejects out of range sampling ratio", func(t *testing.T) {
		t.Setenv("LABFIX_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("LABFIX_APP_ENV", "production")
		t.Setenv("LABFIX_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("LABFIX_DATABASE_PASSWORD", "secure-password")
		t.Setenv("LABFIX_DATABASE_SSLMODE", "require")
		t.Setenv("LABFIX_WEBHOOK_SECRET", "whsec_live")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.App.IsProduction())
		assert.False(t, cfg.Billing.MockMode)
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LABFIX_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LABFIX_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires webhook secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LABFIX_WEBHOOK_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook.secret is required in production")
	})

	t.Run("rejects billing mock mode in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LABFIX_BILLING_MOCK_MODE", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing.mock_mode must be false")
	})

	t.Run("rejects wildcard CORS in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("LABFIX_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
