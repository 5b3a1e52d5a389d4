package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/labfix/backend/internal/infrastructure/config"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in db.statement (never in production)
	SlowQueryThresh time.Duration // queries slower than this are flagged on the span
	DBSystem        string
}

// DBTracingConfigFrom derives the tracing settings from telemetry config.
func DBTracingConfigFrom(cfg config.TelemetryConfig) DBTracingConfig {
	thresh := cfg.DBSlowQuery
	if thresh <= 0 {
		thresh = 200 * time.Millisecond
	}
	return DBTracingConfig{
		Enabled:         cfg.DBTraceEnabled,
		LogFullSQL:      cfg.DBLogFullSQL,
		SlowQueryThresh: thresh,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin registers otelgorm plus slow query flagging on a gorm DB.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
	opts   []otelgorm.Option
}

// NewDBTracingPlugin creates a database tracing plugin. Extra otelgorm
// options, such as a test tracer provider, are appended to the defaults.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger, opts ...otelgorm.Option) *DBTracingPlugin {
	return &DBTracingPlugin{
		config: cfg,
		logger: logger,
		opts:   opts,
	}
}

type queryStartKey struct{}

// Register installs the plugin. It is a no-op when tracing is disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	opts = append(opts, p.opts...)

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	for _, op := range []string{"create", "query", "update", "delete", "row", "raw"} {
		if err := p.registerTiming(db, op); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) registerTiming(db *gorm.DB, op string) error {
	cb := db.Callback()
	gormName := "gorm:" + op
	before := "labfix_timing:before_" + op
	after := "labfix_timing:after_" + op

	switch op {
	case "create":
		if err := cb.Create().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Create().After(gormName).Register(after, p.afterQuery)
	case "query":
		if err := cb.Query().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Query().After(gormName).Register(after, p.afterQuery)
	case "update":
		if err := cb.Update().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Update().After(gormName).Register(after, p.afterQuery)
	case "delete":
		if err := cb.Delete().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Delete().After(gormName).Register(after, p.afterQuery)
	case "row":
		if err := cb.Row().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Row().After(gormName).Register(after, p.afterQuery)
	default:
		if err := cb.Raw().Before(gormName).Register(before, markStart); err != nil {
			return err
		}
		return cb.Raw().After(gormName).Register(after, p.afterQuery)
	}
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

// afterQuery annotates the otelgorm span with row counts, errors and the slow
// query flag.
func (p *DBTracingPlugin) afterQuery(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
