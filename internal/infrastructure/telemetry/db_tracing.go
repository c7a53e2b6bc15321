package telemetry

import (
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds database tracing configuration
type DBTracingConfig struct {
	// DBSystem names the database in span attributes (postgresql, sqlite)
	DBSystem string
	// IncludeVariables records bound query parameters. Leave off outside development.
	IncludeVariables bool
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// RegisterDBTracing installs the otelgorm plugin on db so every statement
// becomes a child span of the job or account span that issued it.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	// annotate after gorm ran the statement, before otelgorm ends the span
	cb := db.Callback()
	for _, register := range []func() error{
		func() error {
			return cb.Create().After("gorm:create").Before("otel:after_create").Register("channelsync:annotate_create", annotateStatement)
		},
		func() error {
			return cb.Query().After("gorm:query").Before("otel:after_query").Register("channelsync:annotate_query", annotateStatement)
		},
		func() error {
			return cb.Update().After("gorm:update").Before("otel:after_update").Register("channelsync:annotate_update", annotateStatement)
		},
		func() error {
			return cb.Delete().After("gorm:delete").Before("otel:after_delete").Register("channelsync:annotate_delete", annotateStatement)
		},
		func() error {
			return cb.Row().After("gorm:row").Before("otel:after_row").Register("channelsync:annotate_row", annotateStatement)
		},
		func() error {
			return cb.Raw().After("gorm:raw").Before("otel:after_raw").Register("channelsync:annotate_raw", annotateStatement)
		},
	} {
		if err := register(); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("include_variables", cfg.IncludeVariables),
	)
	return nil
}

// annotateStatement adds the table and affected rows to the statement span.
// Not-found lookups are expected and stay unmarked.
func annotateStatement(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}
}
