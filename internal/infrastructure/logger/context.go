package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	jobIDKey   contextKey = "job_id"
	accountKey contextKey = "account"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// FromContextOr retrieves the logger from context, or fallback when none is attached
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// WithJobID tags the context and its logger with the id of the running job
func WithJobID(ctx context.Context, jobID string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("job_id", jobID)))
}

// WithAccount tags the context and its logger with the channel account being processed
func WithAccount(ctx context.Context, accountID, accountName string) context.Context {
	ctx = context.WithValue(ctx, accountKey, accountID)
	return WithContext(ctx, FromContext(ctx).With(
		zap.String("account_id", accountID),
		zap.String("account", accountName),
	))
}

// GetJobID retrieves the job id from context
func GetJobID(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// GetAccountID retrieves the account id from context
func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(accountKey).(string); ok {
		return id
	}
	return ""
}

// L returns the context logger with trace_id and span_id of the active span
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
