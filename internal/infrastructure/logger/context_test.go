package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestFromContextOr(t *testing.T) {
	fallback := zap.NewExample()
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))

	attached := zap.NewNop()
	assert.Same(t, attached, FromContextOr(WithContext(context.Background(), attached), fallback))
}

func TestWithJobIDAndAccount(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	ctx = WithJobID(ctx, "job-1")
	ctx = WithAccount(ctx, "acc-9", "shop-de")

	assert.Equal(t, "job-1", GetJobID(ctx))
	assert.Equal(t, "acc-9", GetAccountID(ctx))

	FromContext(ctx).Info("discovering")
	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "job-1", fields["job_id"])
	assert.Equal(t, "acc-9", fields["account_id"])
	assert.Equal(t, "shop-de", fields["account"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetJobID(ctx))
	assert.Empty(t, GetAccountID(ctx))
}

func TestL_AddsTraceFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Info("no span")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	L(ctx).Info("with span")
	span.End()

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.NotContains(t, logs[0].ContextMap(), "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), logs[1].ContextMap()["trace_id"])
}
