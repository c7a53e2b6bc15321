package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/erp/channelsync/internal/infrastructure/persistence/models"
	"github.com/erp/channelsync/internal/infrastructure/persistence/testutil"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
)

func TestRegisterDBTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	db := testutil.NewSQLiteDB(t)
	require.NoError(t, telemetry.RegisterDBTracing(db, telemetry.DBTracingConfig{
		DBSystem:       "sqlite",
		TracerProvider: tp,
	}, zaptest.NewLogger(t)))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "discovery.account")
	var accounts []models.ChannelAccountModel
	require.NoError(t, db.WithContext(ctx).Find(&accounts).Error)
	parent.End()

	spans := recorder.Ended()
	require.GreaterOrEqual(t, len(spans), 2)
	var child sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() != "discovery.account" {
			child = s
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
}
