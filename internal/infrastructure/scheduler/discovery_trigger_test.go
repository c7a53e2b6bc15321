package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTrigger(t *testing.T, runs *int32, err error) *DiscoveryTrigger {
	t.Helper()
	trigger, e := NewDiscoveryTrigger(DiscoveryTriggerConfig{Day: 1, Hour: 3, CheckInterval: time.Hour},
		RunnerFunc(func(ctx context.Context) error {
			atomic.AddInt32(runs, 1)
			return err
		}), zap.NewNop())
	require.NoError(t, e)
	return trigger
}

func TestDiscoveryTriggerConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultDiscoveryTriggerConfig().Validate())

	bad := []DiscoveryTriggerConfig{
		{Day: 0, Hour: 3, CheckInterval: time.Hour},
		{Day: 29, Hour: 3, CheckInterval: time.Hour},
		{Day: 1, Hour: 24, CheckInterval: time.Hour},
		{Day: 1, Hour: 3, CheckInterval: 0},
	}
	for _, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}
}

func TestDiscoveryTrigger_Due(t *testing.T) {
	var runs int32
	trigger := newTestTrigger(t, &runs, nil)

	tests := []struct {
		name string
		at   time.Time
		due  bool
	}{
		{"before hour on day", time.Date(2026, 5, 1, 2, 59, 0, 0, time.UTC), false},
		{"at hour", time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC), true},
		{"later in month catches up", time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, trigger.Due(tt.at))
		})
	}
}

func TestDiscoveryTrigger_RunsOncePerMonth(t *testing.T) {
	var runs int32
	trigger := newTestTrigger(t, &runs, errors.New("one account failed"))
	ctx := context.Background()

	clock := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	trigger.now = func() time.Time { return clock }

	assert.True(t, trigger.CheckAndTrigger(ctx))
	assert.False(t, trigger.CheckAndTrigger(ctx), "same month must not run again")

	clock = time.Date(2026, 6, 1, 4, 0, 0, 0, time.UTC)
	assert.True(t, trigger.CheckAndTrigger(ctx))
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestDiscoveryTrigger_StartStop(t *testing.T) {
	var runs int32
	trigger := newTestTrigger(t, &runs, nil)

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, trigger.Stop(ctx))
	assert.NoError(t, trigger.Stop(ctx))
}
