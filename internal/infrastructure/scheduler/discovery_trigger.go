// Package scheduler runs periodic sync passes inside a long-lived process.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes one scheduled pass
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

// Run implements Runner
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// DiscoveryTriggerConfig holds configuration for the monthly discovery trigger
type DiscoveryTriggerConfig struct {
	// Day of month (1-28) and hour (0-23) at which the pass runs
	Day  int
	Hour int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultDiscoveryTriggerConfig returns the default schedule: the 1st at 03:00
func DefaultDiscoveryTriggerConfig() DiscoveryTriggerConfig {
	return DiscoveryTriggerConfig{
		Day:           1,
		Hour:          3,
		CheckInterval: time.Hour,
	}
}

// Validate checks the schedule bounds
func (c DiscoveryTriggerConfig) Validate() error {
	if c.Day < 1 || c.Day > 28 {
		return fmt.Errorf("%w: day must be between 1 and 28, got %d", ErrInvalidConfig, c.Day)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour must be between 0 and 23, got %d", ErrInvalidConfig, c.Hour)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// DiscoveryTrigger starts a discovery pass once a month. The check runs every
// CheckInterval, so the pass starts within one interval of the scheduled hour.
type DiscoveryTrigger struct {
	config DiscoveryTriggerConfig
	runner Runner
	logger *zap.Logger
	now    func() time.Time

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	inFlight     bool
	lastRunMonth string
}

// NewDiscoveryTrigger creates a new trigger
func NewDiscoveryTrigger(config DiscoveryTriggerConfig, runner Runner, logger *zap.Logger) (*DiscoveryTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &DiscoveryTrigger{
		config: config,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start starts the check loop
func (d *DiscoveryTrigger) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = true
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.runLoop(ctx)

	d.logger.Info("Discovery trigger started",
		zap.Int("day", d.config.Day),
		zap.Int("hour", d.config.Hour),
		zap.Duration("check_interval", d.config.CheckInterval),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight pass, bounded by ctx
func (d *DiscoveryTrigger) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Discovery trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DiscoveryTrigger) runLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.CheckAndTrigger(ctx)
		}
	}
}

// Due reports whether t falls in the scheduled window of a month not yet run
func (d *DiscoveryTrigger) Due(t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastRunMonth == t.Format("2006-01") {
		return false
	}
	// a missed hour (process down) is caught up later the same month
	if t.Day() > d.config.Day {
		return true
	}
	return t.Day() == d.config.Day && t.Hour() >= d.config.Hour
}

// CheckAndTrigger runs the pass when it is due. It returns true when a pass ran.
func (d *DiscoveryTrigger) CheckAndTrigger(ctx context.Context) bool {
	now := d.now()
	if !d.Due(now) {
		return false
	}

	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return false
	}
	d.inFlight = true
	d.lastRunMonth = now.Format("2006-01")
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight = false
		d.mu.Unlock()
	}()

	d.logger.Info("Triggering scheduled discovery", zap.String("month", now.Format("2006-01")))
	if err := d.runner.Run(ctx); err != nil {
		d.logger.Error("Scheduled discovery failed", zap.Error(err))
	}
	return true
}
