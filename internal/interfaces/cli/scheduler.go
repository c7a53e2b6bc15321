package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/channelsync/internal/application/discovery"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/scheduler"
)

func newSchedulerCommand(root *rootOptions) *cobra.Command {
	sched := &cobra.Command{
		Use:   "scheduler",
		Short: "Long-running scheduled passes",
	}
	sched.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the monthly discovery pass until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return runScheduler(ctx, app)
			})
		},
	})
	return sched
}

func runScheduler(ctx context.Context, app *App) error {
	log := logger.FromContextOr(ctx, app.Logger)
	runner := scheduler.RunnerFunc(func(ctx context.Context) error {
		summary, err := app.Orchestrator.Run(ctx, discovery.Options{})
		if err != nil {
			return err
		}
		log.Info("Scheduled discovery finished",
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
		return nil
	})

	trigger, err := scheduler.NewDiscoveryTrigger(scheduler.DiscoveryTriggerConfig{
		Day:           app.Config.Discovery.ScheduleDay,
		Hour:          app.Config.Discovery.ScheduleHour,
		CheckInterval: app.Config.Discovery.CheckInterval,
	}, runner, log)
	if err != nil {
		return err
	}
	if err := trigger.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("Shutting down scheduler")
	return trigger.Stop(context.WithoutCancel(ctx))
}
