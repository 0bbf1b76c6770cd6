package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/robfig/cron/v3"
)

type Runner interface {
	Run(ctx context.Context, today time.Time) (RunReport, error)
}

// Trigger fires the campaign on a cron schedule in a fixed time zone.
type Trigger struct {
	runner     Runner
	spec       string
	loc        *time.Location
	runOnStart bool
	logger     *slog.Logger
	now        func() time.Time
}

func NewTrigger(runner Runner, spec string, loc *time.Location, runOnStart bool, logger *slog.Logger) *Trigger {
	if loc == nil {
		loc = time.UTC
	}
	return &Trigger{
		runner:     runner,
		spec:       spec,
		loc:        loc,
		runOnStart: runOnStart,
		logger:     logger.With("component", "trigger"),
		now:        time.Now,
	}
}

// Start blocks until ctx is cancelled, then waits for an in-flight run.
func (t *Trigger) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(t.logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(t.loc),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := c.AddFunc(t.spec, func() { t.fire(ctx) }); err != nil {
		return fmt.Errorf("register campaign schedule %q: %w", t.spec, err)
	}

	metrics.SchedulerStartTime.SetToCurrentTime()
	c.Start()
	t.logger.Info("trigger started", "schedule", t.spec, "timezone", t.loc.String())

	if t.runOnStart {
		t.fire(ctx)
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	t.logger.Info("trigger shut down")
	return nil
}

func (t *Trigger) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	today := t.now().In(t.loc)
	if _, err := t.runner.Run(ctx, today); err != nil {
		t.logger.Error("campaign run failed", "error", err)
	}
}
