package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/email"
	"github.com/ErlanBelekov/birthday-campaign/internal/lock"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/ErlanBelekov/birthday-campaign/internal/repository"
	"github.com/ErlanBelekov/birthday-campaign/internal/requestid"
	"github.com/google/uuid"
)

// Issuer hands out a user's birthday discount code.
type Issuer interface {
	Issue(ctx context.Context, userID string) (string, error)
}

// Gate tracks where each user is in the birthday cycle.
type Gate interface {
	ShouldNotify(u *domain.User) bool
	MarkCompleted(ctx context.Context, userID string) error
	ResetIfWindowClosed(ctx context.Context, u *domain.User, today time.Time) (bool, error)
}

type Config struct {
	WindowDays   int
	Workers      int
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	LockTTL      time.Duration
	Brand        string
}

// RunReport summarises one campaign run.
type RunReport struct {
	RunID       string
	Locked      bool // another instance already ran this period
	Candidates  int
	Notified    int
	Skipped     int
	NotifyFails int
	Reset       int
	ResetFails  int
}

// Campaign is the daily orchestrator: a notify pass followed by a reset pass.
type Campaign struct {
	users    repository.UserRepository
	products repository.ProductRepository
	ledger   Issuer
	gate     Gate
	sender   email.Sender
	locker   lock.Locker
	cfg      Config
	logger   *slog.Logger
}

func NewCampaign(
	users repository.UserRepository,
	products repository.ProductRepository,
	ledger Issuer,
	gate Gate,
	sender email.Sender,
	locker lock.Locker,
	cfg Config,
	logger *slog.Logger,
) *Campaign {
	cfg.Workers = max(cfg.Workers, 1)
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 24 * time.Hour
	}
	return &Campaign{
		users:    users,
		products: products,
		ledger:   ledger,
		gate:     gate,
		sender:   sender,
		locker:   locker,
		cfg:      cfg,
		logger:   logger.With("component", "campaign"),
	}
}

// Run executes the campaign for today. Per-user failures are counted in the
// report; only batch-level failures are returned as errors.
func (c *Campaign) Run(ctx context.Context, today time.Time) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString()}
	ctx = requestid.WithRunID(ctx, report.RunID)
	startedAt := time.Now()

	lease, err := c.locker.Acquire(ctx, lock.RunKey(today), c.cfg.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		report.Locked = true
		metrics.CampaignRunsTotal.WithLabelValues("skipped").Inc()
		c.logger.InfoContext(ctx, "campaign already ran for this period", "day", today.Format(time.DateOnly))
		return report, nil
	}
	if err != nil {
		metrics.CampaignRunsTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("acquire run lock: %w", err)
	}

	c.logger.InfoContext(ctx, "campaign run started",
		"day", today.Format(time.DateOnly),
		"window_days", c.cfg.WindowDays,
		"workers", c.cfg.Workers,
	)

	if err := c.notifyPass(ctx, today, &report); err != nil {
		return report, c.abort(ctx, lease, startedAt, err)
	}
	if err := c.resetPass(ctx, today, &report); err != nil {
		return report, c.abort(ctx, lease, startedAt, err)
	}

	// The lease stays until its TTL so no other instance reruns this period.
	metrics.CampaignRunsTotal.WithLabelValues("success").Inc()
	metrics.CampaignRunDuration.WithLabelValues("success").Observe(time.Since(startedAt).Seconds())
	c.logger.InfoContext(ctx, "campaign run finished",
		"candidates", report.Candidates,
		"notified", report.Notified,
		"skipped", report.Skipped,
		"notify_failed", report.NotifyFails,
		"reset", report.Reset,
		"reset_failed", report.ResetFails,
		"duration", time.Since(startedAt),
	)
	return report, nil
}

// abort releases the run lock so a later trigger can retry the period.
func (c *Campaign) abort(ctx context.Context, lease lock.Lease, startedAt time.Time, cause error) error {
	metrics.CampaignRunsTotal.WithLabelValues("failed").Inc()
	metrics.CampaignRunDuration.WithLabelValues("failed").Observe(time.Since(startedAt).Seconds())
	c.logger.ErrorContext(ctx, "campaign run aborted", "error", cause, "duration", time.Since(startedAt))

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StoreTimeout)
	defer cancel()
	if err := lease.Release(releaseCtx); err != nil {
		c.logger.ErrorContext(ctx, "release run lock", "error", err)
	}
	return cause
}
