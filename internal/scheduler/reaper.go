package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
)

// resetPass returns every notified user whose window has closed to idle,
// expiring their unredeemed code on the way.
func (c *Campaign) resetPass(ctx context.Context, today time.Time, report *RunReport) error {
	listCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	users, err := c.users.ListNotified(listCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list notified users: %w", err)
	}

	var reset, failed atomic.Int64
	err = c.forEachUser(ctx, users, func(ctx context.Context, u *domain.User) {
		resetCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
		defer cancel()

		ok, err := c.gate.ResetIfWindowClosed(resetCtx, u, today)
		switch {
		case err != nil:
			failed.Add(1)
			metrics.CampaignUsersTotal.WithLabelValues("reset", "failed").Inc()
			c.logger.ErrorContext(ctx, "reset user", "user_id", u.ID, "error", err)
		case ok:
			reset.Add(1)
			metrics.CampaignUsersTotal.WithLabelValues("reset", "reset").Inc()
		default:
			metrics.CampaignUsersTotal.WithLabelValues("reset", "kept").Inc()
		}
	})

	report.Reset += int(reset.Load())
	report.ResetFails += int(failed.Load())
	if reset.Load() > 0 || failed.Load() > 0 {
		c.logger.InfoContext(ctx, "reset pass finished", "reset", reset.Load(), "failed", failed.Load())
	}
	return err
}
