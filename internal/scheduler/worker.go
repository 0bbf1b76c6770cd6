package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/email"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
	"golang.org/x/sync/errgroup"
)

// forEachUser runs fn for every user on at most cfg.Workers goroutines.
// fn never aborts the batch; it reports its own failures.
func (c *Campaign) forEachUser(ctx context.Context, users []*domain.User, fn func(context.Context, *domain.User)) error {
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)

	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			metrics.CampaignUsersInFlight.Inc()
			defer metrics.CampaignUsersInFlight.Dec()
			fn(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pass interrupted: %w", err)
	}
	return nil
}

func (c *Campaign) notifyPass(ctx context.Context, today time.Time, report *RunReport) error {
	w := window.New(today, c.cfg.WindowDays)

	listCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	users, err := c.users.ListInWindow(listCtx, w)
	cancel()
	if err != nil {
		return fmt.Errorf("list users in window: %w", err)
	}

	var due []*domain.User
	for _, u := range users {
		if !w.Contains(u.Birthdate) {
			continue
		}
		report.Candidates++
		if !c.gate.ShouldNotify(u) {
			report.Skipped++
			metrics.CampaignUsersTotal.WithLabelValues("notify", "skipped").Inc()
			continue
		}
		due = append(due, u)
	}

	var notified, skipped, failed atomic.Int64
	err = c.forEachUser(ctx, due, func(ctx context.Context, u *domain.User) {
		err := c.notifyUser(ctx, u)
		switch {
		case err == nil:
			notified.Add(1)
			metrics.CampaignUsersTotal.WithLabelValues("notify", "notified").Inc()
		case errors.Is(err, domain.ErrAlreadyNotified):
			skipped.Add(1)
			metrics.CampaignUsersTotal.WithLabelValues("notify", "skipped").Inc()
			c.logger.InfoContext(ctx, "user already notified", "user_id", u.ID)
		default:
			failed.Add(1)
			metrics.CampaignUsersTotal.WithLabelValues("notify", "failed").Inc()
			c.logger.ErrorContext(ctx, "notify user", "user_id", u.ID, "error", err)
		}
	})

	report.Notified += int(notified.Load())
	report.Skipped += int(skipped.Load())
	report.NotifyFails += int(failed.Load())
	return err
}

// notifyUser issues the code, sends the message and only then marks the user
// notified. A failure before MarkCompleted leaves the user idle, and the next
// run reuses the same code.
func (c *Campaign) notifyUser(ctx context.Context, u *domain.User) error {
	recs, err := c.recommendations(ctx, u)
	if err != nil {
		return err
	}

	issueCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	code, err := c.ledger.Issue(issueCtx, u.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("issue discount: %w", err)
	}

	subject, body, err := email.RenderBirthday(email.BirthdayData{
		Name:            u.Name,
		Code:            code,
		Brand:           c.cfg.Brand,
		Recommendations: recs,
	})
	if err != nil {
		return err
	}

	if err := c.send(ctx, u, subject, body); err != nil {
		return err
	}

	markCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()
	if err := c.gate.MarkCompleted(markCtx, u.ID); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "birthday message sent", "user_id", u.ID, "recommendations", len(recs))
	return nil
}

func (c *Campaign) recommendations(ctx context.Context, u *domain.User) ([]*domain.Product, error) {
	if len(u.Preferences) == 0 {
		return nil, nil
	}
	recCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	products, err := c.products.TopRatedByCategories(recCtx, u.Preferences)
	if err != nil {
		return nil, fmt.Errorf("load recommendations: %w", err)
	}
	return products, nil
}

// send tries twice, each attempt bounded by the send timeout.
func (c *Campaign) send(ctx context.Context, u *domain.User, subject, body string) error {
	const attempts = 2

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
		err = c.sender.Send(sendCtx, u.Email, subject, body)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.WarnContext(ctx, "send failed", "user_id", u.ID, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("send birthday message: %w", err)
}
