package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/repository"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
)

// Expirer is the part of DiscountLedger the gate needs on reset.
type Expirer interface {
	Expire(ctx context.Context, userID string) (int, error)
}

// NotificationGate owns the per-user birthday cycle: Idle -> Notified -> Idle.
type NotificationGate struct {
	users      repository.UserRepository
	ledger     Expirer
	windowDays int
	logger     *slog.Logger
}

func NewNotificationGate(users repository.UserRepository, ledger Expirer, windowDays int, logger *slog.Logger) *NotificationGate {
	return &NotificationGate{
		users:      users,
		ledger:     ledger,
		windowDays: windowDays,
		logger:     logger.With("component", "notification_gate"),
	}
}

func (g *NotificationGate) ShouldNotify(u *domain.User) bool {
	return u.CycleState == domain.CycleIdle
}

// MarkCompleted records that the user's birthday message went out.
// domain.ErrAlreadyNotified is returned untouched so callers can treat it as benign.
func (g *NotificationGate) MarkCompleted(ctx context.Context, userID string) error {
	if err := g.users.MarkNotified(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrAlreadyNotified) {
			return err
		}
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// ResetIfWindowClosed returns a notified user to idle once their birthday is
// more than windowDays behind today and not yet coming up again. The code
// stays redeemable for windowDays days after the birthday. The active
// discount is expired before the state flips, so a crash in between leaves
// the user notified and the next run retries.
func (g *NotificationGate) ResetIfWindowClosed(ctx context.Context, u *domain.User, today time.Time) (bool, error) {
	if u.CycleState != domain.CycleNotified {
		return false, nil
	}
	if !window.Closed(today, u.Birthdate, g.windowDays) {
		return false, nil
	}

	if _, err := g.ledger.Expire(ctx, u.ID); err != nil && !errors.Is(err, domain.ErrNoActiveDiscount) {
		return false, fmt.Errorf("expire discount: %w", err)
	}

	if err := g.users.MarkIdle(ctx, u.ID); err != nil {
		if errors.Is(err, domain.ErrNotNotified) {
			g.logger.DebugContext(ctx, "user already reset", "user_id", u.ID)
			return false, nil
		}
		return false, fmt.Errorf("mark idle: %w", err)
	}

	g.logger.InfoContext(ctx, "birthday cycle reset", "user_id", u.ID)
	return true, nil
}
