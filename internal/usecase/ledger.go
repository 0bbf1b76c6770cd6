package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/ErlanBelekov/birthday-campaign/internal/repository"
)

const (
	codePrefix       = "BDAY-"
	codeLength       = 8
	maxIssueAttempts = 5
)

// 32 symbols without 0/O and 1/I, so a byte masked to 5 bits is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator mints a candidate discount code.
type CodeGenerator func() (string, error)

// NewCode returns a random BDAY-XXXXXXXX code from crypto/rand.
func NewCode() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	var b strings.Builder
	b.Grow(len(codePrefix) + codeLength)
	b.WriteString(codePrefix)
	for _, c := range raw {
		b.WriteByte(codeAlphabet[c&31])
	}
	return b.String(), nil
}

// DiscountLedger issues, redeems and expires per-user discount codes.
// All atomicity lives in the repository's conditional writes.
type DiscountLedger struct {
	repo    repository.DiscountRepository
	logger  *slog.Logger
	newCode CodeGenerator
}

func NewDiscountLedger(repo repository.DiscountRepository, logger *slog.Logger) *DiscountLedger {
	return &DiscountLedger{
		repo:    repo,
		logger:  logger.With("component", "discount_ledger"),
		newCode: NewCode,
	}
}

// WithCodeGenerator replaces the code source.
func (l *DiscountLedger) WithCodeGenerator(gen CodeGenerator) *DiscountLedger {
	l.newCode = gen
	return l
}

// Issue returns the user's active code, minting one if none exists.
// Concurrent callers for the same user all receive the same code.
func (l *DiscountLedger) Issue(ctx context.Context, userID string) (string, error) {
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		active, err := l.repo.FindActive(ctx, userID)
		switch {
		case err == nil:
			metrics.DiscountsIssuedTotal.WithLabelValues("reused").Inc()
			return active.Code, nil
		case errors.Is(err, domain.ErrInvariantViolation):
			l.logger.ErrorContext(ctx, "multiple active discounts", "user_id", userID, "error", err)
			return "", err
		case !errors.Is(err, domain.ErrNoActiveDiscount):
			return "", fmt.Errorf("find active discount: %w", err)
		}

		code, err := l.newCode()
		if err != nil {
			return "", err
		}

		created, err := l.repo.CreateActive(ctx, userID, code)
		switch {
		case err == nil:
			metrics.DiscountsIssuedTotal.WithLabelValues("created").Inc()
			l.logger.InfoContext(ctx, "discount issued", "user_id", userID, "discount_id", created.ID)
			return created.Code, nil
		case errors.Is(err, domain.ErrActiveDiscountTaken):
			// A concurrent issuer won; the next FindActive returns its code.
			l.logger.DebugContext(ctx, "lost issue race", "user_id", userID, "attempt", attempt)
		case errors.Is(err, domain.ErrDuplicateCode):
			l.logger.WarnContext(ctx, "discount code collision", "user_id", userID, "attempt", attempt)
		default:
			return "", fmt.Errorf("create discount: %w", err)
		}
	}
	return "", fmt.Errorf("issue discount after %d attempts: %w", maxIssueAttempts, domain.ErrDuplicateCode)
}

// Redeem marks the code used if it is the user's active code.
// It returns false, nil when the code is unknown, used or expired.
func (l *DiscountLedger) Redeem(ctx context.Context, userID, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		metrics.DiscountRedemptionsTotal.WithLabelValues("rejected").Inc()
		return false, nil
	}

	ok, err := l.repo.Redeem(ctx, userID, code)
	if err != nil {
		metrics.DiscountRedemptionsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("redeem discount: %w", err)
	}
	if !ok {
		metrics.DiscountRedemptionsTotal.WithLabelValues("rejected").Inc()
		l.logger.InfoContext(ctx, "discount redemption rejected", "user_id", userID)
		return false, nil
	}

	metrics.DiscountRedemptionsTotal.WithLabelValues("redeemed").Inc()
	l.logger.InfoContext(ctx, "discount redeemed", "user_id", userID)
	return true, nil
}

func (l *DiscountLedger) ListActive(ctx context.Context, userID string) ([]*domain.Discount, error) {
	discounts, err := l.repo.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active discounts: %w", err)
	}
	if len(discounts) > 1 {
		l.logger.ErrorContext(ctx, "multiple active discounts",
			"user_id", userID, "count", len(discounts), "error", domain.ErrInvariantViolation)
	}
	return discounts, nil
}

// Expire retires the user's active discount. domain.ErrNoActiveDiscount
// means there was nothing to expire and is safe to ignore.
func (l *DiscountLedger) Expire(ctx context.Context, userID string) (int, error) {
	n, err := l.repo.ExpireActive(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("expire discount: %w", err)
	}
	if n == 0 {
		return 0, domain.ErrNoActiveDiscount
	}
	if n > 1 {
		l.logger.ErrorContext(ctx, "expired multiple active discounts",
			"user_id", userID, "count", n, "error", domain.ErrInvariantViolation)
	}
	metrics.DiscountsExpiredTotal.Add(float64(n))
	l.logger.InfoContext(ctx, "discount expired", "user_id", userID, "count", n)
	return n, nil
}
