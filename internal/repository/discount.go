package repository

import (
	"context"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
)

// DiscountRepository owns the atomicity of the discount lifecycle. Every
// mutation is a single conditional write so concurrent callers (scheduler and
// redemption path) can never both win.
type DiscountRepository interface {
	// FindActive returns the user's active discount, domain.ErrNoActiveDiscount
	// if there is none, or domain.ErrInvariantViolation if there are several.
	FindActive(ctx context.Context, userID string) (*domain.Discount, error)

	// CreateActive inserts a new active discount. Fails with
	// domain.ErrActiveDiscountTaken if the user already holds one and with
	// domain.ErrDuplicateCode if code is taken by any discount.
	CreateActive(ctx context.Context, userID, code string) (*domain.Discount, error)

	// Redeem flips used=true on the matching active discount.
	// Returns false when no active discount matches userID and code.
	Redeem(ctx context.Context, userID, code string) (bool, error)

	// ExpireActive flips is_expired=true on the user's active discounts and
	// returns how many rows changed.
	ExpireActive(ctx context.Context, userID string) (int, error)

	ListActive(ctx context.Context, userID string) ([]*domain.Discount, error)
}
