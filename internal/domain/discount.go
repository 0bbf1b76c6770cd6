package domain

import (
	"errors"
	"time"
)

var (
	ErrDiscountNotFound    = errors.New("discount not found")
	ErrNoActiveDiscount    = errors.New("no active discount for user")
	ErrActiveDiscountTaken = errors.New("user already holds an active discount")
	ErrDuplicateCode       = errors.New("discount code already exists")
	ErrInvariantViolation  = errors.New("invariant violation")
)

type Discount struct {
	ID        string
	UserID    string
	Code      string
	Used      bool
	IsExpired bool
	IssuedAt  time.Time
	UsedAt    *time.Time
	ExpiredAt *time.Time
}

// Active reports whether the code can still be redeemed.
func (d *Discount) Active() bool {
	return !d.Used && !d.IsExpired
}
